package disruption

import (
	"context"
	"fmt"
	"sync"
	"time"

	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// Detector tracks time-since-last-successful-ingest per provider.
// Normal -> Disrupted when the silence exceeds the provider's threshold,
// Disrupted -> Normal on the next successful ingest. Each transition emits
// exactly one alert.
// -----------------------------------------------------------------------------

type State int

const (
	Normal State = iota
	Disrupted
)

func (s State) String() string {
	if s == Disrupted {
		return "disrupted"
	}
	return "normal"
}

// -----------------------------------------------------------------------------

type providerState struct {
	threshold   time.Duration
	state       State
	lastSuccess time.Time
}

type Detector struct {
	Publisher interfaces.IPublisher
	Logger    *logger.Logger

	mu        sync.Mutex
	providers map[string]*providerState
	now       func() time.Time
}

// -----------------------------------------------------------------------------

func NewDetector(pub interfaces.IPublisher, log *logger.Logger) *Detector {
	return &Detector{
		Publisher: pub,
		Logger:    log,
		providers: make(map[string]*providerState),
		now:       time.Now,
	}
}

// -----------------------------------------------------------------------------

// Register installs a provider with its class-specific threshold (shorter
// for push feeds, longer for slow pollers). The clock starts now.
func (d *Detector) Register(providerName string, threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[providerName] = &providerState{
		threshold:   threshold,
		state:       Normal,
		lastSuccess: d.now(),
	}
}

// -----------------------------------------------------------------------------

// MarkSuccess records a successful ingest. If the provider was disrupted it
// flips back to Normal and emits a single recovery alert.
func (d *Detector) MarkSuccess(providerName string) {
	d.mu.Lock()
	ps, ok := d.providers[providerName]
	if !ok {
		d.mu.Unlock()
		return
	}
	ps.lastSuccess = d.now()
	recovered := ps.state == Disrupted
	if recovered {
		ps.state = Normal
	}
	d.mu.Unlock()

	if recovered {
		d.Logger.Info("Provider %s recovered from disruption", providerName)
		d.publishAlert(providerName, "info",
			fmt.Sprintf("data feed for %s recovered", providerName))
	}
}

// -----------------------------------------------------------------------------

// CheckDisruption is called by an adapter after a failed cycle. If the
// silence exceeds the threshold and the provider was Normal, it flips to
// Disrupted and emits a single alert.
func (d *Detector) CheckDisruption(providerName string) State {
	d.mu.Lock()
	ps, ok := d.providers[providerName]
	if !ok {
		d.mu.Unlock()
		return Normal
	}

	silence := d.now().Sub(ps.lastSuccess)
	tripped := ps.state == Normal && silence > ps.threshold
	if tripped {
		ps.state = Disrupted
	}
	state := ps.state
	d.mu.Unlock()

	if tripped {
		d.Logger.Warning("Provider %s disrupted: no successful ingest for %s", providerName, silence.Round(time.Second))
		d.publishAlert(providerName, "critical",
			fmt.Sprintf("no data from %s for %s", providerName, silence.Round(time.Second)))
	}
	return state
}

// -----------------------------------------------------------------------------

// Watch sweeps every registered provider on a fixed interval so a feed that
// stalls without ever reporting a failed cycle still trips the detector.
func (d *Detector) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			names := make([]string, 0, len(d.providers))
			for name := range d.providers {
				names = append(names, name)
			}
			d.mu.Unlock()

			for _, name := range names {
				d.CheckDisruption(name)
			}
		}
	}
}

// -----------------------------------------------------------------------------

// StateOf returns the current state for a provider.
func (d *Detector) StateOf(providerName string) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ps, ok := d.providers[providerName]; ok {
		return ps.state
	}
	return Normal
}

// -----------------------------------------------------------------------------

func (d *Detector) publishAlert(providerName, severity, message string) {
	if d.Publisher == nil {
		return
	}
	d.Publisher.Publish("alerts", "anomaly_alert", models.MAnomalyAlert{
		Service:  providerName,
		Type:     "data_disruption",
		Message:  message,
		Severity: severity,
	})
}
