package datasource

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"price-relay/src/disruption"
	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/mapping"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// BaseAdapter carries the lifecycle and provider bookkeeping shared by all
// protocol adapters: provider bootstrap, mapping load, per-cycle status
// reporting and the disruption clock.
// -----------------------------------------------------------------------------

type BaseAdapter struct {
	Cfg      models.MProviderConfig
	DB       interfaces.IDatabase
	Registry *mapping.Registry
	Sink     interfaces.ITickSink
	Detector *disruption.Detector
	Logger   *logger.Logger

	providerID string
	isRunning  atomic.Bool
	cancelFunc context.CancelFunc
	mu         sync.Mutex
}

// -----------------------------------------------------------------------------

func (b *BaseAdapter) Name() string {
	return b.Cfg.Name
}

func (b *BaseAdapter) ProviderID() string {
	return b.providerID
}

// -----------------------------------------------------------------------------

// bootstrap ensures the Provider record exists, loads field mappings and the
// canonical symbol allow-list, and registers the disruption threshold.
func (b *BaseAdapter) bootstrap() error {
	p, err := b.DB.FindProviderByName(b.Cfg.Name)
	if err != nil {
		return fmt.Errorf("provider lookup failed: %w", err)
	}
	if p == nil {
		id, err := b.DB.InsertProvider(&models.MProvider{
			Name:         b.Cfg.Name,
			DisplayName:  b.Cfg.Name,
			Kind:         b.Cfg.Kind,
			IntervalSecs: b.Cfg.IntervalSeconds,
			Priority:     b.Cfg.Priority,
			Active:       true,
			CreatedAt:    time.Now(),
		})
		if err != nil {
			return fmt.Errorf("provider bootstrap failed: %w", err)
		}
		b.providerID = id
		b.Logger.Info("Created provider record %s (%s)", b.Cfg.Name, id)
	} else {
		b.providerID = p.ID
	}

	if err := b.Registry.Reload(b.providerID); err != nil {
		return fmt.Errorf("mapping load failed: %w", err)
	}

	symbols, err := b.DB.DistinctSymbols(models.MPriceFilter{ProviderID: b.providerID})
	if err != nil {
		b.Logger.Warning("Symbol allow-list load failed: %v", err)
	} else {
		b.Logger.Info("Provider %s tracks %d known symbols, %d mapped fields",
			b.Cfg.Name, len(symbols), len(b.Registry.Symbols(b.providerID)))
	}

	b.Detector.Register(b.Cfg.Name, time.Duration(b.Cfg.DisruptionSeconds)*time.Second)
	return nil
}

// -----------------------------------------------------------------------------

// beginRun flips the running state and derives the adapter's own context.
// Returns an error when the adapter is already running.
func (b *BaseAdapter) BeginRun(parentCtx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isRunning.Load() {
		return nil, fmt.Errorf("adapter %s is already running", b.Cfg.Name)
	}
	if err := b.bootstrap(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parentCtx)
	b.cancelFunc = cancel
	b.isRunning.Store(true)
	return ctx, nil
}

// -----------------------------------------------------------------------------

// Stop signals the run loop to exit.
func (b *BaseAdapter) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.isRunning.Load() {
		return fmt.Errorf("adapter %s is not running", b.Cfg.Name)
	}
	if b.cancelFunc != nil {
		b.cancelFunc()
	}
	b.isRunning.Store(false)
	b.Logger.Info("Stopped adapter %s", b.Cfg.Name)
	return nil
}

// -----------------------------------------------------------------------------

// reportCycle mutates the provider record after one ingest cycle and, on a
// fully failed cycle, consults the disruption clock.
func (b *BaseAdapter) ReportCycle(processed int, cycleErr error) {
	status := models.MProviderStatus{
		LastUpdate: time.Now(),
		Success:    processed > 0,
	}
	if cycleErr != nil {
		status.LastError = cycleErr.Error()
	}
	if err := b.DB.UpdateProviderStatus(b.providerID, status); err != nil {
		b.Logger.Error("Failed to update provider status: %v", err)
	}

	if processed == 0 && cycleErr != nil {
		b.Detector.CheckDisruption(b.Cfg.Name)
	}
}
