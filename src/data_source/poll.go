package datasource

import (
	"context"
	"sync"
	"time"

	"price-relay/src/utils"
)

// -----------------------------------------------------------------------------
// PollLoop drives the common cadence of the polling adapters: a fixed
// interval, an optional market-session gate, and per-cycle provider status
// reporting. The protocol-specific fetch/parse lives in the cycle function.
// -----------------------------------------------------------------------------

// CycleFunc fetches and processes one polling cycle. It returns how many
// ticks made it through the pipeline and the last error seen; a failed cycle
// never stops future cycles.
type CycleFunc func(ctx context.Context) (processed int, err error)

// -----------------------------------------------------------------------------

// RunPollLoop blocks until the context is cancelled. The first cycle fires
// immediately, subsequent ones on the interval.
func (b *BaseAdapter) RunPollLoop(ctx context.Context, wg *sync.WaitGroup, cycle CycleFunc) {
	defer wg.Done()

	var session *utils.MarketSession
	if b.Cfg.MarketHours {
		session = utils.GetSession(b.Cfg.MarketCode)
	}

	interval := time.Duration(b.Cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.runCycle(ctx, session, cycle)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runCycle(ctx, session, cycle)
		}
	}
}

// -----------------------------------------------------------------------------

func (b *BaseAdapter) runCycle(ctx context.Context, session *utils.MarketSession, cycle CycleFunc) {
	if session != nil && !session.IsOpen(time.Now()) {
		b.Logger.Debug("Market closed for %s, skipping cycle", b.Cfg.Name)
		return
	}

	processed, err := cycle(ctx)
	if err != nil {
		b.Logger.Warning("Cycle for %s finished with %d ticks, last error: %v", b.Cfg.Name, processed, err)
	} else {
		b.Logger.Debug("Cycle for %s processed %d ticks", b.Cfg.Name, processed)
	}
	b.ReportCycle(processed, err)
}
