package interfaces

import (
	"context"
	"sync"
)

// -----------------------------------------------------------------------------
// ISourceAdapter is the contract for protocol-specific provider connectors.
// -----------------------------------------------------------------------------

type ISourceAdapter interface {

	// Name returns the provider name this adapter serves
	Name() string

	// -----------------------------------------------------------------------------

	// ProviderID returns the persisted provider identifier, valid after Start
	ProviderID() string

	// -----------------------------------------------------------------------------

	// IsRealTime returns true for push-socket adapters
	IsRealTime() bool

	// -----------------------------------------------------------------------------

	// Start ensures the provider record exists, loads mappings, and begins
	// ingestion in its own goroutine.
	// ctx: controls the lifecycle (cancellation stops the adapter)
	// wg: signals when the adapter has fully stopped
	Start(ctx context.Context, wg *sync.WaitGroup) error

	// -----------------------------------------------------------------------------

	// Stop terminates ingestion (manual stop; cancelling the Start context
	// is the usual path)
	Stop() error
}

// -----------------------------------------------------------------------------
// ITickSink receives normalized raw ticks from adapters. One malformed tick
// never aborts the rest of a batch; errors are per-record.
// -----------------------------------------------------------------------------

type ITickSink interface {

	// ProcessTick resolves the field through the mapping registry, updates
	// the price store and drives fan-out. Returns (false, nil) for silently
	// discarded unmapped fields.
	ProcessTick(providerID, providerName, field, rawBuy, rawSell string, decimalComma bool) (bool, error)
}
