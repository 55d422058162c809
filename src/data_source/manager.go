package datasource

import (
	"context"
	"fmt"
	"sync"

	"price-relay/src/interfaces"
	"price-relay/src/logger"
)

// -----------------------------------------------------------------------------
// Manager owns every source adapter. Each adapter runs concurrently and
// independently; one provider's failures never touch another's goroutine.
// -----------------------------------------------------------------------------

type Manager struct {
	Adapters map[string]interfaces.ISourceAdapter
	Logger   *logger.Logger

	mu         sync.RWMutex
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         *sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewManager(adapters []interfaces.ISourceAdapter, log *logger.Logger) *Manager {
	m := &Manager{
		Adapters: make(map[string]interfaces.ISourceAdapter),
		Logger:   log,
	}
	for _, a := range adapters {
		m.Adapters[a.Name()] = a
	}
	return m
}

// -----------------------------------------------------------------------------

// Start launches every adapter. A single adapter failing to start is logged
// and skipped; the rest keep going.
func (m *Manager) Start(parentCtx context.Context, wg *sync.WaitGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return fmt.Errorf("source manager is already running")
	}

	ctx, cancel := context.WithCancel(parentCtx)
	m.ctx = ctx
	m.cancelFunc = cancel
	m.wg = wg

	started := 0
	for _, a := range m.Adapters {
		if err := a.Start(ctx, wg); err != nil {
			m.Logger.Error("Failed to start adapter %s: %v", a.Name(), err)
			continue
		}
		started++
	}

	m.Logger.Info("Started %d/%d source adapters", started, len(m.Adapters))
	if started == 0 && len(m.Adapters) > 0 {
		return fmt.Errorf("no source adapter could start")
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop cancels the shared context, signalling every adapter to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return
	}
	m.Logger.Info("Stopping source adapters...")
	m.cancelFunc()
	m.ctx = nil
	m.cancelFunc = nil
}

// -----------------------------------------------------------------------------

// Get retrieves an adapter by provider name.
func (m *Manager) Get(name string) (interfaces.ISourceAdapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, exists := m.Adapters[name]
	if !exists {
		return nil, fmt.Errorf("adapter %s not found", name)
	}
	return a, nil
}

// -----------------------------------------------------------------------------

// All returns a snapshot list of the adapters.
func (m *Manager) All() []interfaces.ISourceAdapter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]interfaces.ISourceAdapter, 0, len(m.Adapters))
	for _, a := range m.Adapters {
		list = append(list, a)
	}
	return list
}
