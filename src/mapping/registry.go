package mapping

import (
	"sync"

	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// Registry translates provider field codes into canonical symbols. Tables are
// loaded per provider and swapped atomically on reload so in-flight lookups
// never see a partially-updated map.
// -----------------------------------------------------------------------------

type Registry struct {
	DB     interfaces.IDatabase
	Logger *logger.Logger

	mu     sync.RWMutex
	tables map[string]map[string]models.MFieldMapping // providerID -> sourceField -> mapping
}

// -----------------------------------------------------------------------------

func NewRegistry(db interfaces.IDatabase, log *logger.Logger) *Registry {
	return &Registry{
		DB:     db,
		Logger: log,
		tables: make(map[string]map[string]models.MFieldMapping),
	}
}

// -----------------------------------------------------------------------------

// Reload re-reads all active mappings for a provider and swaps the table in
// one assignment under the write lock.
func (r *Registry) Reload(providerID string) error {
	mappings, err := r.DB.FindActiveMappings(providerID)
	if err != nil {
		return err
	}

	table := make(map[string]models.MFieldMapping, len(mappings))
	for _, m := range mappings {
		table[m.SourceField] = m
	}

	r.mu.Lock()
	r.tables[providerID] = table
	r.mu.Unlock()

	r.Logger.Info("Loaded %d active mappings for provider %s", len(table), providerID)
	return nil
}

// -----------------------------------------------------------------------------

// Resolve returns the mapping for (providerID, field), or nil when the field
// is unmapped and should be ignored.
func (r *Registry) Resolve(providerID, field string) *models.MFieldMapping {
	r.mu.RLock()
	table := r.tables[providerID]
	r.mu.RUnlock()

	if table == nil {
		return nil
	}
	m, ok := table[field]
	if !ok {
		return nil
	}
	return &m
}

// -----------------------------------------------------------------------------

// Symbols returns the canonical symbols currently mapped for a provider.
func (r *Registry) Symbols(providerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, m := range r.tables[providerID] {
		if !seen[m.TargetSymbol] {
			seen[m.TargetSymbol] = true
			out = append(out, m.TargetSymbol)
		}
	}
	return out
}
