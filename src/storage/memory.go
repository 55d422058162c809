package storage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// MemoryDB keeps everything in process memory. It backs the "memory" db_type
// and the test suites; semantics mirror the SQL stores.
// -----------------------------------------------------------------------------

type MemoryDB struct {
	mu        sync.RWMutex
	providers map[string]models.MProvider     // by id
	mappings  map[string]models.MFieldMapping // by id
	prices    map[string]models.MQuote        // by symbol+"\x00"+providerID
	history   []models.MHistoryEntry
	runLogs   []models.MRunLog
	users     map[string]models.MUser
	tokens    map[string]models.MAccessToken // by token value
	products  map[string]models.MUserProduct

	// Now is swappable so expiry checks are deterministic in tests.
	Now func() time.Time
}

// -----------------------------------------------------------------------------

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		providers: make(map[string]models.MProvider),
		mappings:  make(map[string]models.MFieldMapping),
		prices:    make(map[string]models.MQuote),
		users:     make(map[string]models.MUser),
		tokens:    make(map[string]models.MAccessToken),
		products:  make(map[string]models.MUserProduct),
		Now:       time.Now,
	}
}

func (d *MemoryDB) Initialize() error { return nil }
func (d *MemoryDB) Close() error      { return nil }

// -----------------------------------------------------------------------------
// Providers

func (d *MemoryDB) FindProviderByName(name string) (*models.MProvider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, p := range d.providers {
		if p.Name == name {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *MemoryDB) InsertProvider(p *models.MProvider) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = d.Now()
	}
	d.providers[p.ID] = *p
	return p.ID, nil
}

func (d *MemoryDB) UpdateProviderStatus(id string, status models.MProviderStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.providers[id]
	if !ok {
		return nil
	}
	p.LastUpdate = status.LastUpdate
	if status.Success {
		p.SuccessCount++
		p.LastError = ""
	} else {
		p.ErrorCount++
		p.LastError = status.LastError
	}
	if total := p.SuccessCount + p.ErrorCount; total > 0 {
		p.Reliability = float64(p.SuccessCount) / float64(total)
	}
	d.providers[id] = p
	return nil
}

func (d *MemoryDB) ListProviders() ([]models.MProvider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.MProvider, 0, len(d.providers))
	for _, p := range d.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Field mappings

func (d *MemoryDB) AddMapping(m models.MFieldMapping) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	d.mappings[m.ID] = m
	return m.ID
}

func (d *MemoryDB) FindActiveMappings(providerID string) ([]models.MFieldMapping, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []models.MFieldMapping
	for _, m := range d.mappings {
		if m.ProviderID == providerID && m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].SourceField < out[j].SourceField
	})
	return out, nil
}

func (d *MemoryDB) FindMapping(providerID, field string) (*models.MFieldMapping, error) {
	mappings, err := d.FindActiveMappings(providerID)
	if err != nil {
		return nil, err
	}
	for _, m := range mappings {
		if m.SourceField == field {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

// -----------------------------------------------------------------------------
// Current prices

func priceKey(symbol, providerID string) string {
	return symbol + "\x00" + providerID
}

func (d *MemoryDB) UpsertCurrentPrice(q *models.MQuote) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.prices[priceKey(q.Symbol, q.ProviderID)] = *q
	return nil
}

func (d *MemoryDB) QueryCurrentPrices(filter models.MPriceFilter) ([]models.MQuote, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []models.MQuote
	for _, q := range d.prices {
		if filter.Symbol != "" && q.Symbol != filter.Symbol {
			continue
		}
		if filter.ProviderID != "" && q.ProviderID != filter.ProviderID {
			continue
		}
		if filter.ActiveOnly && !q.Active {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	return out, nil
}

func (d *MemoryDB) DistinctSymbols(filter models.MPriceFilter) ([]string, error) {
	quotes, err := d.QueryCurrentPrices(filter)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, q := range quotes {
		if _, ok := seen[q.Symbol]; ok {
			continue
		}
		seen[q.Symbol] = struct{}{}
		out = append(out, q.Symbol)
	}
	sort.Strings(out)
	return out, nil
}

// -----------------------------------------------------------------------------
// History and run logs

func (d *MemoryDB) InsertHistoryBatch(entries []models.MHistoryEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		d.history = append(d.history, entries[i])
	}
	return nil
}

func (d *MemoryDB) DeleteHistoryOlderThan(cutoff time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.history[:0]
	var purged int64
	for _, e := range d.history {
		if e.ArchivedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	d.history = kept
	return purged, nil
}

func (d *MemoryDB) InsertRunLog(r *models.MRunLog) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	d.runLogs = append(d.runLogs, *r)
	return nil
}

func (d *MemoryDB) DeleteRunLogsOlderThan(cutoff time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.runLogs[:0]
	var purged int64
	for _, r := range d.runLogs {
		if r.StartedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	d.runLogs = kept
	return purged, nil
}

// History returns a copy of the archived entries, oldest first.
func (d *MemoryDB) History() []models.MHistoryEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.MHistoryEntry(nil), d.history...)
}

// RunLogs returns a copy of the recorded scheduler runs.
func (d *MemoryDB) RunLogs() []models.MRunLog {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.MRunLog(nil), d.runLogs...)
}

// -----------------------------------------------------------------------------
// Users, products, tokens

func (d *MemoryDB) AddUser(u models.MUser) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	d.users[u.ID] = u
	return u.ID
}

func (d *MemoryDB) AddToken(t models.MAccessToken) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	d.tokens[t.Token] = t
	return t.ID
}

func (d *MemoryDB) AddProduct(p models.MUserProduct) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	d.products[p.ID] = p
	return p.ID
}

func (d *MemoryDB) FindUserProductsByUser(userID string, activeOnly bool) ([]models.MUserProduct, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []models.MUserProduct
	for _, p := range d.products {
		if p.UserID != userID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return strings.Compare(out[i].Name, out[j].Name) < 0
	})
	return out, nil
}

func (d *MemoryDB) FindUsersBySelectedProvider(providerID string) ([]models.MUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := d.Now()
	var out []models.MUser
	for _, u := range d.users {
		if !u.Active || u.SelectedProviderID != providerID {
			continue
		}
		if !u.ExpiresAt.IsZero() && !u.ExpiresAt.After(now) {
			continue
		}
		if !d.tokenStateAllows(u.ID, now) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// tokenStateAllows mirrors the SQL join: users with no tokens pass, users
// with tokens need at least one active unexpired one.
func (d *MemoryDB) tokenStateAllows(userID string, now time.Time) bool {
	hasAny := false
	for _, t := range d.tokens {
		if t.UserID != userID {
			continue
		}
		hasAny = true
		if t.Active && (t.ExpiresAt.IsZero() || t.ExpiresAt.After(now)) {
			return true
		}
	}
	return !hasAny
}

func (d *MemoryDB) FindAccessToken(token string) (*models.MAccessToken, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.tokens[token]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}
