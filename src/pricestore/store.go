package pricestore

import (
	"math"
	"sync"
	"time"

	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// Store holds the canonical live quote state keyed by (symbol, providerID).
// Each key owns its own mutex, so updates for the same key serialize (no
// torn previous/current pair) while different keys interleave freely.
// -----------------------------------------------------------------------------

type entry struct {
	mu    sync.Mutex
	quote models.MQuote
}

type Store struct {
	DB     interfaces.IDatabase
	Logger *logger.Logger

	mu      sync.RWMutex // guards the key -> entry arena only
	entries map[string]*entry

	now func() time.Time
}

// -----------------------------------------------------------------------------

func NewStore(db interfaces.IDatabase, log *logger.Logger) *Store {
	return &Store{
		DB:      db,
		Logger:  log,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func key(symbol, providerID string) string {
	return symbol + "\x00" + providerID
}

// -----------------------------------------------------------------------------

// WarmUp seeds the in-memory state from the persisted current prices so
// change percentages survive a restart.
func (s *Store) WarmUp() error {
	quotes, err := s.DB.QueryCurrentPrices(models.MPriceFilter{})
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, q := range quotes {
		s.entries[key(q.Symbol, q.ProviderID)] = &entry{quote: q}
	}
	s.mu.Unlock()

	s.Logger.Info("Warmed up price store with %d quotes", len(quotes))
	return nil
}

// -----------------------------------------------------------------------------

func (s *Store) entryFor(symbol, providerID string) *entry {
	k := key(symbol, providerID)

	s.mu.RLock()
	e := s.entries[k]
	s.mu.RUnlock()
	if e != nil {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.entries[k]; e == nil {
		e = &entry{}
		s.entries[k] = e
	}
	return e
}

// -----------------------------------------------------------------------------

// Upsert applies one accepted tick. Rejects non-finite or negative prices.
// Returns Updated=false when neither side moved (only the last-checked
// timestamp refreshes).
func (s *Store) Upsert(symbol, providerID, providerName, currency string, buy, sell float64) (models.MUpsertResult, error) {
	if !finiteNonNegative(buy) || !finiteNonNegative(sell) {
		return models.MUpsertResult{}, &priceError{symbol: symbol}
	}

	e := s.entryFor(symbol, providerID)
	e.mu.Lock()

	now := s.now()
	today := now.Format("2006-01-02")
	q := &e.quote

	var res models.MUpsertResult

	if q.LastUpdatedAt.IsZero() && q.BuyPrice == 0 && q.SellPrice == 0 && q.Daily.Date == "" {
		// First tick for this key
		*q = models.MQuote{
			Symbol:       symbol,
			ProviderID:   providerID,
			ProviderName: providerName,
			Currency:     currency,
			BuyPrice:     buy,
			SellPrice:    sell,
			Daily: models.MDailyStats{
				Date:     today,
				OpenBuy:  buy,
				OpenSell: sell,
				HighBuy:  buy,
				HighSell: sell,
				LowBuy:   buy,
				LowSell:  sell,
			},
			Active:        true,
			LastUpdatedAt: now,
			LastCheckedAt: now,
		}
		res = models.MUpsertResult{Updated: true, First: true}
	} else if q.BuyPrice == buy && q.SellPrice == sell {
		q.LastCheckedAt = now
		res = models.MUpsertResult{Updated: false}
		snapshot := *q
		e.mu.Unlock()
		s.persist(&snapshot)
		return res, nil
	} else {
		oldBuy, oldSell := q.BuyPrice, q.SellPrice

		if q.Daily.Date != today {
			// Calendar day rolled over: yesterday's last values become the
			// closing prices, open/high/low restart from this tick.
			q.Daily = models.MDailyStats{
				Date:             today,
				OpenBuy:          buy,
				OpenSell:         sell,
				HighBuy:          buy,
				HighSell:         sell,
				LowBuy:           buy,
				LowSell:          sell,
				ClosingBuyPrice:  oldBuy,
				ClosingSellPrice: oldSell,
			}
		} else {
			q.Daily.HighBuy = math.Max(q.Daily.HighBuy, buy)
			q.Daily.HighSell = math.Max(q.Daily.HighSell, sell)
			q.Daily.LowBuy = math.Min(q.Daily.LowBuy, buy)
			q.Daily.LowSell = math.Min(q.Daily.LowSell, sell)
		}

		previousZero := oldBuy == 0 || oldSell == 0
		var pctBuy, pctSell float64
		if oldBuy != 0 {
			pctBuy = (buy - oldBuy) / oldBuy * 100
		}
		if oldSell != 0 {
			pctSell = (sell - oldSell) / oldSell * 100
		}

		q.PreviousBuyPrice = oldBuy
		q.PreviousSellPrice = oldSell
		q.ChangePercentBuy = pctBuy
		q.ChangePercentSell = pctSell
		q.BuyPrice = buy
		q.SellPrice = sell
		q.Currency = currency
		q.ProviderName = providerName
		q.Active = true
		q.LastUpdatedAt = now
		q.LastCheckedAt = now

		res = models.MUpsertResult{
			Updated:       true,
			ChangePercent: (pctBuy + pctSell) / 2,
			AbsoluteDelta: math.Max(math.Abs(buy-oldBuy), math.Abs(sell-oldSell)),
			PreviousZero:  previousZero,
		}
	}

	snapshot := *q
	e.mu.Unlock()

	s.persist(&snapshot)
	return res, nil
}

// -----------------------------------------------------------------------------

// persist writes through to the document store. Failures are logged, never
// propagated into the ingest path.
func (s *Store) persist(q *models.MQuote) {
	if s.DB == nil {
		return
	}
	if err := s.DB.UpsertCurrentPrice(q); err != nil {
		s.Logger.Error("Failed to persist quote %s/%s: %v", q.Symbol, q.ProviderID, err)
	}
}

// -----------------------------------------------------------------------------

// Get returns a copy of the live quote for a key.
func (s *Store) Get(symbol, providerID string) (models.MQuote, bool) {
	s.mu.RLock()
	e := s.entries[key(symbol, providerID)]
	s.mu.RUnlock()
	if e == nil {
		return models.MQuote{}, false
	}

	e.mu.Lock()
	q := e.quote
	e.mu.Unlock()
	if q.LastUpdatedAt.IsZero() {
		return models.MQuote{}, false
	}
	return q, true
}

// -----------------------------------------------------------------------------

// Snapshot returns copies of all quotes matching the filter, taken key by
// key. Dispatch-time consumers work off this snapshot; ticks landing later
// are not reflected.
func (s *Store) Snapshot(filter models.MPriceFilter) []models.MQuote {
	s.mu.RLock()
	refs := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		refs = append(refs, e)
	}
	s.mu.RUnlock()

	out := make([]models.MQuote, 0, len(refs))
	for _, e := range refs {
		e.mu.Lock()
		q := e.quote
		e.mu.Unlock()

		if q.LastUpdatedAt.IsZero() {
			continue
		}
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
	return out
}

// -----------------------------------------------------------------------------

// Deactivate soft-deactivates every quote belonging to a provider. Entries
// are never hard-deleted.
func (s *Store) Deactivate(providerID string) {
	for _, q := range s.Snapshot(models.MPriceFilter{ProviderID: providerID}) {
		e := s.entryFor(q.Symbol, q.ProviderID)
		e.mu.Lock()
		e.quote.Active = false
		snapshot := e.quote
		e.mu.Unlock()
		s.persist(&snapshot)
	}
}

// -----------------------------------------------------------------------------

// VariableTable builds the formula variable table from the current state,
// preferring the given provider's quotes for collisions across providers.
func (s *Store) VariableTable(preferredProviderID string) map[string]models.MQuote {
	quotes := s.Snapshot(models.MPriceFilter{ActiveOnly: true})

	bySymbol := make(map[string]models.MQuote, len(quotes))
	for _, q := range quotes {
		existing, ok := bySymbol[q.Symbol]
		if !ok || (existing.ProviderID != preferredProviderID && q.ProviderID == preferredProviderID) {
			bySymbol[q.Symbol] = q
		}
	}
	return bySymbol
}

// -----------------------------------------------------------------------------

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// -----------------------------------------------------------------------------

type priceError struct{ symbol string }

func (e *priceError) Error() string {
	return "rejected non-finite or negative price for " + e.symbol
}
