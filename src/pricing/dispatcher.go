package pricing

import (
	"sort"
	"sync"
	"time"

	"price-relay/src/formula"
	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/models"
	"price-relay/src/pricestore"
	"price-relay/src/server"
)

// -----------------------------------------------------------------------------
// Dispatcher recomputes per-user derived prices after a significant update.
// Triggers for the same provider inside the debounce window coalesce into a
// single recomputation pass (cancel-and-reschedule, not a job queue).
// -----------------------------------------------------------------------------

type Dispatcher struct {
	DB        interfaces.IDatabase
	Store     *pricestore.Store
	Publisher interfaces.IPublisher
	Logger    *logger.Logger
	Debounce  time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer // providerID -> armed debounce timer
	run     func(providerID string)
}

// -----------------------------------------------------------------------------

func NewDispatcher(db interfaces.IDatabase, store *pricestore.Store, pub interfaces.IPublisher, log *logger.Logger, debounce time.Duration) *Dispatcher {
	d := &Dispatcher{
		DB:        db,
		Store:     store,
		Publisher: pub,
		Logger:    log,
		Debounce:  debounce,
		pending:   make(map[string]*time.Timer),
	}
	d.run = d.recompute
	return d
}

// -----------------------------------------------------------------------------

// Trigger schedules a recomputation pass for the provider. A burst of N
// near-simultaneous ticks yields one pass, not N.
func (d *Dispatcher) Trigger(providerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.pending[providerID]; ok {
		t.Stop()
	}
	d.pending[providerID] = time.AfterFunc(d.Debounce, func() {
		d.mu.Lock()
		delete(d.pending, providerID)
		d.mu.Unlock()
		d.run(providerID)
	})
}

// -----------------------------------------------------------------------------

// Stop cancels any armed timers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.pending {
		t.Stop()
		delete(d.pending, id)
	}
}

// -----------------------------------------------------------------------------

// recompute runs one pass: every eligible user of the provider gets its
// product formulas evaluated against a snapshot taken now.
func (d *Dispatcher) recompute(providerID string) {
	users, err := d.DB.FindUsersBySelectedProvider(providerID)
	if err != nil {
		d.Logger.Error("Failed to load users for provider %s: %v", providerID, err)
		return
	}
	if len(users) == 0 {
		return
	}

	table := d.buildTable(providerID)

	computed := 0
	for _, user := range users {
		// No live connection, no work
		if !d.Publisher.HasSubscribers(server.UserChannel(user.ID)) {
			continue
		}
		d.computeUser(user, providerID, table)
		computed++
	}
	d.Logger.Debug("Recomputed derived prices for %d/%d users of provider %s", computed, len(users), providerID)
}

// -----------------------------------------------------------------------------

// buildTable converts the store snapshot into a formula variable table,
// preferring the triggering provider's quotes on symbol collisions.
func (d *Dispatcher) buildTable(providerID string) formula.VariableTable {
	table := formula.VariableTable{}
	for symbol, q := range d.Store.VariableTable(providerID) {
		table.Set(symbol, formula.SymbolPrices{
			Buying:  q.BuyPrice,
			Selling: q.SellPrice,
			Last:    (q.BuyPrice + q.SellPrice) / 2,
		})
	}
	return table
}

// -----------------------------------------------------------------------------

func (d *Dispatcher) computeUser(user models.MUser, providerID string, table formula.VariableTable) {
	products, err := d.DB.FindUserProductsByUser(user.ID, true)
	if err != nil {
		d.Logger.Error("Failed to load products for user %s: %v", user.ID, err)
		return
	}
	if len(products) == 0 {
		return
	}

	sort.Slice(products, func(i, j int) bool {
		return products[i].DisplayOrder < products[j].DisplayOrder
	})

	out := make([]models.MProductPrice, 0, len(products))
	for _, p := range products {
		out = append(out, d.computeProduct(p, user.SiteOpen, table))
	}

	d.Publisher.Publish(server.UserChannel(user.ID), "user_prices_update", models.MUserPricesUpdate{
		SourceID: providerID,
		Data:     models.MUserPricesData{Products: out},
	})
}

// -----------------------------------------------------------------------------

// computeProduct evaluates one product's buy/sell formulas. A formula
// failure leaves that side null and never affects other products. A closed
// site publishes explicit zeros instead of computed values.
func (d *Dispatcher) computeProduct(p models.MUserProduct, siteOpen bool, table formula.VariableTable) models.MProductPrice {
	price := models.MProductPrice{
		ProductID:     p.ID,
		Name:          p.Name,
		DecimalPlaces: p.BuyRounding.DecimalPlaces,
		Section:       p.Section,
	}

	if !siteOpen {
		zero := 0.0
		price.BuyingPrice = &zero
		price.SellingPrice = &zero
		return price
	}

	if buy, err := formula.Evaluate(p.BuyingFormula, table, p.BuyRounding); err != nil {
		d.Logger.Warning("Buying formula failed for product %s: %v", p.ID, err)
	} else {
		price.BuyingPrice = &buy.RoundedValue
	}

	if sell, err := formula.Evaluate(p.SellingFormula, table, p.SellRounding); err != nil {
		d.Logger.Warning("Selling formula failed for product %s: %v", p.ID, err)
	} else {
		price.SellingPrice = &sell.RoundedValue
	}

	return price
}
