package pricing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-relay/src/logger"
	"price-relay/src/models"
	"price-relay/src/pricestore"
	"price-relay/src/server"
	"price-relay/src/storage"
)

// fanoutRecorder captures publishes and lets tests control which channels
// appear to have live subscribers.
type fanoutRecorder struct {
	mu         sync.Mutex
	published  []recordedPublish
	subscribed map[string]bool
}

type recordedPublish struct {
	channel string
	event   string
	payload interface{}
}

func newFanoutRecorder() *fanoutRecorder {
	return &fanoutRecorder{subscribed: make(map[string]bool)}
}

func (f *fanoutRecorder) Publish(channel, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, recordedPublish{channel, event, payload})
}

func (f *fanoutRecorder) HasSubscribers(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[channel]
}

func (f *fanoutRecorder) setOnline(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[channel] = true
}

func (f *fanoutRecorder) all() []recordedPublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedPublish(nil), f.published...)
}

// -----------------------------------------------------------------------------

type fixture struct {
	dispatcher *Dispatcher
	db         *storage.MemoryDB
	store      *pricestore.Store
	pub        *fanoutRecorder
}

func newFixture(t *testing.T, debounce time.Duration) *fixture {
	t.Helper()
	db := storage.NewMemoryDB()
	log := logger.NewLogger("error", "pricing-test")
	store := pricestore.NewStore(db, log)
	pub := newFanoutRecorder()
	return &fixture{
		dispatcher: NewDispatcher(db, store, pub, log, debounce),
		db:         db,
		store:      store,
		pub:        pub,
	}
}

func (f *fixture) seedUserWithProduct(t *testing.T, providerID string, siteOpen bool) string {
	t.Helper()
	userID := f.db.AddUser(models.MUser{
		Username: "dealer", Active: true, SelectedProviderID: providerID, SiteOpen: siteOpen,
	})
	f.db.AddProduct(models.MUserProduct{
		UserID:     userID,
		Name:       "Quarter Coin",
		BaseSymbol: "USD/TRY",
		BuyingFormula:  "USD_alis * 0.995 - 5",
		SellingFormula: "USD_satis * 1.005 + 5",
		BuyRounding:  models.MRounding{Method: "none", DecimalPlaces: 2},
		SellRounding: models.MRounding{Method: "none", DecimalPlaces: 2},
		Active:       true,
	})
	return userID
}

// -----------------------------------------------------------------------------

func TestTriggerDebounceCoalesces(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 30*time.Millisecond)

	var mu sync.Mutex
	runs := 0
	f.dispatcher.run = func(string) {
		mu.Lock()
		runs++
		mu.Unlock()
	}

	for i := 0; i < 10; i++ {
		f.dispatcher.Trigger("p1")
	}

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, runs, "a burst of triggers coalesces into one pass")
	mu.Unlock()
}

func TestTriggerSeparateWindowsRunSeparately(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10*time.Millisecond)

	var mu sync.Mutex
	runs := 0
	f.dispatcher.run = func(string) {
		mu.Lock()
		runs++
		mu.Unlock()
	}

	f.dispatcher.Trigger("p1")
	time.Sleep(40 * time.Millisecond)
	f.dispatcher.Trigger("p1")
	time.Sleep(40 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 2, runs)
	mu.Unlock()
}

func TestTriggerPerProviderTimers(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 20*time.Millisecond)

	var mu sync.Mutex
	seen := map[string]int{}
	f.dispatcher.run = func(id string) {
		mu.Lock()
		seen[id]++
		mu.Unlock()
	}

	f.dispatcher.Trigger("p1")
	f.dispatcher.Trigger("p2")
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, seen["p1"])
	assert.Equal(t, 1, seen["p2"])
	mu.Unlock()
}

func TestStopCancelsPendingTimers(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 20*time.Millisecond)

	var mu sync.Mutex
	runs := 0
	f.dispatcher.run = func(string) {
		mu.Lock()
		runs++
		mu.Unlock()
	}

	f.dispatcher.Trigger("p1")
	f.dispatcher.Stop()
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	assert.Zero(t, runs)
	mu.Unlock()
}

// -----------------------------------------------------------------------------

func TestRecomputePublishesDerivedPrices(t *testing.T) {
	t.Parallel()
	f := newFixture(t, time.Millisecond)

	_, err := f.store.Upsert("USD/TRY", "p1", "primary", "TRY", 34.20, 34.45)
	require.NoError(t, err)

	userID := f.seedUserWithProduct(t, "p1", true)
	f.pub.setOnline(server.UserChannel(userID))

	f.dispatcher.recompute("p1")

	published := f.pub.all()
	require.Len(t, published, 1)
	assert.Equal(t, server.UserChannel(userID), published[0].channel)
	assert.Equal(t, "user_prices_update", published[0].event)

	update, ok := published[0].payload.(models.MUserPricesUpdate)
	require.True(t, ok)
	assert.Equal(t, "p1", update.SourceID)
	require.Len(t, update.Data.Products, 1)

	p := update.Data.Products[0]
	require.NotNil(t, p.BuyingPrice)
	require.NotNil(t, p.SellingPrice)
	// 34.20*0.995-5 = 29.029 -> 29.03; 34.45*1.005+5 = 39.62225 -> 39.62
	assert.InDelta(t, 29.03, *p.BuyingPrice, 1e-9)
	assert.InDelta(t, 39.62, *p.SellingPrice, 1e-9)
}

func TestRecomputeSkipsOfflineUsers(t *testing.T) {
	t.Parallel()
	f := newFixture(t, time.Millisecond)

	_, err := f.store.Upsert("USD/TRY", "p1", "primary", "TRY", 34.20, 34.45)
	require.NoError(t, err)
	f.seedUserWithProduct(t, "p1", true)
	// User channel never marked online.

	f.dispatcher.recompute("p1")
	assert.Empty(t, f.pub.all())
}

func TestRecomputeClosedSitePublishesZeros(t *testing.T) {
	t.Parallel()
	f := newFixture(t, time.Millisecond)

	_, err := f.store.Upsert("USD/TRY", "p1", "primary", "TRY", 34.20, 34.45)
	require.NoError(t, err)

	userID := f.seedUserWithProduct(t, "p1", false)
	f.pub.setOnline(server.UserChannel(userID))

	f.dispatcher.recompute("p1")

	published := f.pub.all()
	require.Len(t, published, 1)
	update := published[0].payload.(models.MUserPricesUpdate)
	require.Len(t, update.Data.Products, 1)

	p := update.Data.Products[0]
	require.NotNil(t, p.BuyingPrice)
	require.NotNil(t, p.SellingPrice)
	assert.Zero(t, *p.BuyingPrice)
	assert.Zero(t, *p.SellingPrice)
}

func TestRecomputeProductFailureIsIsolated(t *testing.T) {
	t.Parallel()
	f := newFixture(t, time.Millisecond)

	_, err := f.store.Upsert("USD/TRY", "p1", "primary", "TRY", 34.20, 34.45)
	require.NoError(t, err)

	userID := f.db.AddUser(models.MUser{
		Username: "dealer", Active: true, SelectedProviderID: "p1", SiteOpen: true,
	})
	f.db.AddProduct(models.MUserProduct{
		UserID: userID, Name: "Broken", BaseSymbol: "JPY/TRY",
		BuyingFormula: "JPY_alis * 2", SellingFormula: "USD_satis",
		BuyRounding:  models.MRounding{Method: "none", DecimalPlaces: 2},
		SellRounding: models.MRounding{Method: "none", DecimalPlaces: 2},
		Active:       true, DisplayOrder: 1,
	})
	f.db.AddProduct(models.MUserProduct{
		UserID: userID, Name: "Healthy", BaseSymbol: "USD/TRY",
		BuyingFormula: "USD_alis", SellingFormula: "USD_satis",
		BuyRounding:  models.MRounding{Method: "none", DecimalPlaces: 2},
		SellRounding: models.MRounding{Method: "none", DecimalPlaces: 2},
		Active:       true, DisplayOrder: 2,
	})
	f.pub.setOnline(server.UserChannel(userID))

	f.dispatcher.recompute("p1")

	published := f.pub.all()
	require.Len(t, published, 1)
	update := published[0].payload.(models.MUserPricesUpdate)
	require.Len(t, update.Data.Products, 2)

	broken := update.Data.Products[0]
	assert.Nil(t, broken.BuyingPrice, "unresolved variable renders as null")
	require.NotNil(t, broken.SellingPrice)
	assert.InDelta(t, 34.45, *broken.SellingPrice, 1e-9)

	healthy := update.Data.Products[1]
	require.NotNil(t, healthy.BuyingPrice)
	assert.InDelta(t, 34.20, *healthy.BuyingPrice, 1e-9)
}

func TestRecomputeExpiredUserExcluded(t *testing.T) {
	t.Parallel()
	f := newFixture(t, time.Millisecond)

	_, err := f.store.Upsert("USD/TRY", "p1", "primary", "TRY", 34.20, 34.45)
	require.NoError(t, err)

	userID := f.db.AddUser(models.MUser{
		Username: "expired", Active: true, SelectedProviderID: "p1", SiteOpen: true,
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	f.pub.setOnline(server.UserChannel(userID))

	f.dispatcher.recompute("p1")
	assert.Empty(t, f.pub.all())
}
