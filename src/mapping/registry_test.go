package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-relay/src/logger"
	"price-relay/src/models"
	"price-relay/src/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.MemoryDB) {
	t.Helper()
	db := storage.NewMemoryDB()
	return NewRegistry(db, logger.NewLogger("error", "mapping-test")), db
}

func TestReloadAndResolve(t *testing.T) {
	t.Parallel()
	r, db := newTestRegistry(t)

	db.AddMapping(models.MFieldMapping{
		ProviderID: "p1", SourceField: "USDTRY", TargetSymbol: "USD/TRY",
		TargetKind: "currency", Multiplier: 1, Active: true,
	})
	db.AddMapping(models.MFieldMapping{
		ProviderID: "p1", SourceField: "GA", TargetSymbol: "XAU/TRY",
		TargetKind: "metal", Multiplier: 1, Active: true,
	})
	db.AddMapping(models.MFieldMapping{
		ProviderID: "p1", SourceField: "OLD", TargetSymbol: "XAG/TRY",
		Active: false,
	})
	db.AddMapping(models.MFieldMapping{
		ProviderID: "p2", SourceField: "USDTRY", TargetSymbol: "USD/TRY",
		Active: true,
	})

	require.NoError(t, r.Reload("p1"))

	m := r.Resolve("p1", "USDTRY")
	require.NotNil(t, m)
	assert.Equal(t, "USD/TRY", m.TargetSymbol)

	assert.Nil(t, r.Resolve("p1", "OLD"), "inactive mappings stay invisible")
	assert.Nil(t, r.Resolve("p1", "UNKNOWN"))
	assert.Nil(t, r.Resolve("p2", "USDTRY"), "p2 was never loaded")
}

func TestReloadSwapsTable(t *testing.T) {
	t.Parallel()
	r, db := newTestRegistry(t)

	id := db.AddMapping(models.MFieldMapping{
		ProviderID: "p1", SourceField: "USDTRY", TargetSymbol: "USD/TRY", Active: true,
	})
	require.NoError(t, r.Reload("p1"))
	require.NotNil(t, r.Resolve("p1", "USDTRY"))
	_ = id

	// Second load sees a different set; the old field disappears atomically.
	db.AddMapping(models.MFieldMapping{
		ProviderID: "p1", SourceField: "EURTRY", TargetSymbol: "EUR/TRY", Active: true,
	})
	require.NoError(t, r.Reload("p1"))
	assert.NotNil(t, r.Resolve("p1", "EURTRY"))
}

func TestResolveReturnsCopy(t *testing.T) {
	t.Parallel()
	r, db := newTestRegistry(t)

	db.AddMapping(models.MFieldMapping{
		ProviderID: "p1", SourceField: "USDTRY", TargetSymbol: "USD/TRY", Active: true,
	})
	require.NoError(t, r.Reload("p1"))

	m := r.Resolve("p1", "USDTRY")
	m.TargetSymbol = "MUTATED"

	assert.Equal(t, "USD/TRY", r.Resolve("p1", "USDTRY").TargetSymbol)
}

func TestSymbols(t *testing.T) {
	t.Parallel()
	r, db := newTestRegistry(t)

	db.AddMapping(models.MFieldMapping{ProviderID: "p1", SourceField: "A", TargetSymbol: "USD/TRY", Active: true})
	db.AddMapping(models.MFieldMapping{ProviderID: "p1", SourceField: "B", TargetSymbol: "USD/TRY", Active: true})
	db.AddMapping(models.MFieldMapping{ProviderID: "p1", SourceField: "C", TargetSymbol: "EUR/TRY", Active: true})
	require.NoError(t, r.Reload("p1"))

	symbols := r.Symbols("p1")
	assert.ElementsMatch(t, []string{"USD/TRY", "EUR/TRY"}, symbols)
}
