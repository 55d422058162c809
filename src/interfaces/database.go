package interfaces

import (
	"time"

	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations. Implementations:
// SQLite (default), Postgres, and an in-memory store used by tests.
//
// Identifiers are plain strings minted here, at the persistence boundary;
// business logic never inspects their shape.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// Initialize sets up the schema and tables.
	Initialize() error

	// Close the database connection
	Close() error

	// -----------------------------------------------------------------------------
	// Providers

	FindProviderByName(name string) (*models.MProvider, error)
	InsertProvider(p *models.MProvider) (string, error)
	UpdateProviderStatus(id string, status models.MProviderStatus) error
	ListProviders() ([]models.MProvider, error)

	// -----------------------------------------------------------------------------
	// Field mappings

	FindActiveMappings(providerID string) ([]models.MFieldMapping, error)
	FindMapping(providerID, field string) (*models.MFieldMapping, error)

	// -----------------------------------------------------------------------------
	// Current prices

	// UpsertCurrentPrice has replace-by-(symbol, provider_id) semantics.
	UpsertCurrentPrice(q *models.MQuote) error
	QueryCurrentPrices(filter models.MPriceFilter) ([]models.MQuote, error)
	DistinctSymbols(filter models.MPriceFilter) ([]string, error)

	// -----------------------------------------------------------------------------
	// History and run logs

	InsertHistoryBatch(entries []models.MHistoryEntry) error
	DeleteHistoryOlderThan(cutoff time.Time) (int64, error)
	InsertRunLog(r *models.MRunLog) error
	DeleteRunLogsOlderThan(cutoff time.Time) (int64, error)

	// -----------------------------------------------------------------------------
	// Users, products, tokens

	FindUserProductsByUser(userID string, activeOnly bool) ([]models.MUserProduct, error)

	// FindUsersBySelectedProvider performs the join across user, entitlement
	// and token state: active unexpired accounts whose pricing source is the
	// given provider and which either hold no token at all or hold at least
	// one active unexpired token.
	FindUsersBySelectedProvider(providerID string) ([]models.MUser, error)

	FindAccessToken(token string) (*models.MAccessToken, error)
}
