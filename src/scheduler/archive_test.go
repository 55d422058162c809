package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-relay/src/logger"
	"price-relay/src/models"
	"price-relay/src/pricestore"
	"price-relay/src/storage"
)

// capturePublisher records service alerts for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *capturePublisher) Publish(channel, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, channel+"/"+event)
}

func (p *capturePublisher) HasSubscribers(string) bool { return true }

// -----------------------------------------------------------------------------

func newArchiveFixture(t *testing.T) (*ArchiveScheduler, *storage.MemoryDB, *pricestore.Store) {
	t.Helper()
	db := storage.NewMemoryDB()
	log := logger.NewLogger("error", "archive-test")
	store := pricestore.NewStore(db, log)
	return NewArchiveScheduler(db, store, &capturePublisher{}, log, 30), db, store
}

func TestArchiveRunSnapshotsActiveQuotes(t *testing.T) {
	t.Parallel()
	s, db, store := newArchiveFixture(t)

	_, err := store.Upsert("USD/TRY", "p1", "primary", "TRY", 34.20, 34.45)
	require.NoError(t, err)
	_, err = store.Upsert("EUR/TRY", "p1", "primary", "TRY", 36.10, 36.40)
	require.NoError(t, err)
	_, err = store.Upsert("XAU/TRY", "p2", "backup", "TRY", 2900, 2910)
	require.NoError(t, err)
	store.Deactivate("p2")

	s.RunOnce()

	history := db.History()
	require.Len(t, history, 2, "deactivated quotes are not archived")
	for _, e := range history {
		assert.Equal(t, "p1", e.ProviderID)
		assert.False(t, e.ArchivedAt.IsZero())
	}

	logs := db.RunLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "archive", logs[0].Job)
	assert.True(t, logs[0].Success)
	assert.Equal(t, 2, logs[0].Count)
	assert.False(t, logs[0].Skipped)
}

func TestArchiveRunWithNoQuotesIsSuccess(t *testing.T) {
	t.Parallel()
	s, db, _ := newArchiveFixture(t)

	s.RunOnce()

	logs := db.RunLogs()
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Zero(t, logs[0].Count)
	assert.Empty(t, db.History())
}

func TestArchiveOverlappingRunSkipped(t *testing.T) {
	t.Parallel()
	s, db, _ := newArchiveFixture(t)

	// Simulate an in-flight run.
	require.True(t, s.running.CompareAndSwap(false, true))
	s.RunOnce()
	s.running.Store(false)

	logs := db.RunLogs()
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Skipped)
	assert.False(t, logs[0].Success)
	assert.Empty(t, db.History())

	// Once the flight clears, runs proceed again.
	s.RunOnce()
	logs = db.RunLogs()
	require.Len(t, logs, 2)
	assert.False(t, logs[1].Skipped)
	assert.True(t, logs[1].Success)
}

// -----------------------------------------------------------------------------

func TestRetentionOutsideCleanupHourDoesNothing(t *testing.T) {
	t.Parallel()
	db := storage.NewMemoryDB()
	log := logger.NewLogger("error", "retention-test")

	s := NewRetentionScheduler(db, &capturePublisher{}, log, models.MArchiveConfig{
		CleanupHour: 3, HistoryRetentionDays: 90, LogRetentionDays: 30,
	})
	s.now = func() time.Time { return time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC) }

	s.RunOnce()
	assert.Empty(t, db.RunLogs())
}

func TestRetentionPurgesWithIndependentWindows(t *testing.T) {
	t.Parallel()
	db := storage.NewMemoryDB()
	log := logger.NewLogger("error", "retention-test")

	now := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)

	// One history entry inside the 90-day window, one outside.
	require.NoError(t, db.InsertHistoryBatch([]models.MHistoryEntry{
		{Symbol: "USD/TRY", ProviderID: "p1", ArchivedAt: now.AddDate(0, 0, -10)},
		{Symbol: "USD/TRY", ProviderID: "p1", ArchivedAt: now.AddDate(0, 0, -120)},
	}))
	// One run log inside the 30-day window, one outside.
	require.NoError(t, db.InsertRunLog(&models.MRunLog{Job: "archive", StartedAt: now.AddDate(0, 0, -5)}))
	require.NoError(t, db.InsertRunLog(&models.MRunLog{Job: "archive", StartedAt: now.AddDate(0, 0, -45)}))

	s := NewRetentionScheduler(db, &capturePublisher{}, log, models.MArchiveConfig{
		CleanupHour: 3, HistoryRetentionDays: 90, LogRetentionDays: 30,
	})
	s.now = func() time.Time { return now }

	s.RunOnce()

	assert.Len(t, db.History(), 1)

	logs := db.RunLogs()
	// The stale run log is gone; the fresh one plus this run's own record remain.
	require.Len(t, logs, 2)
	last := logs[len(logs)-1]
	assert.Equal(t, "retention", last.Job)
	assert.True(t, last.Success)
	assert.Equal(t, 2, last.Count, "one history row and one run log purged")
}
