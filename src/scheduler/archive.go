package scheduler

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/models"
	"price-relay/src/pricestore"
)

// -----------------------------------------------------------------------------
// ArchiveScheduler snapshots the current price state into the append-only
// history log on a fixed wall-clock grid (:00 and :30 for the default
// 30-minute grid), not relative to process start.
// -----------------------------------------------------------------------------

type ArchiveScheduler struct {
	DB        interfaces.IDatabase
	Store     *pricestore.Store
	Publisher interfaces.IPublisher
	Logger    *logger.Logger
	Grid      time.Duration

	cron    *cron.Cron
	running atomic.Bool
	now     func() time.Time
}

// -----------------------------------------------------------------------------

func NewArchiveScheduler(db interfaces.IDatabase, store *pricestore.Store, pub interfaces.IPublisher, log *logger.Logger, gridMinutes int) *ArchiveScheduler {
	if gridMinutes <= 0 || gridMinutes > 60 {
		gridMinutes = 30
	}
	return &ArchiveScheduler{
		DB:        db,
		Store:     store,
		Publisher: pub,
		Logger:    log,
		Grid:      time.Duration(gridMinutes) * time.Minute,
		now:       time.Now,
	}
}

// -----------------------------------------------------------------------------

// Start registers the cron entry. The cron library delays the first run to
// the next grid boundary, which gives the wall-clock alignment.
func (s *ArchiveScheduler) Start() error {
	mins := int(s.Grid / time.Minute)
	spec := fmt.Sprintf("*/%d * * * *", mins)

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.Logger.Info("Archive scheduler started on a %d-minute grid", mins)
	return nil
}

// -----------------------------------------------------------------------------

// Stop rejects new runs; an in-flight run completes.
func (s *ArchiveScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.Logger.Info("Archive scheduler stopped")
}

// -----------------------------------------------------------------------------

// RunOnce performs a single archive pass. A run that would overlap an
// in-flight one is skipped and logged as skipped, never queued.
func (s *ArchiveScheduler) RunOnce() {
	if !s.running.CompareAndSwap(false, true) {
		s.Logger.Warning("Archive run skipped: previous run still in flight")
		s.logRun(&models.MRunLog{
			Job:       "archive",
			StartedAt: s.now(),
			Skipped:   true,
			Success:   false,
		})
		return
	}
	defer s.running.Store(false)

	started := s.now()
	quotes := s.Store.Snapshot(models.MPriceFilter{ActiveOnly: true})

	run := models.MRunLog{Job: "archive", StartedAt: started}

	if len(quotes) > 0 {
		entries := make([]models.MHistoryEntry, 0, len(quotes))
		for _, q := range quotes {
			entries = append(entries, models.MHistoryEntry{
				Symbol:     q.Symbol,
				ProviderID: q.ProviderID,
				BuyPrice:   q.BuyPrice,
				SellPrice:  q.SellPrice,
				Daily:      q.Daily,
				QuotedAt:   q.LastUpdatedAt,
				ArchivedAt: started,
			})
		}

		if err := s.DB.InsertHistoryBatch(entries); err != nil {
			run.Errors = append(run.Errors, err.Error())
		} else {
			run.Count = len(entries)
		}
	}
	// Zero active quotes is a success with zero archived, not an error.

	run.Duration = s.now().Sub(started)
	run.Success = len(run.Errors) == 0
	s.logRun(&run)

	if run.Success {
		s.Logger.Info("Archived %d quotes in %s", run.Count, run.Duration.Round(time.Millisecond))
	} else {
		s.Logger.Error("Archive run failed: %v", run.Errors)
		s.alert(fmt.Sprintf("archive run failed: %v", run.Errors))
	}
}

// -----------------------------------------------------------------------------

func (s *ArchiveScheduler) logRun(run *models.MRunLog) {
	if err := s.DB.InsertRunLog(run); err != nil {
		s.Logger.Error("Failed to record archive run log: %v", err)
	}
}

func (s *ArchiveScheduler) alert(message string) {
	if s.Publisher == nil {
		return
	}
	s.Publisher.Publish("system", "service_alert", models.MServiceAlert{
		Service: "archive",
		Message: message,
	})
}
