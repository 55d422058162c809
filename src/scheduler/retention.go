package scheduler

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// RetentionScheduler wakes hourly but only purges when the local hour equals
// the configured cleanup hour, so deletion work happens once per day.
// History and run-log retention windows are independent.
// -----------------------------------------------------------------------------

type RetentionScheduler struct {
	DB        interfaces.IDatabase
	Publisher interfaces.IPublisher
	Logger    *logger.Logger

	CleanupHour          int
	HistoryRetentionDays int
	LogRetentionDays     int

	cron    *cron.Cron
	running atomic.Bool
	now     func() time.Time
}

// -----------------------------------------------------------------------------

func NewRetentionScheduler(db interfaces.IDatabase, pub interfaces.IPublisher, log *logger.Logger, cfg models.MArchiveConfig) *RetentionScheduler {
	return &RetentionScheduler{
		DB:                   db,
		Publisher:            pub,
		Logger:               log,
		CleanupHour:          cfg.CleanupHour,
		HistoryRetentionDays: cfg.HistoryRetentionDays,
		LogRetentionDays:     cfg.LogRetentionDays,
		now:                  time.Now,
	}
}

// -----------------------------------------------------------------------------

func (s *RetentionScheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("0 * * * *", s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.Logger.Info("Retention scheduler started (cleanup hour %02d:00, history %dd, logs %dd)",
		s.CleanupHour, s.HistoryRetentionDays, s.LogRetentionDays)
	return nil
}

// -----------------------------------------------------------------------------

// Stop rejects new runs; an in-flight run completes.
func (s *RetentionScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.Logger.Info("Retention scheduler stopped")
}

// -----------------------------------------------------------------------------

// RunOnce is the hourly check. Outside the cleanup hour it does nothing.
func (s *RetentionScheduler) RunOnce() {
	if s.now().Hour() != s.CleanupHour {
		s.Logger.Debug("Retention check: outside cleanup hour, nothing to do")
		return
	}

	if !s.running.CompareAndSwap(false, true) {
		s.Logger.Warning("Retention run skipped: previous run still in flight")
		s.logRun(&models.MRunLog{
			Job:       "retention",
			StartedAt: s.now(),
			Skipped:   true,
			Success:   false,
		})
		return
	}
	defer s.running.Store(false)

	started := s.now()
	run := models.MRunLog{Job: "retention", StartedAt: started}

	historyCutoff := started.AddDate(0, 0, -s.HistoryRetentionDays)
	if n, err := s.DB.DeleteHistoryOlderThan(historyCutoff); err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("history purge: %v", err))
	} else {
		run.Count += int(n)
	}

	logCutoff := started.AddDate(0, 0, -s.LogRetentionDays)
	if n, err := s.DB.DeleteRunLogsOlderThan(logCutoff); err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("run log purge: %v", err))
	} else {
		run.Count += int(n)
	}

	run.Duration = s.now().Sub(started)
	run.Success = len(run.Errors) == 0
	s.logRun(&run)

	if run.Success {
		s.Logger.Info("Retention purged %d rows in %s", run.Count, run.Duration.Round(time.Millisecond))
	} else {
		s.Logger.Error("Retention run failed: %v", run.Errors)
		s.alert(fmt.Sprintf("retention run failed: %v", run.Errors))
	}
}

// -----------------------------------------------------------------------------

func (s *RetentionScheduler) logRun(run *models.MRunLog) {
	if err := s.DB.InsertRunLog(run); err != nil {
		s.Logger.Error("Failed to record retention run log: %v", err)
	}
}

func (s *RetentionScheduler) alert(message string) {
	if s.Publisher == nil {
		return
	}
	s.Publisher.Publish("system", "service_alert", models.MServiceAlert{
		Service: "retention",
		Message: message,
	})
}
