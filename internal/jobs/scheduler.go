// Package jobs manages background tasks (cron): the per-minute chip-reset
// sweep and the hourly garbage collection of expired dedupe records.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/repo"
	"github.com/retroplay/arcade-backend/internal/services"
)

// Scheduler owns the cron instance and the services its jobs drive.
type Scheduler struct {
	cron  *cron.Cron
	db    *gorm.DB
	reset *services.ResetService
}

// NewScheduler constructs a scheduler running in UTC, matching the
// engine's timestamps.
func NewScheduler(db *gorm.DB, reset *services.ResetService) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithLocation(time.UTC)),
		db:    db,
		reset: reset,
	}
}

// Start registers and launches the background jobs.
func (s *Scheduler) Start(ctx context.Context) {
	// Chip resets are due on rolling per-account anchors, so sweep often.
	s.cron.AddFunc("* * * * *", func() {
		n, err := s.reset.RunDue(ctx)
		if err != nil {
			log.Error().Err(err).Msg("chip reset sweep failed")
			return
		}
		if n > 0 {
			log.Info().Int("accounts", n).Msg("chip resets granted")
		}
	})

	// Expired dedupe records are dead weight; collect hourly.
	s.cron.AddFunc("0 * * * *", func() {
		n, err := repo.DeleteExpiredOperations(ctx, s.db, time.Now().UTC())
		if err != nil {
			log.Error().Err(err).Msg("operation record GC failed")
			return
		}
		if n > 0 {
			log.Debug().Int64("deleted", n).Msg("expired operation records collected")
		}
	})

	s.cron.Start()
	log.Info().Msg("background scheduler started (UTC)")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("background scheduler stopped")
}
