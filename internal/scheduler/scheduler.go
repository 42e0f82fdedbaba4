// Package scheduler runs the journal's daily retention pass.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/config"
)

// DefaultPruneTime is used when no prune time is configured.
const DefaultPruneTime = "04:00"

// Pruner deletes journal entries older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler manages the periodic retention task.
type Scheduler struct {
	cfg    config.JournalConfig
	pruner Pruner
	now    func() time.Time
}

// NewScheduler creates a retention scheduler for the journal.
func NewScheduler(cfg config.JournalConfig, pruner Pruner) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		pruner: pruner,
		now:    time.Now,
	}
}

// Start prunes once, then at the configured time of day until ctx is
// cancelled. A retention of zero days keeps everything.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cfg.RetentionDays <= 0 {
		log.Info().Msg("journal retention disabled")
		return
	}

	log.Info().Int("retention_days", s.cfg.RetentionDays).Msg("scheduler started")

	// The robot is often powered off at the scheduled hour.
	s.RunPrune(ctx)

	for {
		nextRun := NextRun(s.now(), s.cfg.PruneTime)
		sleepDuration := nextRun.Sub(s.now())

		log.Debug().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("journal prune scheduled")

		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		case <-time.After(sleepDuration):
			s.RunPrune(ctx)
		}
	}
}

// RunPrune deletes entries older than the retention window.
func (s *Scheduler) RunPrune(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)

	removed, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("journal prune failed")
		return 0, err
	}

	log.Info().
		Int64("removed", removed).
		Time("cutoff", cutoff).
		Msg("journal prune completed")
	return removed, nil
}

// NextRun returns the next occurrence of the HH:MM time of day strictly
// after now. An empty or malformed value falls back to DefaultPruneTime.
func NextRun(now time.Time, hhmm string) time.Time {
	hour, minute := 4, 0
	if hhmm != "" {
		if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil ||
			hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			hour, minute = 4, 0
		}
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
