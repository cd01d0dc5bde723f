package outputs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper removes artifacts older than a retention window on a cron
// schedule, keeping the output store from growing without bound.
type Sweeper struct {
	store     Store
	retention time.Duration
	cron      *cron.Cron
	logger    zerolog.Logger
}

// NewSweeper creates a sweeper. Retention must be positive.
func NewSweeper(store Store, retention time.Duration, logger zerolog.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %v", retention)
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		cron:      cron.New(),
		logger:    logger.With().Str("component", "output_sweeper").Logger(),
	}, nil
}

// Start schedules sweeps on the given cron expression (standard five-field
// format, e.g. "0 3 * * *" for daily at 03:00).
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", schedule).Dur("retention", s.retention).Msg("Output sweeper started")
	return nil
}

// Stop halts scheduled sweeps, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SweepNow runs one sweep immediately and returns how many records were
// removed.
func (s *Sweeper) SweepNow() (int, error) {
	cutoff := time.Now().Add(-s.retention).UnixMilli()
	return s.store.DeleteOlderThan(cutoff)
}

func (s *Sweeper) sweep() {
	removed, err := s.SweepNow()
	if err != nil {
		s.logger.Error().Err(err).Msg("Output sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Swept expired tool outputs")
	}
}
