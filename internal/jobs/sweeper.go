// Package jobs runs periodic housekeeping for the on-disk batch data.
package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper deletes top-level entries of its directories once they are older
// than MaxAge. Batch directories and cached thumbnails both live one level
// below the configured roots.
type Sweeper struct {
	cron   *cron.Cron
	dirs   []string
	maxAge time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func NewSweeper(dirs []string, maxAge time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		cron:   cron.New(),
		dirs:   dirs,
		maxAge: maxAge,
		now:    time.Now,
		log:    log,
	}
}

func (s *Sweeper) Start(schedule string) error {
	if s.maxAge <= 0 {
		s.log.Info().Msg("sweeper disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish or for ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) run() {
	removed, err := s.Sweep()
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		return
	}
	s.log.Info().Int("removed", removed).Msg("sweep finished")
}

// Sweep removes expired entries and returns how many were deleted.
func (s *Sweeper) Sweep() (int, error) {
	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("read %s: %w", dir, err)
		}
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}
