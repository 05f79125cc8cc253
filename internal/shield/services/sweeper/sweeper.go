// Package sweeper runs the periodic maintenance loop: expired-override
// sweeps and the daily block-counter reset.
package sweeper

import (
	"context"
	"time"

	"github.com/libreshield/shieldd/internal/shield/common/clock"
	"github.com/libreshield/shieldd/internal/shield/common/log"
)

// OverrideSweeper removes expired overrides, reporting how many were removed.
type OverrideSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// DailyResetter zeroes the daily block counter.
type DailyResetter interface {
	ResetDaily(ctx context.Context) error
}

// Sweeper ticks on a fixed interval. It only touches the override store and
// the stats recorder, never the decision engine.
type Sweeper struct {
	overrides OverrideSweeper
	stats     DailyResetter
	clock     clock.Clock
	logger    log.Logger
	interval  time.Duration

	lastResetDay string
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// New constructs a Sweeper ticking every interval.
func New(overrides OverrideSweeper, stats DailyResetter, clk clock.Clock, logger log.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		overrides: overrides,
		stats:     stats,
		clock:     clk,
		logger:    logger,
		interval:  interval,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins the ticker loop in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.lastResetDay = dayOf(s.clock.Now())
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.doneChan)
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
	s.logger.Info(map[string]any{"interval": s.interval}, "Cleanup scheduler started")
}

// Stop halts the loop and waits for it to drain.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.doneChan
	s.logger.Info(nil, "Cleanup scheduler stopped")
}

// tick performs one maintenance cycle.
func (s *Sweeper) tick(ctx context.Context) {
	removed, err := s.overrides.Sweep(ctx)
	if err != nil {
		s.logger.Warn(map[string]any{"error": err}, "Override sweep failed")
	} else if removed > 0 {
		s.logger.Info(map[string]any{"removed": removed}, "Swept expired overrides")
	}

	if day := dayOf(s.clock.Now()); day != s.lastResetDay {
		if err := s.stats.ResetDaily(ctx); err != nil {
			s.logger.Warn(map[string]any{"error": err}, "Daily stats reset failed")
			return // retry on the next tick, boundary not consumed
		}
		s.lastResetDay = day
	}
}

func dayOf(t time.Time) string {
	return t.Format("2006-01-02")
}
