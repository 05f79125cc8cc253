// Package stats records block counters. Every mutation is a read-modify-write
// of the whole UsageStats value under one lock, so recordBlock and resetDaily
// commute without lost updates.
package stats

import (
	"context"
	"sync"

	"github.com/libreshield/shieldd/internal/shield/common/log"
	"github.com/libreshield/shieldd/internal/shield/domain"
)

// Saver persists the updated counters after a mutation.
type Saver interface {
	SaveStats(ctx context.Context, s domain.UsageStats) error
}

// Recorder tracks the daily and cumulative block counters.
type Recorder struct {
	mu     sync.Mutex
	stats  domain.UsageStats
	saver  Saver
	logger log.Logger
}

// New constructs a Recorder seeded from previously persisted counters.
func New(initial domain.UsageStats, saver Saver, logger log.Logger) *Recorder {
	s := initial.Clone()
	if s.BlocksByKey == nil {
		s.BlocksByKey = make(map[string]int)
	}
	return &Recorder{stats: s, saver: saver, logger: logger}
}

// RecordBlock increments blocksToday and the per-rule counter for
// (kind, value), then persists the updated snapshot.
func (r *Recorder) RecordBlock(ctx context.Context, kind domain.RuleKind, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.BlocksToday++
	r.stats.BlocksByKey[domain.StatKey(kind, value)]++
	return r.persistLocked(ctx)
}

// ResetDaily zeroes blocksToday. Cumulative per-rule counters are untouched.
func (r *Recorder) ResetDaily(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.BlocksToday = 0
	if err := r.persistLocked(ctx); err != nil {
		return err
	}
	r.logger.Info(nil, "Daily block counter reset")
	return nil
}

// Snapshot returns a copy of the current counters.
func (r *Recorder) Snapshot() domain.UsageStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats.Clone()
}

// Replace swaps the counters wholesale, used by settings import and reset.
func (r *Recorder) Replace(ctx context.Context, s domain.UsageStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = s.Clone()
	if r.stats.BlocksByKey == nil {
		r.stats.BlocksByKey = make(map[string]int)
	}
	return r.persistLocked(ctx)
}

func (r *Recorder) persistLocked(ctx context.Context) error {
	if r.saver == nil {
		return nil
	}
	return r.saver.SaveStats(ctx, r.stats.Clone())
}
