// Package override holds time-boxed exceptions to blocking: pure data plus
// expiry logic. Expired entries are filtered lazily on every read, so
// correctness never depends on the sweeper having run.
package override

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/libreshield/shieldd/internal/shield/common/clock"
	"github.com/libreshield/shieldd/internal/shield/common/log"
	"github.com/libreshield/shieldd/internal/shield/domain"
)

// Saver persists the active override set after a mutation.
type Saver interface {
	SaveOverrides(ctx context.Context, overrides []domain.Override) error
}

// Store keeps at most one live override per (kind, value) pair.
type Store struct {
	mu     sync.Mutex
	byKey  map[string]domain.Override
	clock  clock.Clock
	saver  Saver
	logger log.Logger
}

// Options configures a Store.
type Options struct {
	Clock  clock.Clock
	Saver  Saver
	Logger log.Logger
	// Initial seeds the store with previously persisted overrides.
	Initial []domain.Override
}

// New constructs a Store, seeding it from previously persisted overrides.
// Already-expired seed entries are dropped on load.
func New(opts Options) *Store {
	s := &Store{
		byKey:  make(map[string]domain.Override),
		clock:  opts.Clock,
		saver:  opts.Saver,
		logger: opts.Logger,
	}
	now := s.clock.Now()
	for _, o := range opts.Initial {
		if o.Expired(now) {
			continue
		}
		s.byKey[o.Key()] = o
	}
	return s
}

// Grant creates an override for (kind, value) lasting minutes, replacing any
// existing override for the same pair (last write wins, fresh expiry).
func (s *Store) Grant(ctx context.Context, kind domain.RuleKind, value string, minutes int) (domain.Override, error) {
	o, err := domain.NewOverride(kind, value, minutes, s.clock.Now())
	if err != nil {
		return domain.Override{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[o.Key()] = o
	if err := s.persistLocked(ctx); err != nil {
		delete(s.byKey, o.Key())
		return domain.Override{}, err
	}

	s.logger.Info(map[string]any{
		"kind":    kind.String(),
		"value":   o.Value,
		"minutes": minutes,
		"expires": o.ExpiresAt,
	}, "Override granted")
	return o, nil
}

// IsActive reports whether an unexpired override of the given kind covers
// value at the given instant. Domain overrides match exact-or-suffix;
// keyword overrides match by case-insensitive equality.
func (s *Store) IsActive(kind domain.RuleKind, value string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.byKey {
		if !o.Expired(now) && o.Matches(kind, value) {
			return true
		}
	}
	return false
}

// ListActive returns the unexpired overrides at the given instant, ordered by
// expiry. Pure read: it does not remove expired entries from the store.
func (s *Store) ListActive(now time.Time) []domain.Override {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Override, 0, len(s.byKey))
	for _, o := range s.byKey {
		if !o.Expired(now) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

// Remove deletes an override by id. Removing an unknown id is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, o := range s.byKey {
		if o.ID == id {
			delete(s.byKey, key)
			return s.persistLocked(ctx)
		}
	}
	return nil
}

// Sweep removes every entry with expiresAt <= now and reports how many went.
// A grant racing in for a different pair is unaffected: the sweep only
// deletes entries it observed as expired under the lock.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, o := range s.byKey {
		if o.Expired(now) {
			delete(s.byKey, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.persistLocked(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

// ReplaceAll swaps the full override set, used by settings import and reset.
func (s *Store) ReplaceAll(ctx context.Context, overrides []domain.Override) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey = make(map[string]domain.Override, len(overrides))
	for _, o := range overrides {
		if o.Expired(now) {
			continue
		}
		s.byKey[o.Key()] = o
	}
	return s.persistLocked(ctx)
}

// persistLocked writes the current set through the saver. Callers hold s.mu.
func (s *Store) persistLocked(ctx context.Context) error {
	if s.saver == nil {
		return nil
	}
	all := make([]domain.Override, 0, len(s.byKey))
	for _, o := range s.byKey {
		all = append(all, o)
	}
	return s.saver.SaveOverrides(ctx, all)
}
