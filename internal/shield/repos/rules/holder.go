package rules

import (
	"sync"

	"github.com/libreshield/shieldd/internal/shield/domain"
)

// HolderOptions configures how fresh indexes are built on each swap.
type HolderOptions struct {
	Factory  BloomFactory
	FPRate   float64
	NewCache func() (DecisionCache, error)
}

// Holder owns the current Index and swaps in a complete replacement on every
// settings mutation. Readers grab the current pointer once per decision, so a
// single decision never mixes pre- and post-mutation list state.
type Holder struct {
	mu   sync.RWMutex
	idx  *Index
	opts HolderOptions
}

// NewHolder builds a Holder seeded with an index for the given settings.
func NewHolder(settings domain.Settings, opts HolderOptions) (*Holder, error) {
	h := &Holder{opts: opts}
	if err := h.Swap(settings); err != nil {
		return nil, err
	}
	return h, nil
}

// Current returns the live index.
func (h *Holder) Current() *Index {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idx
}

// Swap builds a new Index for the settings snapshot and publishes it.
// The old index (and its cache) is discarded wholesale, so no stale match
// survives a list edit.
func (h *Holder) Swap(settings domain.Settings) error {
	var bloom BloomFilter
	if h.opts.Factory != nil {
		n := uint64(len(settings.AllowedSites) + len(settings.BlockedDomains))
		bloom = h.opts.Factory.New(n, h.opts.FPRate)
	}
	var cache DecisionCache
	if h.opts.NewCache != nil {
		c, err := h.opts.NewCache()
		if err != nil {
			return err
		}
		cache = c
	}
	idx := NewIndex(settings, bloom, cache)

	h.mu.Lock()
	h.idx = idx
	h.mu.Unlock()
	return nil
}
