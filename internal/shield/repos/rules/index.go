package rules

import (
	"strings"

	"github.com/libreshield/shieldd/internal/shield/domain"
)

// Index is an immutable view of one settings snapshot plus the lookup
// structures built from it: a Bloom prefilter over every list entry for
// early "nothing can match" answers, and an LRU cache of computed matches.
// A decision that captures an Index observes one consistent instant; list
// mutations build a fresh Index and swap it via Holder.
type Index struct {
	settings domain.Settings
	allow    []string // canonicalized allowlist entries, stored order
	block    []string // canonicalized blocklist entries, stored order
	bloom    BloomFilter
	cache    DecisionCache
}

// NewIndex builds an Index for the settings snapshot. bloom and cache may be
// nil, which disables the respective fast path (full scans still work).
func NewIndex(settings domain.Settings, bloom BloomFilter, cache DecisionCache) *Index {
	ix := &Index{
		settings: settings.Clone(),
		allow:    canonicalize(settings.AllowedSites),
		block:    canonicalize(settings.BlockedDomains),
		bloom:    bloom,
		cache:    cache,
	}
	if bloom != nil {
		for _, e := range ix.allow {
			bloom.Add([]byte(e))
		}
		for _, e := range ix.block {
			bloom.Add([]byte(e))
		}
	}
	return ix
}

// Settings returns the snapshot this index was built from.
func (ix *Index) Settings() domain.Settings { return ix.settings.Clone() }

// Enabled reports the snapshot's kill switch.
func (ix *Index) Enabled() bool { return ix.settings.IsBlockingEnabled }

// Keywords returns the snapshot's keyword list in stored order.
func (ix *Index) Keywords() []string { return ix.settings.BlockedKeywords }

// Message returns the snapshot's block page message.
func (ix *Index) Message() string { return ix.settings.BlockPageMessage }

// Allowed reports whether host matches the allowlist, returning the entry.
func (ix *Index) Allowed(host string) (string, bool) {
	m := ix.match(host)
	return m.Entry, m.List == ListAllow
}

// Blocked reports whether host matches the blocklist and no allowlist entry
// shadows it, returning the entry.
func (ix *Index) Blocked(host string) (string, bool) {
	m := ix.match(host)
	return m.Entry, m.List == ListBlock
}

// match applies the bloom -> cache -> scan pipeline for a hostname.
func (ix *Index) match(host string) Match {
	cn := domain.CanonicalHost(host)
	if cn == "" {
		return Match{}
	}
	// 1) bloom: early-none if no suffix anchor can be a list entry
	if !ix.checkBloom(cn) {
		return Match{}
	}
	// 2) cache
	if ix.cache != nil {
		if m, ok := ix.cache.Get(cn); ok {
			return m
		}
	}
	// 3) scan, allowlist first (allow precedence)
	m := Match{}
	if entry, ok := domain.HostMatchesAny(cn, ix.allow); ok {
		m = Match{List: ListAllow, Entry: entry}
	} else if entry, ok := domain.HostMatchesAny(cn, ix.block); ok {
		m = Match{List: ListBlock, Entry: entry}
	}
	// 4) remember
	if ix.cache != nil {
		ix.cache.Put(cn, m)
	}
	return m
}

// checkBloom returns true when a list entry might match the hostname: it
// tests every dot-boundary suffix anchor of the canonical name, since a list
// entry matches exactly when it equals one of those anchors.
func (ix *Index) checkBloom(cn string) bool {
	if ix.bloom == nil {
		return true
	}
	a := cn
	for {
		if ix.bloom.MightContain([]byte(a)) {
			return true
		}
		i := strings.IndexByte(a, '.')
		if i < 0 || i+1 >= len(a) {
			return false
		}
		a = a[i+1:]
	}
}

// CacheStats exposes the decision cache counters for diagnostics.
func (ix *Index) CacheStats() (hits, misses, evictions uint64) {
	if ix.cache == nil {
		return 0, 0, 0
	}
	return ix.cache.Stats()
}

func canonicalize(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if cn := domain.CanonicalHost(e); cn != "" {
			out = append(out, cn)
		}
	}
	return out
}
