package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libreshield/shieldd/internal/shield/domain"
)

// stubBloom records adds and answers MightContain from a fixed set.
type stubBloom struct {
	added map[string]struct{}
}

func newStubBloom() *stubBloom { return &stubBloom{added: make(map[string]struct{})} }

func (b *stubBloom) Add(key []byte) { b.added[string(key)] = struct{}{} }

func (b *stubBloom) MightContain(key []byte) bool {
	_, ok := b.added[string(key)]
	return ok
}

// countingCache wraps a map so tests can observe puts.
type countingCache struct {
	entries map[string]Match
	puts    int
}

func newCountingCache() *countingCache { return &countingCache{entries: make(map[string]Match)} }

func (c *countingCache) Get(host string) (Match, bool) {
	m, ok := c.entries[host]
	return m, ok
}
func (c *countingCache) Put(host string, m Match) { c.entries[host] = m; c.puts++ }
func (c *countingCache) Len() int                 { return len(c.entries) }
func (c *countingCache) Purge()                   { c.entries = make(map[string]Match) }
func (c *countingCache) Stats() (uint64, uint64, uint64) {
	return 0, 0, 0
}

func testSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.BlockedDomains = []string{"ads.com", "casino.net"}
	s.AllowedSites = []string{"good.ads.com"}
	s.BlockedKeywords = []string{"poker"}
	return s
}

func TestIndex_BlockedSuffixSemantics(t *testing.T) {
	ix := NewIndex(testSettings(), nil, nil)

	tests := []struct {
		name    string
		host    string
		blocked bool
	}{
		{"exact entry", "ads.com", true},
		{"subdomain", "x.ads.com", true},
		{"uppercase input", "X.ADS.COM", true},
		{"embedded entry is not a suffix", "myads.com.evil.com", false},
		{"unrelated host", "example.org", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, blocked := ix.Blocked(tc.host)
			assert.Equal(t, tc.blocked, blocked)
		})
	}
}

func TestIndex_AllowlistWinsOverBlocklist(t *testing.T) {
	ix := NewIndex(testSettings(), nil, nil)

	entry, allowed := ix.Allowed("good.ads.com")
	assert.True(t, allowed)
	assert.Equal(t, "good.ads.com", entry)

	_, blocked := ix.Blocked("good.ads.com")
	assert.False(t, blocked, "allowlisted host must not report as blocked")

	// A deeper name under the allowlist entry inherits the allow.
	_, allowed = ix.Allowed("sub.good.ads.com")
	assert.True(t, allowed)
}

func TestIndex_BloomPrunesNonMatchingHosts(t *testing.T) {
	bloom := newStubBloom()
	cache := newCountingCache()
	ix := NewIndex(testSettings(), bloom, cache)

	assert.Contains(t, bloom.added, "ads.com")
	assert.Contains(t, bloom.added, "good.ads.com")
	assert.Contains(t, bloom.added, "casino.net")

	_, blocked := ix.Blocked("nothing.example.org")
	assert.False(t, blocked)
	assert.Zero(t, cache.puts, "bloom miss must short-circuit before the cache")

	_, blocked = ix.Blocked("deep.x.ads.com")
	assert.True(t, blocked, "suffix anchor walk finds ads.com")
}

func TestIndex_CachesComputedMatches(t *testing.T) {
	cache := newCountingCache()
	ix := NewIndex(testSettings(), nil, cache)

	_, blocked := ix.Blocked("x.ads.com")
	assert.True(t, blocked)
	assert.Equal(t, 1, cache.puts)

	// Second lookup is served from the cache, no new put.
	_, blocked = ix.Blocked("x.ads.com")
	assert.True(t, blocked)
	assert.Equal(t, 1, cache.puts)

	// Cached entry must agree with Allowed too.
	_, allowed := ix.Allowed("x.ads.com")
	assert.False(t, allowed)
}

func TestIndex_SettingsAccessors(t *testing.T) {
	s := testSettings()
	s.BlockPageMessage = "go outside"
	ix := NewIndex(s, nil, nil)

	assert.True(t, ix.Enabled())
	assert.Equal(t, []string{"poker"}, ix.Keywords())
	assert.Equal(t, "go outside", ix.Message())

	snap := ix.Settings()
	snap.BlockedDomains[0] = "mutated.com"
	_, blocked := ix.Blocked("ads.com")
	assert.True(t, blocked, "accessor copies must not leak internal state")
}

func TestHolder_SwapPublishesFreshIndex(t *testing.T) {
	holder, err := NewHolder(testSettings(), HolderOptions{})
	require.NoError(t, err)

	_, blocked := holder.Current().Blocked("x.ads.com")
	assert.True(t, blocked)

	next := testSettings()
	next.BlockedDomains = []string{"other.com"}
	require.NoError(t, holder.Swap(next))

	_, blocked = holder.Current().Blocked("x.ads.com")
	assert.False(t, blocked, "swap must discard the old lists")
	_, blocked = holder.Current().Blocked("x.other.com")
	assert.True(t, blocked)
}

func TestHolder_CapturedIndexIsStableAcrossSwap(t *testing.T) {
	holder, err := NewHolder(testSettings(), HolderOptions{})
	require.NoError(t, err)

	captured := holder.Current()

	next := testSettings()
	next.BlockedDomains = nil
	require.NoError(t, holder.Swap(next))

	// A decision that grabbed the old index keeps observing one instant.
	_, blocked := captured.Blocked("x.ads.com")
	assert.True(t, blocked)
}

func TestHolder_CacheRebuiltPerSwap(t *testing.T) {
	caches := []*countingCache{}
	holder, err := NewHolder(testSettings(), HolderOptions{
		NewCache: func() (DecisionCache, error) {
			c := newCountingCache()
			caches = append(caches, c)
			return c, nil
		},
	})
	require.NoError(t, err)

	holder.Current().Blocked("x.ads.com")
	require.NoError(t, holder.Swap(testSettings()))

	require.Len(t, caches, 2)
	assert.Equal(t, 1, caches[0].puts)
	assert.Equal(t, 0, caches[1].puts, "new index starts with an empty cache")
}
