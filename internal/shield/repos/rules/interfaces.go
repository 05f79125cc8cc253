package rules

// ListKind identifies which list, if any, a hostname matched.
type ListKind uint8

const (
	// ListNone means no list entry matched.
	ListNone ListKind = iota
	// ListAllow means an allowlist entry matched. Allowlist membership wins
	// over blocklist membership for the same host.
	ListAllow
	// ListBlock means a blocklist entry matched (and no allowlist entry did).
	ListBlock
)

// Match is the outcome of evaluating a hostname against the static lists.
// It is a pure function of the list contents, which makes it safe to cache;
// overrides are never part of a Match.
type Match struct {
	List  ListKind
	Entry string // the list entry that matched, empty for ListNone
}

// BloomFilter is the minimal interface the index needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds a BloomFilter sized for capacity at a target FP rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches list matches by canonical hostname with basic metrics.
type DecisionCache interface {
	Get(host string) (Match, bool)
	Put(host string, m Match)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}
