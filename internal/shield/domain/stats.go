package domain

// UsageStats tracks how often blocks fire. BlocksToday resets on a daily
// boundary; BlocksByKey is cumulative and never reset by the engine.
type UsageStats struct {
	BlocksToday int            `json:"blocksToday"`
	BlocksByKey map[string]int `json:"blocksByKey"`
}

// NewUsageStats returns zeroed stats with an allocated key map.
func NewUsageStats() UsageStats {
	return UsageStats{BlocksByKey: make(map[string]int)}
}

// StatKey builds the per-rule counter key, e.g. "domain:x.com".
func StatKey(kind RuleKind, value string) string {
	return kind.String() + ":" + value
}

// Clone returns a deep copy safe to hand across goroutines.
func (s UsageStats) Clone() UsageStats {
	out := UsageStats{
		BlocksToday: s.BlocksToday,
		BlocksByKey: make(map[string]int, len(s.BlocksByKey)),
	}
	for k, v := range s.BlocksByKey {
		out.BlocksByKey[k] = v
	}
	return out
}
