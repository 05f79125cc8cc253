package domain

// DefaultBlockPageMessage is shown on the block page when the user has not
// customized one.
const DefaultBlockPageMessage = "I don't need this."

// Settings is the read model the Decision Engine consumes per decision.
// It is treated as an immutable snapshot at decision time.
type Settings struct {
	BlockedDomains    []string `json:"blockedDomains"`
	BlockedKeywords   []string `json:"blockedKeywords"`
	AllowedSites      []string `json:"allowedSites"`
	IsBlockingEnabled bool     `json:"isBlockingEnabled"`
	BlockPageMessage  string   `json:"blockPageMessage"`
	Theme             string   `json:"theme"`
}

// DefaultSettings returns the first-run settings: blocking on, empty lists.
func DefaultSettings() Settings {
	return Settings{
		BlockedDomains:    []string{},
		BlockedKeywords:   []string{},
		AllowedSites:      []string{},
		IsBlockingEnabled: true,
		BlockPageMessage:  DefaultBlockPageMessage,
		Theme:             "light",
	}
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	out := s
	out.BlockedDomains = append([]string{}, s.BlockedDomains...)
	out.BlockedKeywords = append([]string{}, s.BlockedKeywords...)
	out.AllowedSites = append([]string{}, s.AllowedSites...)
	return out
}

// MergeDefaults fills unset fields from DefaultSettings without clobbering
// values that already exist, mirroring first-install behavior.
func (s Settings) MergeDefaults() Settings {
	d := DefaultSettings()
	out := s.Clone()
	if out.BlockedDomains == nil {
		out.BlockedDomains = d.BlockedDomains
	}
	if out.BlockedKeywords == nil {
		out.BlockedKeywords = d.BlockedKeywords
	}
	if out.AllowedSites == nil {
		out.AllowedSites = d.AllowedSites
	}
	if out.BlockPageMessage == "" {
		out.BlockPageMessage = d.BlockPageMessage
	}
	if out.Theme == "" {
		out.Theme = d.Theme
	}
	return out
}

// Record is the full persisted state: settings plus overrides, the optional
// credential, and usage stats. Export and import operate on this shape and
// must round-trip it exactly.
type Record struct {
	Settings
	Overrides  []Override  `json:"overrides"`
	Credential *Credential `json:"credential,omitempty"`
	UsageStats UsageStats  `json:"usageStats"`
}

// DefaultRecord returns the first-run persisted state.
func DefaultRecord() Record {
	return Record{
		Settings:   DefaultSettings(),
		Overrides:  []Override{},
		UsageStats: NewUsageStats(),
	}
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{
		Settings:   r.Settings.Clone(),
		Overrides:  append([]Override{}, r.Overrides...),
		UsageStats: r.UsageStats.Clone(),
	}
	if r.Credential != nil {
		c := r.Credential.Clone()
		out.Credential = &c
	}
	return out
}
