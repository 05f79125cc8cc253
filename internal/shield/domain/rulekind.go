package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RuleKind identifies what an override or block counter refers to.
//
// domain  - a hostname, matched exact-or-suffix
// keyword - a page-content keyword, matched case-insensitively as a whole word
type RuleKind uint8

const (
	// RuleDomain targets a hostname.
	RuleDomain RuleKind = iota
	// RuleKeyword targets a page-content keyword.
	RuleKeyword
)

// String returns a stable string representation of the rule kind.
func (k RuleKind) String() string {
	switch k {
	case RuleDomain:
		return "domain"
	case RuleKeyword:
		return "keyword"
	default:
		return fmt.Sprintf("RuleKind(%d)", k)
	}
}

// ParseRuleKind converts a string into a RuleKind.
// Accepts: "domain", "keyword" (case-insensitive).
func ParseRuleKind(s string) (RuleKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "domain":
		return RuleDomain, nil
	case "keyword":
		return RuleKeyword, nil
	default:
		return 0, fmt.Errorf("%w: unsupported rule kind %q", ErrInvalidInput, s)
	}
}

// MarshalJSON encodes the kind as its string name so persisted records
// stay readable and stable across versions.
func (k RuleKind) MarshalJSON() ([]byte, error) {
	switch k {
	case RuleDomain, RuleKeyword:
		return json.Marshal(k.String())
	default:
		return nil, fmt.Errorf("unsupported RuleKind: %d", k)
	}
}

// UnmarshalJSON decodes a string-named kind.
func (k *RuleKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRuleKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
