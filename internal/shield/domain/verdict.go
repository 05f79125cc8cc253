package domain

import "fmt"

// VerdictKind enumerates the possible outcomes of classifying a navigation.
type VerdictKind uint8

const (
	// VerdictAllow lets the navigation proceed.
	VerdictAllow VerdictKind = iota
	// VerdictRedirect sends the navigation to the block page.
	VerdictRedirect
	// VerdictAllowTemporarily lets the navigation proceed because an active
	// override suppressed a block.
	VerdictAllowTemporarily
)

// String returns a stable wire name for the verdict kind.
func (k VerdictKind) String() string {
	switch k {
	case VerdictAllow:
		return "allow"
	case VerdictRedirect:
		return "redirect"
	case VerdictAllowTemporarily:
		return "allow_temporarily"
	default:
		return fmt.Sprintf("VerdictKind(%d)", k)
	}
}

// Verdict is the Decision Engine's answer for one navigation attempt.
// Pure value type, no external dependencies.
type Verdict struct {
	Kind    VerdictKind // allow, redirect, or allow-temporarily
	Reason  string      // user-facing block reason, set for redirects
	Matched string      // list entry or override value that decided the outcome
}

// Allowed reports whether the navigation may proceed (including temporary allows).
func (v Verdict) Allowed() bool { return v.Kind != VerdictRedirect }

// Allow returns a plain allow verdict.
func Allow() Verdict { return Verdict{Kind: VerdictAllow} }

// AllowTemporarily returns an allow verdict attributed to an override.
func AllowTemporarily(matched string) Verdict {
	return Verdict{Kind: VerdictAllowTemporarily, Matched: matched}
}

// RedirectDomain returns a redirect verdict for a blocked hostname.
func RedirectDomain(host, entry string) Verdict {
	return Verdict{
		Kind:    VerdictRedirect,
		Reason:  "Blocked Domain: " + host,
		Matched: entry,
	}
}

// RedirectKeyword returns a redirect verdict for a matched content keyword.
func RedirectKeyword(keyword string) Verdict {
	return Verdict{
		Kind:    VerdictRedirect,
		Reason:  fmt.Sprintf("Content Keyword: %q", keyword),
		Matched: keyword,
	}
}
