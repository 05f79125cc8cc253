package domain

import (
	"regexp"
	"strings"
	"sync"
)

// CanonicalHost lowercases a hostname and strips surrounding whitespace and
// any trailing dot, so list entries and observed hostnames compare equal.
func CanonicalHost(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimSuffix(s, ".")
}

// HostMatchesEntry reports whether host matches a list entry under strict
// suffix semantics: host == entry, or host ends with "." + entry.
//
// Bare substring containment is deliberately not supported; entry "ads.com"
// must match "x.ads.com" but never "myads.com.evil.com".
func HostMatchesEntry(host, entry string) bool {
	host = CanonicalHost(host)
	entry = CanonicalHost(entry)
	if host == "" || entry == "" {
		return false
	}
	return host == entry || strings.HasSuffix(host, "."+entry)
}

// HostMatchesAny returns the first entry in the list that host matches, in
// stored order, and whether any matched.
func HostMatchesAny(host string, entries []string) (string, bool) {
	for _, e := range entries {
		if HostMatchesEntry(host, e) {
			return e, true
		}
	}
	return "", false
}

// keywordPatterns memoizes compiled whole-word patterns per keyword. Keyword
// lists are small and stable, so this never grows meaningfully.
var keywordPatterns sync.Map // string -> *regexp.Regexp

// KeywordMatches reports whether keyword occurs in text as a whole word,
// case-insensitively. Empty or whitespace-only keywords never match.
// "sex" matches "talk about sex education" but not "Essex county".
func KeywordMatches(keyword, text string) bool {
	kw := strings.TrimSpace(keyword)
	if kw == "" || text == "" {
		return false
	}
	if v, ok := keywordPatterns.Load(kw); ok {
		return v.(*regexp.Regexp).MatchString(text)
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
	if err != nil {
		return false
	}
	keywordPatterns.Store(kw, re)
	return re.MatchString(text)
}
