package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Override duration bounds, in minutes.
const (
	MinOverrideMinutes = 1
	MaxOverrideMinutes = 1440 // 24h
)

// Override is a time-boxed exception letting a normally-blocked domain or
// keyword through until ExpiresAt. At most one live override exists per
// (kind, value) pair; granting again replaces the old record.
type Override struct {
	ID              string    `json:"id"`
	Kind            RuleKind  `json:"kind"`
	Value           string    `json:"value"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	DurationMinutes int       `json:"durationMinutes"`
}

// NewOverride constructs a validated Override starting at now.
// The value is canonicalized: hostnames are lowercased with trailing dots
// stripped, keywords are trimmed (matching is case-insensitive anyway).
func NewOverride(kind RuleKind, value string, minutes int, now time.Time) (Override, error) {
	switch kind {
	case RuleDomain:
		value = CanonicalHost(value)
	case RuleKeyword:
		value = strings.TrimSpace(value)
	}
	if value == "" {
		return Override{}, ErrMissingTarget
	}
	if minutes < MinOverrideMinutes || minutes > MaxOverrideMinutes {
		return Override{}, ErrInvalidDuration
	}
	return Override{
		ID:              uuid.NewString(),
		Kind:            kind,
		Value:           value,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
	}, nil
}

// Key returns the uniqueness key for the (kind, value) pair.
func (o Override) Key() string {
	v := o.Value
	if o.Kind == RuleDomain {
		v = CanonicalHost(v)
	} else {
		v = strings.ToLower(strings.TrimSpace(v))
	}
	return o.Kind.String() + ":" + v
}

// Expired reports whether the override is dead at the given instant
// (expiry is inclusive: expiresAt <= now means expired).
func (o Override) Expired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// Matches reports whether an active override of this record's kind covers the
// given value. Domain overrides use exact-or-suffix matching, so an override
// for "example.com" also covers "sub.example.com". Keyword overrides use
// case-insensitive equality, never substring containment.
func (o Override) Matches(kind RuleKind, value string) bool {
	if o.Kind != kind {
		return false
	}
	switch kind {
	case RuleDomain:
		return HostMatchesEntry(value, o.Value)
	case RuleKeyword:
		return strings.EqualFold(strings.TrimSpace(value), o.Value)
	default:
		return false
	}
}
