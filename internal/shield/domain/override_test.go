package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func TestNewOverride_Valid(t *testing.T) {
	o, err := NewOverride(RuleDomain, "Example.COM.", 30, testNow)

	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, RuleDomain, o.Kind)
	assert.Equal(t, "example.com", o.Value, "hostname should be canonicalized")
	assert.Equal(t, testNow, o.CreatedAt)
	assert.Equal(t, testNow.Add(30*time.Minute), o.ExpiresAt)
	assert.Equal(t, 30, o.DurationMinutes)
}

func TestNewOverride_KeywordTrimsValue(t *testing.T) {
	o, err := NewOverride(RuleKeyword, "  poker  ", 5, testNow)

	require.NoError(t, err)
	assert.Equal(t, "poker", o.Value)
}

func TestNewOverride_MissingTarget(t *testing.T) {
	_, err := NewOverride(RuleDomain, "   ", 30, testNow)

	assert.ErrorIs(t, err, ErrMissingTarget)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewOverride_DurationBounds(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		wantErr bool
	}{
		{"zero", 0, true},
		{"negative", -5, true},
		{"minimum", 1, false},
		{"maximum", 1440, false},
		{"above maximum", 1441, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOverride(RuleDomain, "example.com", tc.minutes, testNow)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDuration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOverride_Expired_BoundaryIsInclusive(t *testing.T) {
	o, err := NewOverride(RuleDomain, "example.com", 10, testNow)
	require.NoError(t, err)

	assert.False(t, o.Expired(testNow), "fresh override is live")
	assert.False(t, o.Expired(o.ExpiresAt.Add(-time.Second)), "live until expiry")
	assert.True(t, o.Expired(o.ExpiresAt), "expiresAt == now means expired")
	assert.True(t, o.Expired(o.ExpiresAt.Add(time.Second)))
}

func TestOverride_Key_SamePairSameKey(t *testing.T) {
	a, err := NewOverride(RuleDomain, "Example.com", 5, testNow)
	require.NoError(t, err)
	b, err := NewOverride(RuleDomain, "example.COM.", 60, testNow)
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())

	kw, err := NewOverride(RuleKeyword, "example.com", 5, testNow)
	require.NoError(t, err)
	assert.NotEqual(t, a.Key(), kw.Key(), "kinds partition the key space")
}

func TestOverride_Matches(t *testing.T) {
	dom, err := NewOverride(RuleDomain, "example.com", 30, testNow)
	require.NoError(t, err)
	kw, err := NewOverride(RuleKeyword, "poker", 30, testNow)
	require.NoError(t, err)

	assert.True(t, dom.Matches(RuleDomain, "example.com"))
	assert.True(t, dom.Matches(RuleDomain, "sub.example.com"), "domain override covers subdomains")
	assert.False(t, dom.Matches(RuleDomain, "notexample.com"))
	assert.False(t, dom.Matches(RuleKeyword, "example.com"), "kind mismatch never matches")

	assert.True(t, kw.Matches(RuleKeyword, "POKER"), "keyword overrides compare case-insensitively")
	assert.False(t, kw.Matches(RuleKeyword, "pokerstars"), "no substring matching for keywords")
}
