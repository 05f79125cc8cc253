package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	clk := RealClock{}

	before := time.Now()
	now := clk.Now()
	after := time.Now()

	assert.False(t, now.Before(before))
	assert.False(t, now.After(after))
}

func TestMockClock_NowIsFixed(t *testing.T) {
	fixed := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clk := &MockClock{CurrentTime: fixed}

	assert.Equal(t, fixed, clk.Now())
	assert.Equal(t, fixed, clk.Now(), "repeated reads do not advance")
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clk := &MockClock{CurrentTime: start}

	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now())

	clk.Advance(-30 * time.Minute)
	assert.Equal(t, start.Add(time.Hour), clk.Now())
}
