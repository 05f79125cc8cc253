package clock

import "time"

// Clock abstracts time so expiry and lockout logic are testable.
type Clock interface {
	Now() time.Time
}

// RealClock returns wall-clock time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MockClock is a manually-advanced clock for tests.
type MockClock struct {
	CurrentTime time.Time
}

func (c *MockClock) Now() time.Time { return c.CurrentTime }

// Advance moves the mock clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.CurrentTime = c.CurrentTime.Add(d)
}
