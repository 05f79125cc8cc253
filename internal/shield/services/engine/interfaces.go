package engine

import (
	"context"
	"time"

	"github.com/libreshield/shieldd/internal/shield/domain"
)

// PolicyView is one consistent instant of policy state. A decision captures a
// view once and uses it for every check, so a mutation completing mid-decision
// can never mix old and new list state within the same evaluation.
type PolicyView interface {
	Enabled() bool
	Keywords() []string
	Allowed(host string) (entry string, ok bool)
	Blocked(host string) (entry string, ok bool)
}

// PolicyProvider supplies the current PolicyView. A failure here is a storage
// failure: the decision propagates it instead of defaulting to allow.
type PolicyProvider interface {
	Current(ctx context.Context) (PolicyView, error)
}

// Overrides answers whether an active exception covers a domain or keyword.
type Overrides interface {
	IsActive(kind domain.RuleKind, value string, now time.Time) bool
}

// StatsSink records that a block fired. Recording failures are logged, never
// allowed to flip an already-decided verdict.
type StatsSink interface {
	RecordBlock(ctx context.Context, kind domain.RuleKind, value string) error
}
