package policy

import (
	"context"

	"github.com/libreshield/shieldd/internal/shield/domain"
)

// Store is the durable key/value collaborator owning the persisted policy
// record. All access is explicit and asynchronous-friendly; callers never
// reach into storage mid-decision. Failures are reported wrapped in
// domain.ErrStorageUnavailable so decisions can fail closed.
type Store interface {
	// Load returns the full persisted record with defaults merged in for
	// fields never written (first-run semantics).
	Load(ctx context.Context) (domain.Record, error)

	// SaveSettings persists the settings portion of the record.
	SaveSettings(ctx context.Context, s domain.Settings) error

	// SaveOverrides replaces the persisted override set.
	SaveOverrides(ctx context.Context, overrides []domain.Override) error

	// SaveCredential persists the credential; nil removes it.
	SaveCredential(ctx context.Context, c *domain.Credential) error

	// SaveStats persists the usage counters.
	SaveStats(ctx context.Context, s domain.UsageStats) error

	// Replace overwrites the entire record, used by settings import.
	Replace(ctx context.Context, r domain.Record) error

	// Reset wipes everything back to the first-run record.
	Reset(ctx context.Context) error

	Close() error
}
