// Package gate implements the password authorization gate protecting
// override grants and settings mutation. Credentials are salted PBKDF2
// material; verification is throttled after repeated failures.
package gate

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/libreshield/shieldd/internal/shield/common/clock"
	"github.com/libreshield/shieldd/internal/shield/common/log"
	"github.com/libreshield/shieldd/internal/shield/domain"
)

const (
	// ResetConfirmation is the literal phrase a caller must present to wipe
	// all state without knowing the password (forgotten-password recovery).
	ResetConfirmation = "RESET"

	// MinIterations is the PBKDF2 work-factor floor.
	MinIterations = 100000

	saltLength = 16
	keyLength  = 32
)

// CredentialStore persists credential changes. nil credential removes it.
type CredentialStore interface {
	SaveCredential(ctx context.Context, c *domain.Credential) error
}

// Gate holds the credential and the in-memory throttle state. The failure
// counter and lockout deadline live only for the process lifetime; a restart
// clears them, which is accepted behavior.
type Gate struct {
	mu          sync.Mutex
	cred        *domain.Credential
	failures    int
	lockedUntil time.Time

	iterations int
	threshold  int
	window     time.Duration
	store      CredentialStore
	clock      clock.Clock
	logger     log.Logger
}

// Options configures a Gate.
type Options struct {
	// Credential seeds the gate from persisted state; nil means open.
	Credential *domain.Credential
	// Iterations is the PBKDF2 work factor for newly derived credentials.
	// Values below MinIterations are raised to it.
	Iterations int
	// LockoutThreshold is the consecutive-failure count that trips the throttle.
	LockoutThreshold int
	// LockoutWindow is how long verification is refused once throttled.
	LockoutWindow time.Duration
	Store         CredentialStore
	Clock         clock.Clock
	Logger        log.Logger
}

// New constructs a Gate.
func New(opts Options) *Gate {
	iterations := opts.Iterations
	if iterations < MinIterations {
		iterations = MinIterations
	}
	threshold := opts.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}
	window := opts.LockoutWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Gate{
		cred:       opts.Credential,
		iterations: iterations,
		threshold:  threshold,
		window:     window,
		store:      opts.Store,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
}

// HasCredential reports whether a password is configured.
func (g *Gate) HasCredential() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cred != nil
}

// Authorize checks a password against the configured credential. When no
// credential exists the gate is open and any password (including none)
// passes. With a credential set, an empty password is ErrAuthRequired and a
// wrong one ErrWrongCredential; repeated failures trip ErrLocked.
func (g *Gate) Authorize(password string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cred == nil {
		return nil
	}
	if password == "" {
		return domain.ErrAuthRequired
	}
	return g.verifyLocked(password)
}

// SetPassword derives and persists a credential. It is only callable while
// the gate is open; changing an existing password goes through ChangePassword.
func (g *Gate) SetPassword(ctx context.Context, password string) error {
	if password == "" {
		return fmt.Errorf("%w: password must not be empty", domain.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cred != nil {
		return domain.ErrAuthRequired
	}
	cred, err := g.deriveNew(password)
	if err != nil {
		return err
	}
	if err := g.persistLocked(ctx, cred); err != nil {
		return err
	}
	g.logger.Info(nil, "Password protection enabled")
	return nil
}

// ChangePassword replaces the credential after verifying the current password.
func (g *Gate) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password must not be empty", domain.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cred == nil {
		return fmt.Errorf("%w: no password is set", domain.ErrInvalidInput)
	}
	if err := g.verifyLocked(currentPassword); err != nil {
		return err
	}
	cred, err := g.deriveNew(newPassword)
	if err != nil {
		return err
	}
	if err := g.persistLocked(ctx, cred); err != nil {
		return err
	}
	g.logger.Info(nil, "Password changed")
	return nil
}

// RemovePassword deletes the credential after verifying the current password,
// returning the gate to the open state.
func (g *Gate) RemovePassword(ctx context.Context, currentPassword string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cred == nil {
		return nil
	}
	if err := g.verifyLocked(currentPassword); err != nil {
		return err
	}
	if err := g.persistLocked(ctx, nil); err != nil {
		return err
	}
	g.failures = 0
	g.lockedUntil = time.Time{}
	g.logger.Info(nil, "Password protection removed")
	return nil
}

// ConfirmReset validates the out-of-band confirmation phrase and clears the
// gate's in-memory credential and throttle state. The caller is responsible
// for wiping the persisted record alongside.
func (g *Gate) ConfirmReset(confirmation string) error {
	if confirmation != ResetConfirmation {
		return fmt.Errorf("%w: reset requires the confirmation phrase %q", domain.ErrInvalidInput, ResetConfirmation)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cred = nil
	g.failures = 0
	g.lockedUntil = time.Time{}
	g.logger.Warn(nil, "Full reset confirmed, all policy state wiped")
	return nil
}

// Replace swaps the credential wholesale, used by settings import.
func (g *Gate) Replace(cred *domain.Credential) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cred != nil {
		c := cred.Clone()
		g.cred = &c
	} else {
		g.cred = nil
	}
	g.failures = 0
	g.lockedUntil = time.Time{}
}

// verifyLocked re-derives with the stored salt and compares in constant time.
// Callers hold g.mu and have established g.cred != nil.
func (g *Gate) verifyLocked(password string) error {
	now := g.clock.Now()
	if now.Before(g.lockedUntil) {
		return domain.ErrLocked
	}

	iterations := g.cred.Iterations
	if iterations <= 0 {
		iterations = g.iterations
	}
	derived := pbkdf2.Key([]byte(password), g.cred.Salt, iterations, keyLength, sha256.New)
	if subtle.ConstantTimeCompare(derived, g.cred.Hash) == 1 {
		g.failures = 0
		g.lockedUntil = time.Time{}
		return nil
	}

	g.failures++
	if g.failures >= g.threshold {
		g.lockedUntil = now.Add(g.window)
		g.logger.Warn(map[string]any{
			"failures":     g.failures,
			"locked_until": g.lockedUntil,
		}, "Login throttle engaged")
	}
	return domain.ErrWrongCredential
}

// deriveNew generates a fresh salt and derives credential material.
func (g *Gate) deriveNew(password string) (*domain.Credential, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	hash := pbkdf2.Key([]byte(password), salt, g.iterations, keyLength, sha256.New)
	return &domain.Credential{Hash: hash, Salt: salt, Iterations: g.iterations}, nil
}

// persistLocked writes the credential through the store, then updates the
// in-memory copy only on success. Callers hold g.mu.
func (g *Gate) persistLocked(ctx context.Context, cred *domain.Credential) error {
	if g.store != nil {
		if err := g.store.SaveCredential(ctx, cred); err != nil {
			return err
		}
	}
	g.cred = cred
	return nil
}
