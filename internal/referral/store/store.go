// Package store persists the referral engine's four relations: users,
// referral edges, reserved accounts, and blacklist entries. Stores are pure
// I/O; invariants beyond uniqueness live in the service layer.
package store

import (
	"context"
	"fmt"
	"time"

	"refhub/internal/referral/models"
	"refhub/pkg/platform/sentinel"
)

// Uniqueness violations mapped by constraint so the service can tell a
// caller-facing duplicate username from a retryable code collision. Both
// satisfy errors.Is(err, sentinel.ErrAlreadyUsed).
var (
	ErrUsernameTaken = fmt.Errorf("username: %w", sentinel.ErrAlreadyUsed)
	ErrCodeTaken     = fmt.Errorf("referral code: %w", sentinel.ErrAlreadyUsed)
)

// UserStore owns User rows and is the only writer of the referrer-id field.
type UserStore interface {
	// Create inserts a user and returns it with id and timestamp assigned.
	// Unique violations map to ErrUsernameTaken or ErrCodeTaken.
	Create(ctx context.Context, u *models.User) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByCode(ctx context.Context, code string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	// UpdateProfile mutates only name, phone, and messaging id.
	UpdateProfile(ctx context.Context, id int64, fields models.ProfileFields) error
	// Search matches the substring across username, code, names, phone, and
	// messaging id, newest first, capped at limit.
	Search(ctx context.Context, query string, limit int) ([]*models.User, error)
}

// EdgeStore owns referral edges.
type EdgeStore interface {
	// Record inserts the edge, silently ignoring duplicates. Returns true
	// when a new edge was stored.
	Record(ctx context.Context, referrerID, referredID int64, at time.Time) (bool, error)
	ListReferred(ctx context.Context, referrerID int64) ([]*models.User, error)
}

// PoolStore owns the assignment fields of reserved accounts.
type PoolStore interface {
	// ClaimOldest locks and returns the oldest unassigned account, preferring
	// the given currency and falling back to any. It must run inside the
	// signup transaction so the row lock spans the claim-to-assign window;
	// concurrent claimants skip locked rows. Returns sentinel.ErrExhausted
	// when the pool is empty.
	ClaimOldest(ctx context.Context, currency string) (*models.ReservedAccount, error)
	// MarkAssigned flips the claimed account to assigned exactly once.
	MarkAssigned(ctx context.Context, username string, userID int64, at time.Time) error
}

// BlacklistStore resolves banned values.
type BlacklistStore interface {
	// FindActive returns the active entry for (kind, normalized value) or
	// sentinel.ErrNotFound.
	FindActive(ctx context.Context, kind models.BlacklistKind, value string) (*models.BlacklistEntry, error)
}

// Store aggregates the four relations for the signup orchestrator.
type Store interface {
	UserStore
	EdgeStore
	PoolStore
	BlacklistStore
}
