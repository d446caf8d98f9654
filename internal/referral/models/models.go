// Package models holds the referral engine's domain records. Stores persist
// them, services enforce their invariants.
package models

import "time"

// User is the authoritative identity record. Username and referral code are
// unique and immutable after creation; profile fields may be updated later.
type User struct {
	ID           int64
	Username     string
	Code         string
	FirstName    string
	LastName     string
	Phone        string
	MessagingID  string
	ReferredByID *int64
	CreatedAt    time.Time
}

// ReferralEdge credits a referrer for a referred user. At most one edge exists
// per (referrer, referred) pair; duplicate recordings are no-ops.
type ReferralEdge struct {
	ReferrerID int64
	ReferredID int64
	CreatedAt  time.Time
}

// ReservedAccount is a pre-provisioned username awaiting assignment. It
// transitions exactly once from unassigned to assigned; Assigned is true iff
// AssignedUserID is non-nil.
type ReservedAccount struct {
	ID             int64
	Username       string
	Currency       string
	Assigned       bool
	AssignedUserID *int64
	AssignedAt     *time.Time
	Notes          string
}

// BlacklistKind is the attribute category a banned value applies to.
type BlacklistKind string

const (
	KindPhone            BlacklistKind = "phone"
	KindName             BlacklistKind = "name"
	KindMessagingID      BlacklistKind = "messaging_id"
	KindReferralCode     BlacklistKind = "referral_code"
	KindReferralUsername BlacklistKind = "referral_username"
)

// BlacklistEntry is a banned value. Lookups match on (kind, normalized value)
// and only active entries block signups.
type BlacklistEntry struct {
	ID        int64
	Kind      BlacklistKind
	Value     string
	Reason    string
	Active    bool
	CreatedAt time.Time
}

// SignupRequest is the intake for one onboarding attempt.
type SignupRequest struct {
	Username         string `json:"username"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Phone            string `json:"phone"`
	MessagingID      string `json:"messaging_id"`
	ReferralCode     string `json:"referral_code"`
	ReferralUsername string `json:"referral_username"`

	// AutoAssign requests a username from the reserved pool. Pool exhaustion
	// falls back to the supplied Username, or fails the signup when empty.
	AutoAssign        bool   `json:"auto_assign"`
	PreferredCurrency string `json:"preferred_currency"`
}

// SignupResult reports a completed signup.
type SignupResult struct {
	User         *User
	FromPool     bool
	ReferrerID   *int64
	PoolCurrency string
}

// ProfileFields are the only user attributes mutable after creation.
type ProfileFields struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	MessagingID string `json:"messaging_id"`
}

// UserSummary is the compact referrer/referred representation.
type UserSummary struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

// UserView is the engine's outward-facing projection of a user, including the
// referrer (when any) and the users they referred.
type UserView struct {
	ID          int64         `json:"id"`
	Username    string        `json:"username"`
	Code        string        `json:"code"`
	FirstName   string        `json:"first_name,omitempty"`
	LastName    string        `json:"last_name,omitempty"`
	Phone       string        `json:"phone,omitempty"`
	MessagingID string        `json:"messaging_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ReferredBy  *UserSummary  `json:"referred_by,omitempty"`
	Referred    []UserSummary `json:"referred,omitempty"`
}

// BulkResult reports a bulk user import: Added in insertion order, Skipped for
// entries whose username already existed.
type BulkResult struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
}
