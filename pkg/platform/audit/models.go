// Package audit captures key engine actions as events. Events are appended to
// a transactional outbox in the same unit of work as the action itself; a
// background relay publishes them to Kafka, which downstream consumers treat
// as the audit source of truth.
package audit

import (
	"context"
	"time"
)

// Action names an auditable engine event.
type Action string

const (
	ActionUserCreated      Action = "user_created"
	ActionSignupBlocked    Action = "signup_blocked"
	ActionAccountAssigned  Action = "account_assigned"
	ActionReferralRecorded Action = "referral_recorded"
	ActionProfileUpdated   Action = "profile_updated"
	ActionBulkUsersAdded   Action = "bulk_users_added"
)

// Event is emitted from domain logic. Keep it transport-agnostic so stores
// and sinks can fan out.
type Event struct {
	Action    Action
	Timestamp time.Time
	UserID    int64
	Username  string
	// Reason carries the block reason for signup_blocked and free-form
	// detail otherwise.
	Reason string
	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string
	ClientIP  string
	UserAgent string
}

// Store appends events. Implementations must honor a transaction carried in
// ctx so events commit or roll back with the action they describe.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Nop discards events. Used when auditing is not configured.
type Nop struct{}

func (Nop) Append(context.Context, Event) error { return nil }
