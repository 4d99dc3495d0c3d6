// Package store defines the record-store collaborator the voice core calls
// into. The real application persists these records elsewhere; the core only
// depends on the narrow operations below.
package store

import (
	"context"
	"time"

	"carelink/core"
)

// ConversationRecord is one user's conversation for one calendar day.
type ConversationRecord struct {
	UserID string
	Day    string // core.DayKey format
	Turns  []core.Turn
}

// ConversationStore upserts conversation histories keyed by {user, day}.
// Same-day saves replace the record instead of duplicating it.
type ConversationStore interface {
	UpsertDay(ctx context.Context, rec ConversationRecord) error
}

// Health event kinds.
const (
	HealthEventEmergency = "emergency"
	HealthEventResolved  = "emergency_resolved"
)

// HealthEvent is an audit record: emergencies raised and resolved.
type HealthEvent struct {
	UserID     string
	Kind       string // HealthEventEmergency or HealthEventResolved
	Note       string
	OccurredAt time.Time
}

// HealthEventStore appends audit records.
type HealthEventStore interface {
	Insert(ctx context.Context, ev HealthEvent) error
}

// User is the identity the core operates on behalf of.
type User struct {
	ID          string
	DisplayName string
	Language    string
	// LinkedUserID is the peer in the companion/monitor pair.
	LinkedUserID string
}

// UserStore resolves the current user and the companion/monitor link.
type UserStore interface {
	CurrentUser(ctx context.Context) (User, error)
	LinkedUserID(ctx context.Context, userID string) (string, error)
	SetLinkedUserID(ctx context.Context, userID, linkedID string) error
}
