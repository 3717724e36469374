package app

import (
	"context"
	"time"

	"battle-room-service/internal/domain"
)

// Action tells a RoomStore what to do with the aggregate a Mutation produced.
type Action int

const (
	// Save commits the mutated room and publishes a snapshot.
	Save Action = iota
	// Skip leaves the stored room untouched; no snapshot is published.
	Skip
	// Remove deletes the room and closes its subscriptions.
	Remove
)

func (a Action) String() string {
	switch a {
	case Save:
		return "save"
	case Skip:
		return "skip"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// Mutation edits a private copy of a room. It may run more than once when a store
// retries an optimistic transaction, so it must not have side effects.
type Mutation func(room *domain.Room) (Action, error)

// RoomStore is the single source of truth for rooms. Update is the only
// read-modify-write primitive: the mutation and the write happen atomically.
type RoomStore interface {
	// Create inserts a new room; it fails with domain.ErrCodeTaken if the join code is in use.
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, roomID string) (*domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	// Update applies mutate atomically and returns the resulting room.
	Update(ctx context.Context, roomID string, mutate Mutation) (*domain.Room, Action, error)
	// ListMatchmaking returns waiting matchmaking rooms, oldest first.
	ListMatchmaking(ctx context.Context) ([]*domain.Room, error)
	// Subscribe delivers the current snapshot and then every committed change in order.
	// The channel is closed when the room is removed or cancel is called.
	Subscribe(ctx context.Context, roomID string) (<-chan *domain.Room, func(), error)
	// Sweep drops rooms past their retention window.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// PresenceTracker records which participants hold a live session. Records lapse
// on their own when a session stops refreshing them.
type PresenceTracker interface {
	// Register marks the participant online; sessions call it again as a heartbeat.
	Register(ctx context.Context, roomID, userID string) error
	Release(ctx context.Context, roomID, userID string) error
	Online(ctx context.Context, roomID, userID string) (bool, error)
}

// QuestionSource is the question-bank collaborator.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, scope string) ([]domain.Question, error)
}

// ResultRecorder archives finished battles.
type ResultRecorder interface {
	RecordResults(ctx context.Context, room *domain.Room) error
}

// Retention decides how long an untouched room is kept.
type Retention struct {
	Finished time.Duration
	Idle     time.Duration
}

// TTL returns the lifetime of room from its last write, or 0 to keep it forever.
func (r Retention) TTL(room *domain.Room) time.Duration {
	if room.Status == domain.StatusFinished {
		return r.Finished
	}
	return r.Idle
}

// Expired reports whether room should be dropped at now.
func (r Retention) Expired(room *domain.Room, now time.Time) bool {
	ttl := r.TTL(room)
	if ttl <= 0 {
		return false
	}
	return now.Sub(room.LastActivity) >= ttl
}
