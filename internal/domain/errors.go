package domain

import "errors"

// Validation errors. Nothing is written when one of these is returned.
var (
	// ErrInvalidRoomName is returned for empty or overlong room names.
	ErrInvalidRoomName = errors.New("room name must be 1-50 characters")
	// ErrInvalidMaxPlayers is returned when the capacity is outside [2,10].
	ErrInvalidMaxPlayers = errors.New("max players must be between 2 and 10")
	// ErrInvalidJoinCode is returned for codes that cannot have been issued.
	ErrInvalidJoinCode = errors.New("malformed join code")
	// ErrInvalidPlayer is returned when a caller has no user ID or display name.
	ErrInvalidPlayer = errors.New("player id and display name are required")
)

// Contention and lookup errors, resolved by user action.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrGameInProgress   = errors.New("game already in progress")
	ErrPlayerNotInRoom  = errors.New("player not in room")
	ErrNotHost          = errors.New("only the host can start the battle")
	ErrNotEnoughPlayers = errors.New("need at least 2 players")
	ErrPlayersNotReady  = errors.New("all players must be ready")
)

// Transient infrastructure errors; callers may try again.
var (
	// ErrCodeTaken is returned by a store when a join code is already assigned.
	ErrCodeTaken = errors.New("join code already in use")
	// ErrCodeGenerationExhausted means every sampled join code collided.
	ErrCodeGenerationExhausted = errors.New("could not generate a unique join code")
	// ErrStoreContention means an optimistic update kept losing to concurrent writers.
	ErrStoreContention = errors.New("room store contention, try again")
	// ErrQuestionsUnavailable indicates the question bank returned nothing for a scope.
	ErrQuestionsUnavailable = errors.New("no questions available")
)
