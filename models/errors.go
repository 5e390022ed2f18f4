package models

import "errors"

// Shared error taxonomy for the game engine. Callers wrap these with
// fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// ErrNotFound is returned when a session, identity or room lookup
	// has no binding. Never substituted with a zero value.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation arrives in the
	// wrong phase, e.g. a kick vote after the round already ended.
	ErrInvalidState = errors.New("invalid state")

	// ErrCapacityExceeded is returned on a join attempt to a full room.
	ErrCapacityExceeded = errors.New("room capacity exceeded")

	// ErrNoTimer is returned when cancelling a timer on a room that has
	// no outstanding timer, so the caller knows no round was in flight.
	ErrNoTimer = errors.New("no timer set on room")

	// ErrCollaborator is returned when an external collaborator call
	// (identity, balance ledger, record store) failed.
	ErrCollaborator = errors.New("collaborator failure")
)
