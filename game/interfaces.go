package game

import (
	"context"

	"gbserver/models"
)

// IdentityVerifier turns a bearer credential into a stable participant
// identity.
type IdentityVerifier interface {
	Verify(credential string) (string, error)
}

// BalanceLedger adjusts a participant's external balance. A settlement
// delta handed to the ledger must never be silently dropped; failed
// adjustments are the implementation's to queue and retry.
type BalanceLedger interface {
	AdjustBalance(ctx context.Context, userID string, delta float64) error
}

// RecordStore is the durable game record collaborator. Records outlive
// the room and feed the history endpoints.
type RecordStore interface {
	CreateRecord(ctx context.Context, participants []string) (string, error)
	AppendEvent(ctx context.Context, recordRef string, round int, eventType string, payload interface{}) error
	ReadRecord(ctx context.Context, recordRef string) (*models.GameRecord, []models.GameEvent, error)
}

// EventEmitter pushes events to connected sessions and force-closes
// them at teardown. The orchestrator resolves room targets to session
// lists itself, so implementations stay a plain session→connection map.
type EventEmitter interface {
	Emit(sessionIDs []string, event string, payload interface{})
	CloseSession(sessionID string)
}

// Event names emitted over the outbound channel.
const (
	EventStartGame    = "start-game"
	EventPrepareRound = "prepare-round"
	EventStartRound   = "start-round"
	EventEndRound     = "end-round"
	EventPrepareFinal = "prepare-final"
	EventStartFinal   = "start-final"
	EventEndGame      = "end-game"
	EventMessage      = "message"
)
