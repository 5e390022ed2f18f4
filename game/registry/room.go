package registry

import (
	"sync"
	"time"

	"gbserver/game/balls"
	"gbserver/game/final"
	"gbserver/models"
)

// State is a room's position in the game state machine.
type State string

const (
	StateWaiting        State = "waiting"
	StateFull           State = "full"
	StatePreparingRound State = "preparing-round"
	StateRoundActive    State = "round-active"
	StateRoundEnding    State = "round-ending"
	StatePreparingFinal State = "preparing-final"
	StateFinalActive    State = "final-active"
	StateTerminal       State = "terminal"
)

// KickVote is one recorded nomination: Voter wants Target removed.
type KickVote struct {
	Voter  string `json:"voter"`
	Target string `json:"target"`
}

// Room is the owned aggregate for one game instance: roster, pot,
// round counter, live ball assignment, vote ledger, finalists, the
// outstanding timer and the durable record reference all live here so
// there is a single thing to keep consistent.
//
// The embedded mutex serializes every mutation of a room: timer
// callbacks and participant actions take it before touching any field.
// Rooms are independent; there is no cross-room locking.
type Room struct {
	sync.Mutex

	ID       string
	Capacity int
	State    State

	// Sessions is the roster in join order. Roster membership itself is
	// guarded by the registry; everything else by the room mutex.
	Sessions []string

	Pot        float64
	Round      int
	Assignment balls.Assignment
	Votes      map[int][]KickVote
	Finalists  *final.Finalists
	RecordRef  string
	Settled    bool

	timer *time.Timer

	// open marks a room still accepting joins. Maintained by the
	// registry under its own lock so matchmaking never reads State.
	open bool
}

// RecordVote stores a nomination for the given round, overwriting any
// earlier nomination by the same voter. Votes are scoped by round
// number; stale-round votes are never read again.
func (r *Room) RecordVote(round int, voter, target string) {
	if r.Votes == nil {
		r.Votes = make(map[int][]KickVote)
	}
	for i, vote := range r.Votes[round] {
		if vote.Voter == voter {
			r.Votes[round][i].Target = target
			return
		}
	}
	r.Votes[round] = append(r.Votes[round], KickVote{Voter: voter, Target: target})
}

// VotesForRound returns the ordered nominations cast in a round.
func (r *Room) VotesForRound(round int) []KickVote {
	return r.Votes[round]
}

// SetTimer stores the room's single outstanding cancellable timer.
func (r *Room) SetTimer(t *time.Timer) {
	r.timer = t
}

// ClearTimer drops the handle of a timer that already fired.
func (r *Room) ClearTimer() {
	r.timer = nil
}

// CancelTimer stops and discards the outstanding timer. Returns
// ErrNoTimer when none is set, so a caller relying on cancellation
// knows whether a round was in flight.
func (r *Room) CancelTimer() error {
	if r.timer == nil {
		return models.ErrNoTimer
	}
	r.timer.Stop()
	r.timer = nil
	return nil
}
