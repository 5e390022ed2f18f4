// Package final records the two finalists of a room and their
// simultaneous split-or-steal choices.
package final

import (
	"fmt"

	"gbserver/models"
)

// Choice is a finalist's irrevocable decision.
type Choice string

const (
	Split Choice = "split"
	Steal Choice = "steal"
)

// Valid reports whether the wire value is a known choice.
func (c Choice) Valid() bool {
	return c == Split || c == Steal
}

// Finalists holds the payoff-round state for one room. Not safe for
// concurrent use on its own; the owning room serializes access.
type Finalists struct {
	Player1ID string
	Player2ID string

	choices map[string]Choice
	closed  bool
}

// New records the two remaining participants as finalists.
func New(player1ID, player2ID string) *Finalists {
	return &Finalists{
		Player1ID: player1ID,
		Player2ID: player2ID,
		choices:   make(map[string]Choice),
	}
}

// SetChoice records a finalist's choice. A later submission from the
// same finalist overwrites the earlier one until the phase closes;
// after that the submission is late and rejected.
func (f *Finalists) SetChoice(playerID string, choice Choice) error {
	if f.closed {
		return fmt.Errorf("payoff round already closed: %w", models.ErrInvalidState)
	}
	if playerID != f.Player1ID && playerID != f.Player2ID {
		return fmt.Errorf("player %s is not a finalist: %w", playerID, models.ErrNotFound)
	}
	f.choices[playerID] = choice
	return nil
}

// Close ends the choice phase and returns both choices, defaulting any
// missing choice to Steal. Closing an already closed phase returns the
// same result.
func (f *Finalists) Close() (Choice, Choice) {
	f.closed = true
	return f.choiceOf(f.Player1ID), f.choiceOf(f.Player2ID)
}

// Closed reports whether the choice phase has ended.
func (f *Finalists) Closed() bool {
	return f.closed
}

func (f *Finalists) choiceOf(playerID string) Choice {
	if choice, ok := f.choices[playerID]; ok {
		return choice
	}
	return Steal
}
