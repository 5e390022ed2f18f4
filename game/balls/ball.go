package balls

// KillerValue is the sentinel value of a killer ball. Killer balls carry
// no money; they only feed the pot penalty while they stay in play.
const KillerValue = -1

// RevealCount is how many of a participant's balls are shown to the room.
const RevealCount = 2

// Ball is an immutable value token backed by the room pot.
type Ball struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

// Killer reports whether the ball is a killer token.
func (b Ball) Killer() bool {
	return b.Value == KillerValue
}

// Holding is the ordered set of balls one participant currently holds.
type Holding struct {
	PlayerID string `json:"playerId"`
	Balls    []Ball `json:"balls"`
}

// Assignment maps every active participant to their held balls for the
// current round. Rebuilt by the distributor on every deal.
type Assignment []Holding

// Remaining flattens all currently held balls across all participants.
func (a Assignment) Remaining() []Ball {
	var pool []Ball
	for _, holding := range a {
		pool = append(pool, holding.Balls...)
	}
	return pool
}

// RevealedBall is one participant's publicly shown balls.
type RevealedBall struct {
	PlayerID   string `json:"playerId"`
	ShownBalls []Ball `json:"shownBalls"`
}

// Reveal exposes the first two balls of every participant's holding.
// Deterministic given the assignment; the randomness happened at deal time.
func (a Assignment) Reveal() []RevealedBall {
	revealed := make([]RevealedBall, 0, len(a))
	for _, holding := range a {
		shown := holding.Balls
		if len(shown) > RevealCount {
			shown = shown[:RevealCount]
		}
		revealed = append(revealed, RevealedBall{PlayerID: holding.PlayerID, ShownBalls: shown})
	}
	return revealed
}

// RevealedSum returns the sum of a participant's shown ball values,
// derived fresh from the live assignment.
func (a Assignment) RevealedSum(playerID string) (float64, bool) {
	for _, revealed := range a.Reveal() {
		if revealed.PlayerID != playerID {
			continue
		}
		var sum float64
		for _, ball := range revealed.ShownBalls {
			sum += ball.Value
		}
		return sum, true
	}
	return 0, false
}

// Balls returns the holding of one participant.
func (a Assignment) Balls(playerID string) ([]Ball, bool) {
	for _, holding := range a {
		if holding.PlayerID == playerID {
			return holding.Balls, true
		}
	}
	return nil, false
}

// RemovePlayer drops a participant's holding from the assignment. The
// removed balls leave the game entirely.
func (a Assignment) RemovePlayer(playerID string) Assignment {
	kept := make(Assignment, 0, len(a))
	for _, holding := range a {
		if holding.PlayerID != playerID {
			kept = append(kept, holding)
		}
	}
	return kept
}
