package balls

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Weights split the pot into the large/medium/small ball pools.
type Weights struct {
	Big    float64
	Medium float64
	Small  float64
}

// Counts is how many balls of each kind every participant is dealt.
type Counts struct {
	Big    int
	Medium int
	Small  int
	Killer int
}

// PerPlayer is the total number of balls a participant holds.
func (c Counts) PerPlayer() int {
	return c.Big + c.Medium + c.Small + c.Killer
}

// Distributor generates a room's pot-backed balls and deals them out.
// One distributor serves every room, so the rng sits behind a mutex:
// deals run inside per-room timer callbacks that fire concurrently.
type Distributor struct {
	weights Weights
	counts  Counts

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDistributor builds a distributor. Pass a seeded rng for
// deterministic deals in tests; nil gets a time-seeded source.
func NewDistributor(weights Weights, counts Counts, rng *rand.Rand) *Distributor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Distributor{weights: weights, counts: counts, rng: rng}
}

// Generate splits the pot into the weighted pools, divides each pool
// evenly across its ball slots and appends one killer ball per
// participant. Generated once per room at game start.
func (d *Distributor) Generate(pot float64, participants int) []Ball {
	numBig := d.counts.Big * participants
	numMedium := d.counts.Medium * participants
	numSmall := d.counts.Small * participants
	numKiller := d.counts.Killer * participants

	bigValue := d.weights.Big * pot / float64(numBig)
	mediumValue := d.weights.Medium * pot / float64(numMedium)
	smallValue := d.weights.Small * pot / float64(numSmall)

	generated := make([]Ball, 0, numBig+numMedium+numSmall+numKiller)
	appendBalls := func(n int, value float64) {
		for i := 0; i < n; i++ {
			generated = append(generated, Ball{ID: uuid.New().String(), Value: value})
		}
	}
	appendBalls(numBig, bigValue)
	appendBalls(numMedium, mediumValue)
	appendBalls(numSmall, smallValue)
	appendBalls(numKiller, KillerValue)

	return generated
}

// Assign deals the balls into equal contiguous slices, one per
// participant in the given order. A fresh uniform permutation is drawn
// on every call so a redeal leaks nothing about previously hidden balls.
func (d *Distributor) Assign(pool []Ball, playerIDs []string) Assignment {
	shuffled := make([]Ball, len(pool))
	copy(shuffled, pool)
	d.mu.Lock()
	d.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	d.mu.Unlock()

	perPlayer := len(shuffled) / len(playerIDs)
	assignment := make(Assignment, 0, len(playerIDs))
	for idx, playerID := range playerIDs {
		assignment = append(assignment, Holding{
			PlayerID: playerID,
			Balls:    shuffled[perPlayer*idx : perPlayer*(idx+1)],
		})
	}
	return assignment
}
