// Package vote decides which participant a round of kick votes
// eliminates.
package vote

import (
	"fmt"
	"sort"

	"gbserver/models"
)

// Resolve tallies the nominations cast in the current round and returns
// the eliminated identity. The most-nominated participant loses; a tie
// on votes breaks toward the lowest revealed-ball sum, looked up fresh
// through sumFn against the live assignment. A tie on the sum as well
// breaks lexicographically by identity so resolution is stable for
// identical inputs.
func Resolve(nominations []string, sumFn func(playerID string) float64) (string, error) {
	if len(nominations) == 0 {
		return "", fmt.Errorf("no nominations to tally: %w", models.ErrInvalidState)
	}

	tally := make(map[string]int)
	for _, target := range nominations {
		tally[target]++
	}

	maxVotes := 0
	for _, count := range tally {
		if count > maxVotes {
			maxVotes = count
		}
	}

	candidates := make([]string, 0, len(tally))
	for target, count := range tally {
		if count == maxVotes {
			candidates = append(candidates, target)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		sumI, sumJ := sumFn(candidates[i]), sumFn(candidates[j])
		if sumI != sumJ {
			return sumI < sumJ
		}
		return candidates[i] < candidates[j]
	})

	return candidates[0], nil
}
