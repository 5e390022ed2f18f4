// Package pot does the money arithmetic for a room: entry taxes, the
// platform match, the killer-ball penalty and the final payoff matrix.
package pot

import (
	"math"

	"gbserver/game/balls"
	"gbserver/game/final"
)

// Ledger holds the room economy rates. All methods are pure; the owning
// room stores the resulting pot value.
type Ledger struct {
	EntryTax       float64
	StealTaxRate   float64
	SplitBonusRate float64
}

// AddEntryTax accumulates one joining participant's entry tax.
func (l Ledger) AddEntryTax(currentPot float64) float64 {
	return currentPot + l.EntryTax
}

// DoubleAtGameStart applies the 1:1 platform match. Called once, at
// game start, before the balls are generated.
func (l Ledger) DoubleAtGameStart(currentPot float64) float64 {
	return currentPot * 2
}

// RecalculateAfterElimination derives the live pot from the balls still
// in play: the non-killer values minus 2^k for k remaining killer
// balls. The penalty only activates once killer balls exist; with none
// remaining it is zero, not 2^0.
func (l Ledger) RecalculateAfterElimination(remaining []balls.Ball) (killersRemaining int, newPot float64) {
	var valueSum float64
	for _, ball := range remaining {
		if ball.Killer() {
			killersRemaining++
			continue
		}
		valueSum += ball.Value
	}

	penalty := 0.0
	if killersRemaining > 0 {
		penalty = math.Pow(2, float64(killersRemaining))
	}
	return killersRemaining, valueSum - penalty
}

// SettleFinal computes both finalists' balance deltas from their
// simultaneous choices.
//
// Steal/Steal taxes the pot at the steal-tax rate and charges each
// finalist half the tax; Split/Split shares the split bonus evenly; a
// lone stealer wins a flat entry tax off the splitter. The source
// history also contains a "stealer takes the pot minus tax" variant;
// which economy is intended is an open product question, this is the
// documented target.
func (l Ledger) SettleFinal(choice1, choice2 final.Choice, roomPot float64) (delta1, delta2 float64) {
	switch {
	case choice1 == final.Steal && choice2 == final.Steal:
		tax := l.StealTaxRate * roomPot
		return -tax / 2, -tax / 2
	case choice1 == final.Split && choice2 == final.Split:
		bonus := l.SplitBonusRate * roomPot
		return bonus / 2, bonus / 2
	case choice1 == final.Steal:
		return l.EntryTax, -l.EntryTax
	default:
		return -l.EntryTax, l.EntryTax
	}
}
