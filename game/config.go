package game

import (
	"time"

	"gbserver/game/balls"
	"gbserver/game/pot"
)

// Config is the game tuning surface. Fixed at startup, never runtime-tunable.
type Config struct {
	RoomSize        int
	RoundDuration   time.Duration
	PrepareDuration time.Duration

	EntryTax       float64
	StealTaxRate   float64
	SplitBonusRate float64

	BallWeights balls.Weights
	BallCounts  balls.Counts
}

// DefaultConfig mirrors the production game economy.
func DefaultConfig() Config {
	return Config{
		RoomSize:        4,
		RoundDuration:   20 * time.Second,
		PrepareDuration: 5 * time.Second,
		EntryTax:        5,
		StealTaxRate:    0.7,
		SplitBonusRate:  0.5,
		BallWeights: balls.Weights{
			Big:    0.75,
			Medium: 0.20,
			Small:  0.05,
		},
		BallCounts: balls.Counts{
			Big:    1,
			Medium: 2,
			Small:  1,
			Killer: 1,
		},
	}
}

// PotLedger derives the pot arithmetic rates from the config.
func (c Config) PotLedger() pot.Ledger {
	return pot.Ledger{
		EntryTax:       c.EntryTax,
		StealTaxRate:   c.StealTaxRate,
		SplitBonusRate: c.SplitBonusRate,
	}
}
