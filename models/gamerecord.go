package models

import (
	"gorm.io/gorm"
)

// GameRecord is the durable document created for every started game.
// Votes, choices, chat messages and phase results are appended to it as
// GameEvent rows so they outlive the room and stay queryable.
type GameRecord struct {
	gorm.Model
	RecordID  string `gorm:"uniqueIndex;not null"` // reference handed back to the room
	PlayerIDs string `gorm:"not null"`             // comma-joined participant identities
}

// GameEvent is one appended event on a game record.
type GameEvent struct {
	gorm.Model
	RecordID string `gorm:"index;not null"`
	Round    int
	Type     string `gorm:"not null"` // e.g. "kick-vote", "final-choice", "message", "end-game"
	Payload  string // JSON encoded event body
}
