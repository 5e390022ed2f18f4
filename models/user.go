package models

import (
	"gorm.io/gorm"
)

// User is an account row. UserID is the stable participant identity
// carried in JWT claims and used everywhere inside the game engine.
type User struct {
	gorm.Model
	UserID       string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
}
