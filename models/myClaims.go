package models

import (
	jwt "github.com/dgrijalva/jwt-go"
)

// MyClaims is the JWT claim set issued on register/login.
type MyClaims struct {
	UserID string `json:"userid"`
	jwt.StandardClaims
}
