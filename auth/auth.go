package auth

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gbserver/models"

	jwt "github.com/dgrijalva/jwt-go"
)

// JwtKey signs session tokens. Set JWT_SECRET in production.
var JwtKey = loadKey()

func loadKey() []byte {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return []byte(secret)
	}
	return []byte("your_secret_key")
}

// GenerateToken issues a signed token carrying the stable participant
// identity. Valid for 24 hours.
func GenerateToken(userID string) (string, error) {
	claims := &models.MyClaims{
		UserID: userID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(24 * time.Hour).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JwtKey)
}

// Verifier is the identity-verification collaborator: it turns a bearer
// credential into a stable participant identity.
type Verifier struct{}

// Verify validates the token and returns the identity carried in it.
func (Verifier) Verify(credential string) (string, error) {
	tokenString := strings.TrimPrefix(credential, "Bearer ")
	if tokenString == "" {
		return "", fmt.Errorf("empty credential: %w", models.ErrNotFound)
	}

	claims := &models.MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return JwtKey, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("token validation failed: %w", models.ErrCollaborator)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("token carries no identity: %w", models.ErrCollaborator)
	}

	return claims.UserID, nil
}
