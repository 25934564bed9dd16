// Package identity consumes the authenticated session collaborator. The
// engine cares about exactly two signals from it: "the authenticated user
// changed" and "the session ended", both of which force a re-lock. A token
// refresh for the same subject is explicitly NOT such a signal; conflating
// the two would force spurious passphrase re-entry.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken indicates the bearer credential failed to parse or
	// verify.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNoSubject indicates a valid token without a stable user id.
	ErrNoSubject = errors.New("token has no subject")
)

// ParseUserID verifies tokenString against secretKey and returns the
// stable user identifier carried in the subject claim.
func ParseUserID(tokenString string, secretKey []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}
	return claims.Subject, nil
}

// GenerateToken issues a signed bearer for userID. Used by tests and the
// demo mode of the CLI; production tokens come from the external provider.
func GenerateToken(userID string, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
	})
	return token.SignedString(secretKey)
}
