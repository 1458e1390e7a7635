package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PeerClaims binds a relay-assigned peer id to its holder so the id can be
// reclaimed after the signalling socket drops.
type PeerClaims struct {
	PeerID string `json:"peer_id"`
	jwt.RegisteredClaims
}

// GeneratePeerToken creates a token for peerID valid for ttl.
func GeneratePeerToken(secret, peerID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}

	claims := &PeerClaims{
		PeerID: peerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   peerID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidatePeerToken validates a peer token and returns its claims
func ValidatePeerToken(secret, tokenString string) (*PeerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PeerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*PeerClaims); ok && token.Valid && claims.PeerID != "" {
		return claims, nil
	}

	return nil, errors.New("invalid peer token")
}
