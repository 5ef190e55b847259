package httpapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultRelayTokenTTL bounds how long a minted relay token stays usable.
// Tokens are minted per avatar session, so an hour comfortably covers one
// conversation.
const defaultRelayTokenTTL = time.Hour

// relayClaims binds a relay token to one avatar session.
type relayClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// mintRelayToken signs a short-lived token the browser presents on the relay
// WebSocket handshake.
func mintRelayToken(secret, sessionID string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = defaultRelayTokenTTL
	}

	now := time.Now()
	claims := relayClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// verifyRelayToken checks the token's signature, expiry, and that it was
// minted for the given session.
func verifyRelayToken(secret, tokenString, sessionID string) error {
	token, err := jwt.ParseWithClaims(tokenString, &relayClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid relay token: %w", err)
	}

	claims, ok := token.Claims.(*relayClaims)
	if !ok {
		return fmt.Errorf("invalid relay token claims")
	}
	if claims.SessionID != sessionID {
		return fmt.Errorf("relay token was minted for a different session")
	}
	return nil
}
