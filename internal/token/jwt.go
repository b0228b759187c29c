package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/model"
)

const (
	issuer      = "accessgate"
	typeSession = "session"
)

// Claims represents session token claims. The principal id travels in the
// subject claim.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// JWT implements TokenManager backed by symmetric HMAC.
type JWT struct {
	secretKey []byte
	clock     clock.Clock
}

var _ model.TokenManager = (*JWT)(nil)

// NewJWT creates a new JWT token manager with the provided secret key.
func NewJWT(secretKey string, clk clock.Clock) *JWT {
	return &JWT{secretKey: []byte(secretKey), clock: clk}
}

// Issue creates a signed session token for userID valid for ttl.
func (j *JWT) Issue(userID uuid.UUID, ttl time.Duration) (string, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("failed to sign session token: empty user id")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("failed to sign session token: non-positive ttl %s", ttl)
	}

	now := j.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: typeSession,
	})

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, nil
}

// Validate verifies the signature and expiry of tokenString and returns the
// principal id it carries.
func (j *JWT) Validate(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, model.ErrTokenMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.clock.Now),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return j.secretKey, nil
	})
	if err != nil {
		return uuid.Nil, classify(err)
	}
	if !token.Valid {
		return uuid.Nil, model.ErrTokenMalformed
	}
	if claims.TokenType != typeSession {
		return uuid.Nil, fmt.Errorf("%w: token type mismatch: %s", model.ErrTokenMalformed, claims.TokenType)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", model.ErrTokenMalformed)
	}

	return userID, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return model.ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", model.ErrTokenMalformed, err)
	}
}
