package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "testlink"

// AttemptClaims binds a token to one attempt. Subject is the attempt id.
type AttemptClaims struct {
	jwt.RegisteredClaims
	TestID string `json:"test_id"`
}

// AttemptID parses the subject.
func (c *AttemptClaims) AttemptID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenService issues and validates attempt tokens.
type TokenService struct {
	secret []byte
	grace  time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. Tokens stay valid for grace after
// the attempt deadline so a late submit or review still works.
func NewTokenService(secret string, grace time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), grace: grace, now: time.Now}
}

// Issue signs an HS256 token for an attempt.
func (s *TokenService) Issue(attemptID, testID uuid.UUID, deadline time.Time) (string, time.Time, error) {
	expiresAt := deadline.Add(s.grace)
	claims := AttemptClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   attemptID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
		TestID: testID.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and validates a token, returning the claims.
func (s *TokenService) Validate(tokenStr string) (*AttemptClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AttemptClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*AttemptClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if _, err := claims.AttemptID(); err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	return claims, nil
}
