package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret", 30*time.Minute)
	attemptID, testID := uuid.New(), uuid.New()
	deadline := time.Now().Add(time.Hour).Truncate(time.Second)

	token, expiresAt, err := svc.Issue(attemptID, testID, deadline)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.Equal(deadline.Add(30 * time.Minute)) {
		t.Errorf("expiresAt = %v", expiresAt)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id, _ := claims.AttemptID(); id != attemptID {
		t.Errorf("AttemptID = %v, want %v", id, attemptID)
	}
	if claims.TestID != testID.String() {
		t.Errorf("TestID = %q", claims.TestID)
	}
}

func TestTokenRejected(t *testing.T) {
	svc := NewTokenService("secret", 0)
	other := NewTokenService("other-secret", 0)
	attemptID, testID := uuid.New(), uuid.New()

	valid, _, _ := other.Issue(attemptID, testID, time.Now().Add(time.Hour))
	expired, _, _ := svc.Issue(attemptID, testID, time.Now().Add(-time.Minute))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"wrong secret", valid, jwt.ErrTokenSignatureInvalid},
		{"expired", expired, jwt.ErrTokenExpired},
		{"garbage", "not-a-token", jwt.ErrTokenMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
