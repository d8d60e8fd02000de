package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: participation 3", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: already started", ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: maximum attempts reached", ErrInvalidState), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: not your participation", ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("load cycle: %w", fmt.Errorf("%w: nested", ErrNotFound)), http.StatusNotFound},
		{errors.New("driver: bad connection"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusForError(tt.err); got != tt.want {
			t.Fatalf("StatusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(10, RoleLearner, "ada@example.com", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != 10 || claims.Role != RoleLearner || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := ParseJWT(token, "other-secret"); err == nil {
		t.Fatalf("a token signed with another secret must be rejected")
	}
}

func TestJWTExpired(t *testing.T) {
	token, err := GenerateJWT(10, RoleLearner, "", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	if _, err := ParseJWT(token, "secret"); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{66.666666, 66.67},
		{33.333333, 33.33},
		{50.125, 50.13},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Fatalf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
