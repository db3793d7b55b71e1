// Package model defines the core domain types shared across storage,
// services, and the HTTP API.
package model

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Client is a dashboard user. Clients own agents; every agent and every
// execution is reachable from exactly one client.
type Client struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MaxEmailLen bounds the email column; RFC 5321 allows up to 254.
const MaxEmailLen = 254

// ValidateEmail checks that an email address is plausibly deliverable.
// Intentionally loose: one @, non-empty local and domain parts, a dot in
// the domain. Real validation happens when mail bounces.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must be at most %d characters", MaxEmailLen)
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("invalid email format")
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.Contains(email[at+1:], "@") {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidatePassword enforces the minimum password policy for new clients:
// at least 12 characters with uppercase, lowercase, and a digit.
func ValidatePassword(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return fmt.Errorf("password must contain uppercase, lowercase, and a digit")
	}
	return nil
}
