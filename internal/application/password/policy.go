// Package password validates password strength and hashes credentials.
package password

import (
	"fmt"
	"unicode"

	"github.com/go-auth-nosql/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinLength = 8
	// bcrypt ignores input past 72 bytes.
	MaxLength = 72
)

// Strength is the outcome of ValidateStrength.
type Strength struct {
	Valid  bool
	Errors []string
}

// ValidateStrength checks length and composition. Errors are ordered so the
// first entry is the primary violation.
func ValidateStrength(password string) Strength {
	var errs []string
	if len(password) < MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", MinLength))
	}
	if len(password) > MaxLength {
		errs = append(errs, fmt.Sprintf("password must be at most %d bytes", MaxLength))
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if !upper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if !digit {
		errs = append(errs, "password must contain a number")
	}
	return Strength{Valid: len(errs) == 0, Errors: errs}
}

// Check returns a *domain.PolicyError when password fails ValidateStrength.
func Check(password string) error {
	s := ValidateStrength(password)
	if s.Valid {
		return nil
	}
	return &domain.PolicyError{Violations: s.Errors}
}

// Hasher hashes and verifies passwords with bcrypt at a tunable cost.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. A mismatch is not an error;
// an empty or malformed hash is reported as a mismatch as well.
func (h *Hasher) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
