// Package service provides business logic implementations.
package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Common errors for service operations.
var (
	ErrValidation            = errors.New("validation failed")
	ErrInvalidAccountID      = fmt.Errorf("%w: account id must be a UUID", ErrValidation)
	ErrInvalidIdempotencyKey = fmt.Errorf("%w: malformed idempotency key", ErrValidation)
	ErrIdempotencyKeyMissing = fmt.Errorf("%w: idempotency key required", ErrValidation)
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrItemNotFound          = errors.New("item not found")
	ErrDailyAlreadyClaimed   = errors.New("daily reward already claimed")
)

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{8,128}$`)

// NormalizeAccountID parses id as a UUID and returns its canonical form.
func NormalizeAccountID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrInvalidAccountID
	}
	return parsed.String(), nil
}

// ValidateIdempotencyKey checks a non-empty key against the accepted format.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	if !idempotencyKeyPattern.MatchString(key) {
		return ErrInvalidIdempotencyKey
	}
	return nil
}
