package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across engines, stores and the HTTP boundary.
// Wrap them with fmt.Errorf("...: %w", err) and match with errors.Is.
var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNotFound          = errors.New("not found")
	ErrReferenceNotFound = errors.New("referenced record not found")
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateBudget   = errors.New("budget already exists for category")
	ErrDuplicateCategory = errors.New("category name already exists")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrAccountInUse      = errors.New("account has posted transactions")
	ErrExtractionFailed  = errors.New("receipt extraction failed")
	ErrExternalService   = errors.New("external service error")
	ErrBadCredentials    = errors.New("invalid email or password")
	ErrNotConfirmed      = errors.New("email not confirmed")
	ErrInvalidToken      = errors.New("invalid or expired token")
)

// Field-level validation failures. Each wraps ErrValidation so callers
// can match the class with errors.Is(err, ErrValidation) or pick out
// the specific field sentinel.
var (
	ErrInvalidDate      = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrZeroAmount       = fmt.Errorf("%w: amount must not be zero", ErrValidation)
	ErrEmptyName        = fmt.Errorf("%w: empty name", ErrValidation)
	ErrInvalidKind      = fmt.Errorf("%w: invalid category kind", ErrValidation)
	ErrInvalidType      = fmt.Errorf("%w: invalid account type", ErrValidation)
	ErrInvalidLimit     = fmt.Errorf("%w: budget limit must be positive", ErrValidation)
	ErrExpenseCatNeeded = fmt.Errorf("%w: budget requires an expense category", ErrValidation)
)
