package core

import (
	"errors"
	"testing"
)

func TestFieldErrorsMatchValidationClass(t *testing.T) {
	fieldErrs := []error{
		ErrInvalidDate,
		ErrInvalidAmount,
		ErrZeroAmount,
		ErrEmptyName,
		ErrInvalidKind,
		ErrInvalidType,
		ErrInvalidLimit,
		ErrExpenseCatNeeded,
	}
	for _, err := range fieldErrs {
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%v does not match ErrValidation", err)
		}
		if errors.Is(ErrValidation, err) {
			t.Fatalf("ErrValidation must not match the narrower %v", err)
		}
	}
}
