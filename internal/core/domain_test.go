package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-09")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.Year() != 2025 || int(d.Month()) != 3 || d.Day() != 9 {
		t.Fatalf("unexpected date: %v", d)
	}

	for _, bad := range []string{"", "2025-13-01", "09/03/2025", "yesterday"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestDateSameMonth(t *testing.T) {
	a := NewDate(2025, 6, 1)
	b := NewDate(2025, 6, 30)
	c := NewDate(2024, 6, 1)
	if !a.SameMonth(b) {
		t.Fatal("expected same month")
	}
	if a.SameMonth(c) {
		t.Fatal("different years must not match")
	}
}

func TestAccountValidate(t *testing.T) {
	good := Account{Name: "Main", Type: Checking}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Account{Name: " ", Type: Checking}).Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if err := (Account{Name: "X", Type: "wallet"}).Validate(); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		AccountID: "acc-1",
		Date:      NewDate(2025, 1, 2),
		Amount:    Money{Cents: -500},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		tx   Transaction
		want error
	}{
		{Transaction{AccountID: "a", Amount: Money{Cents: 1}}, ErrInvalidDate},
		{Transaction{AccountID: "", Date: NewDate(2025, 1, 1), Amount: Money{Cents: 1}}, ErrReferenceNotFound},
		{Transaction{AccountID: "a", Date: NewDate(2025, 1, 1), Amount: Money{}}, ErrZeroAmount},
	}
	for i, tc := range cases {
		if err := tc.tx.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestBudgetValidate(t *testing.T) {
	if err := (Budget{CategoryID: "c", Limit: Money{Cents: 20000}}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Budget{CategoryID: "c", Limit: Money{Cents: 0}}).Validate(); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	if err := (Budget{Limit: Money{Cents: 1}}).Validate(); !errors.Is(err, ErrReferenceNotFound) {
		t.Fatalf("expected ErrReferenceNotFound, got %v", err)
	}
}

func TestDateOfTruncates(t *testing.T) {
	ts := time.Date(2025, 8, 28, 17, 45, 12, 999, time.UTC)
	d := DateOf(ts)
	if d.Hour() != 0 || d.Minute() != 0 {
		t.Fatalf("expected midnight, got %v", d.Time)
	}
	if d.String() != "2025-08-28" {
		t.Fatalf("unexpected string: %s", d.String())
	}
}
