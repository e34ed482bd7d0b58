package core

import (
	"strings"
	"time"
)

const (
	Checking   AccountType = "checking"
	Savings    AccountType = "savings"
	Credit     AccountType = "credit"
	Cash       AccountType = "cash"
	Investment AccountType = "investment"
)

const (
	Expense CategoryKind = "expense"
	Income  CategoryKind = "income"
)

// Uncategorized is the label aggregation uses for transactions
// without a category reference.
const Uncategorized = "Uncategorized"

type (
	AccountType  string
	CategoryKind string

	// Date is a calendar date at UTC midnight.
	Date struct {
		time.Time
	}

	User struct {
		ID           string
		Email        string
		PasswordHash string
		Confirmed    bool
		CreatedAt    time.Time
	}

	Account struct {
		ID        string
		UserID    string
		Name      string
		Type      AccountType
		// Opening is the balance the account was created with; Balance is
		// the materialized projection Opening + sum of posted amounts.
		Opening   Money
		Balance   Money
		CreatedAt time.Time
	}

	Category struct {
		ID     string
		UserID string
		Name   string
		Kind   CategoryKind
		Color  string
	}

	Transaction struct {
		ID          string
		UserID      string
		AccountID   string
		CategoryID  string // empty means uncategorized
		Date        Date
		Amount      Money // signed: negative expense, positive income
		Merchant    string
		Description string
		ReceiptPath string
		CreatedAt   time.Time

		// Joined labels, populated by list queries only.
		AccountName   string
		CategoryName  string
		CategoryColor string
	}

	Budget struct {
		ID         string
		UserID     string
		CategoryID string
		// Limit is the monthly cap; always positive.
		Limit Money

		// Joined label, populated by list queries only.
		CategoryName string
	}
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to a calendar date at UTC midnight.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// SameMonth reports whether both dates fall in the same year and month.
func (d Date) SameMonth(o Date) bool {
	return d.Year() == o.Year() && d.Month() == o.Month()
}

func (t AccountType) Valid() bool {
	switch t {
	case Checking, Savings, Credit, Cash, Investment:
		return true
	}
	return false
}

func (k CategoryKind) Valid() bool {
	return k == Expense || k == Income
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.AccountID == "" {
		return ErrReferenceNotFound
	}
	if t.Amount.IsZero() {
		return ErrZeroAmount
	}
	if len(t.Description) > 500 {
		return ErrValidation
	}
	return nil
}

func (b Budget) Validate() error {
	if b.CategoryID == "" {
		return ErrReferenceNotFound
	}
	if b.Limit.Cents <= 0 {
		return ErrInvalidLimit
	}
	return nil
}
