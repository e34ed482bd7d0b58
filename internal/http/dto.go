package http

import (
	"fmt"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/report"
)

// Wire representations. Amounts travel as decimal strings ("-50.00");
// cents never leak to clients.

type accountDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Opening   string `json:"opening"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"created_at"`
}

type categoryDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Color string `json:"color,omitempty"`
}

type transactionDTO struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	AccountName  string `json:"account_name,omitempty"`
	CategoryID   string `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	Date         string `json:"date"`
	Amount       string `json:"amount"`
	Merchant     string `json:"merchant,omitempty"`
	Description  string `json:"description,omitempty"`
	ReceiptPath  string `json:"receipt_path,omitempty"`
}

type budgetDTO struct {
	ID           string `json:"id"`
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name,omitempty"`
	Limit        string `json:"limit"`
}

type summaryDTO struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Net     string `json:"net"`
}

type categoryTotalDTO struct {
	Category string `json:"category"`
	Total    string `json:"total"`
}

type dayTotalDTO struct {
	Date  string `json:"date"`
	Total string `json:"total"`
}

type utilizationDTO struct {
	Category string  `json:"category"`
	Spent    string  `json:"spent"`
	Limit    string  `json:"limit"`
	Ratio    float64 `json:"ratio"`
}

func toAccountDTO(a core.Account) accountDTO {
	return accountDTO{
		ID:        a.ID,
		Name:      a.Name,
		Type:      string(a.Type),
		Opening:   a.Opening.String(),
		Balance:   a.Balance.String(),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

func toCategoryDTO(c core.Category) categoryDTO {
	return categoryDTO{ID: c.ID, Name: c.Name, Kind: string(c.Kind), Color: c.Color}
}

func toTransactionDTO(t core.Transaction) transactionDTO {
	return transactionDTO{
		ID:           t.ID,
		AccountID:    t.AccountID,
		AccountName:  t.AccountName,
		CategoryID:   t.CategoryID,
		CategoryName: t.CategoryName,
		Date:         t.Date.String(),
		Amount:       t.Amount.String(),
		Merchant:     t.Merchant,
		Description:  t.Description,
		ReceiptPath:  t.ReceiptPath,
	}
}

func toBudgetDTO(b core.Budget) budgetDTO {
	return budgetDTO{
		ID:           b.ID,
		CategoryID:   b.CategoryID,
		CategoryName: b.CategoryName,
		Limit:        b.Limit.String(),
	}
}

func toUtilizationDTO(u report.Utilization) utilizationDTO {
	return utilizationDTO{
		Category: u.Category,
		Spent:    u.Spent.String(),
		Limit:    u.Limit.String(),
		Ratio:    u.Ratio,
	}
}

// parseSignedAmount accepts an optional leading sign before the
// decimal string.
func parseSignedAmount(s string) (core.Money, error) {
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: amount", core.ErrValidation)
	}
	if neg {
		cents = -cents
	}
	return core.Money{Cents: cents}, nil
}

// parseUnsignedAmount rejects signed input outright.
func parseUnsignedAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(strings.TrimSpace(s))
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: amount", core.ErrValidation)
	}
	return core.Money{Cents: cents}, nil
}
