package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bilancio/internal/core"
)

// Default expense/income taxonomy created for a fresh user.
var defaultCategories = []core.Category{
	{Name: "Food", Kind: core.Expense},
	{Name: "Rent", Kind: core.Expense},
	{Name: "Utilities", Kind: core.Expense},
	{Name: "Salary", Kind: core.Income},
	{Name: "Entertainment", Kind: core.Expense},
	{Name: "Transport", Kind: core.Expense},
}

// CreateAccount opens an account with an explicit initial balance. The
// opening value seeds the materialized balance.
func (e *Engine) CreateAccount(ctx context.Context, userID, name string, accountType core.AccountType, opening core.Money) (core.Account, error) {
	if userID == "" {
		return core.Account{}, core.ErrNotAuthenticated
	}
	a := core.Account{
		UserID:  userID,
		Name:    strings.TrimSpace(name),
		Type:    accountType,
		Opening: opening,
		Balance: opening,
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	created, err := e.store.CreateAccount(ctx, a)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	slog.InfoContext(ctx, "Account created",
		"account_id", created.ID,
		"type", string(created.Type),
		"opening_cents", created.Opening.Cents)
	return created, nil
}

func (e *Engine) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	return e.store.ListAccounts(ctx, userID)
}

// DeleteAccount removes an account. Accounts with posted transactions
// are refused rather than orphaning history or cascading silently.
func (e *Engine) DeleteAccount(ctx context.Context, userID, id string) error {
	if userID == "" {
		return core.ErrNotAuthenticated
	}
	if err := e.store.DeleteAccount(ctx, userID, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	slog.InfoContext(ctx, "Account deleted", "account_id", id)
	return nil
}

func (e *Engine) CreateCategory(ctx context.Context, userID, name string, kind core.CategoryKind, color string) (core.Category, error) {
	if userID == "" {
		return core.Category{}, core.ErrNotAuthenticated
	}
	c := core.Category{
		UserID: userID,
		Name:   strings.TrimSpace(name),
		Kind:   kind,
		Color:  strings.TrimSpace(color),
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	created, err := e.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}

// ListCategories returns the user's categories, all kinds when kind is
// empty.
func (e *Engine) ListCategories(ctx context.Context, userID string, kind core.CategoryKind) ([]core.Category, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	return e.store.ListCategories(ctx, userID, kind)
}

// SeedDefaultCategories creates the default taxonomy for users without
// any categories yet. Existing taxonomies are left alone.
func (e *Engine) SeedDefaultCategories(ctx context.Context, userID string) error {
	if userID == "" {
		return core.ErrNotAuthenticated
	}
	existing, err := e.store.ListCategories(ctx, userID, "")
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	for _, c := range defaultCategories {
		c.UserID = userID
		if _, err := e.store.CreateCategory(ctx, c); err != nil {
			return fmt.Errorf("seed category %s: %w", c.Name, err)
		}
	}
	slog.InfoContext(ctx, "Seeded default categories", "count", len(defaultCategories))
	return nil
}

// CreateBudget sets a monthly limit on an expense category. At most one
// budget per (owner, category) pair exists.
func (e *Engine) CreateBudget(ctx context.Context, userID, categoryID string, limit core.Money) (core.Budget, error) {
	if userID == "" {
		return core.Budget{}, core.ErrNotAuthenticated
	}
	b := core.Budget{UserID: userID, CategoryID: categoryID, Limit: limit}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	cat, err := e.store.CategoryByID(ctx, userID, categoryID)
	if err != nil {
		return core.Budget{}, refErr("category", categoryID, err)
	}
	if cat.Kind != core.Expense {
		return core.Budget{}, core.ErrExpenseCatNeeded
	}

	created, err := e.store.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	created.CategoryName = cat.Name
	return created, nil
}

func (e *Engine) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	return e.store.ListBudgets(ctx, userID)
}

func (e *Engine) UpdateBudgetLimit(ctx context.Context, userID, id string, limit core.Money) error {
	if userID == "" {
		return core.ErrNotAuthenticated
	}
	if limit.Cents <= 0 {
		return core.ErrInvalidLimit
	}
	if err := e.store.UpdateBudgetLimit(ctx, userID, id, limit); err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	return nil
}

func (e *Engine) DeleteBudget(ctx context.Context, userID, id string) error {
	if userID == "" {
		return core.ErrNotAuthenticated
	}
	if err := e.store.DeleteBudget(ctx, userID, id); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return nil
}
