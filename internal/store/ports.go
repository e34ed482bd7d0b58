// Package store defines the ports to the entity store. Implementations
// live in the memory, sqlite and postgres subpackages; engines depend
// only on these interfaces.
package store

import (
	"context"
	"time"

	"bilancio/internal/core"
)

// TransactionFilter narrows a transaction listing. Both bounds are
// inclusive; a nil bound leaves that side of the range open.
type TransactionFilter struct {
	From *core.Date
	To   *core.Date
}

type (
	UserStore interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		UserByEmail(ctx context.Context, email string) (core.User, error)
		ConfirmUser(ctx context.Context, userID string) error
	}

	AccountStore interface {
		CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
		AccountByID(ctx context.Context, userID, id string) (core.Account, error)
		ListAccounts(ctx context.Context, userID string) ([]core.Account, error)
		// DeleteAccount fails with core.ErrAccountInUse while transactions
		// still reference the account.
		DeleteAccount(ctx context.Context, userID, id string) error
		// SetAccountBalance overwrites the materialized balance. Only the
		// drift repair path uses it; normal flow goes through the atomic
		// increments applied by the transaction writes.
		SetAccountBalance(ctx context.Context, userID, id string, balance core.Money) error
	}

	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		CategoryByID(ctx context.Context, userID, id string) (core.Category, error)
		// ListCategories returns all categories when kind is empty.
		ListCategories(ctx context.Context, userID string, kind core.CategoryKind) ([]core.Category, error)
	}

	// TransactionStore owns the cross-record atomicity discipline: every
	// write that changes a posted amount applies the matching balance
	// delta to the owning account in the same store transaction, and the
	// delta is expressed as an increment, never a read-then-write.
	TransactionStore interface {
		// InsertTransaction stores t and increments the account balance by
		// t.Amount as a single atomic unit.
		InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// UpdateTransaction rewrites the mutable fields and increments the
		// account balance by delta in the same unit.
		UpdateTransaction(ctx context.Context, t core.Transaction, delta core.Money) (core.Transaction, error)
		// DeleteTransaction removes the row and reverses its balance
		// effect in the same unit.
		DeleteTransaction(ctx context.Context, userID, id string) error
		TransactionByID(ctx context.Context, userID, id string) (core.Transaction, error)
		// ListTransactions returns matches in descending date order with
		// account and category labels joined in.
		ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]core.Transaction, error)
		// SumAccountAmounts totals the signed amounts currently posted to
		// one account.
		SumAccountAmounts(ctx context.Context, userID, accountID string) (core.Money, error)
	}

	BudgetStore interface {
		// CreateBudget fails with core.ErrDuplicateBudget when the
		// (owner, category) pair already has one.
		CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		ListBudgets(ctx context.Context, userID string) ([]core.Budget, error)
		UpdateBudgetLimit(ctx context.Context, userID, id string, limit core.Money) error
		DeleteBudget(ctx context.Context, userID, id string) error
	}

	SessionStore interface {
		RevokeToken(ctx context.Context, tokenID string, expires time.Time) error
		IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
	}
)

// Store is the unified entity store every backend implements.
type Store interface {
	UserStore
	AccountStore
	CategoryStore
	TransactionStore
	BudgetStore
	SessionStore

	Close() error
}
