package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/store"
)

func seedUser(t *testing.T, s *Store) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.User{Email: "a@b.c", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := New()
	seedUser(t, s)
	_, err := s.CreateUser(context.Background(), core.User{Email: "A@B.C"})
	if !errors.Is(err, core.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestInsertTransactionAppliesBalance(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := seedUser(t, s)
	acc, err := s.CreateAccount(ctx, core.Account{
		UserID: u.ID, Name: "Main", Type: core.Checking,
		Opening: core.Money{Cents: 100000}, Balance: core.Money{Cents: 100000},
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	_, err = s.InsertTransaction(ctx, core.Transaction{
		UserID: u.ID, AccountID: acc.ID,
		Date: core.NewDate(2025, 1, 10), Amount: core.Money{Cents: -5000},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, _ := s.AccountByID(ctx, u.ID, acc.ID)
	if got.Balance.Cents != 95000 {
		t.Fatalf("expected balance 95000, got %d", got.Balance.Cents)
	}
}

func TestInsertTransactionRejectsForeignAccount(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := seedUser(t, s)
	other, _ := s.CreateUser(ctx, core.User{Email: "other@b.c"})
	acc, _ := s.CreateAccount(ctx, core.Account{UserID: other.ID, Name: "X", Type: core.Cash})

	_, err := s.InsertTransaction(ctx, core.Transaction{
		UserID: u.ID, AccountID: acc.ID,
		Date: core.NewDate(2025, 1, 1), Amount: core.Money{Cents: -1},
	})
	if !errors.Is(err, core.ErrReferenceNotFound) {
		t.Fatalf("expected ErrReferenceNotFound, got %v", err)
	}
}

func TestDeleteTransactionReversesBalance(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := seedUser(t, s)
	acc, _ := s.CreateAccount(ctx, core.Account{
		UserID: u.ID, Name: "Main", Type: core.Checking,
		Opening: core.Money{Cents: 1000}, Balance: core.Money{Cents: 1000},
	})
	tx, _ := s.InsertTransaction(ctx, core.Transaction{
		UserID: u.ID, AccountID: acc.ID,
		Date: core.NewDate(2025, 2, 1), Amount: core.Money{Cents: 2500},
	})

	if err := s.DeleteTransaction(ctx, u.ID, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := s.AccountByID(ctx, u.ID, acc.ID)
	if got.Balance.Cents != 1000 {
		t.Fatalf("expected balance back to 1000, got %d", got.Balance.Cents)
	}
}

func TestListTransactionsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := seedUser(t, s)
	acc, _ := s.CreateAccount(ctx, core.Account{UserID: u.ID, Name: "Main", Type: core.Checking})
	cat, _ := s.CreateCategory(ctx, core.Category{UserID: u.ID, Name: "Food", Kind: core.Expense, Color: "#f00"})

	for _, d := range []core.Date{
		core.NewDate(2025, 1, 5),
		core.NewDate(2025, 1, 20),
		core.NewDate(2025, 2, 3),
	} {
		if _, err := s.InsertTransaction(ctx, core.Transaction{
			UserID: u.ID, AccountID: acc.ID, CategoryID: cat.ID,
			Date: d, Amount: core.Money{Cents: -100},
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	from := core.NewDate(2025, 1, 5)
	to := core.NewDate(2025, 1, 31)
	got, err := s.ListTransactions(ctx, u.ID, store.TransactionFilter{From: &from, To: &to})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if got[0].Date.Before(got[1].Date.Time) {
		t.Fatal("expected descending date order")
	}
	if got[0].AccountName != "Main" || got[0].CategoryName != "Food" || got[0].CategoryColor != "#f00" {
		t.Fatalf("expected joined labels, got %+v", got[0])
	}
}

func TestDeleteAccountInUse(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := seedUser(t, s)
	acc, _ := s.CreateAccount(ctx, core.Account{UserID: u.ID, Name: "Main", Type: core.Checking})
	if _, err := s.InsertTransaction(ctx, core.Transaction{
		UserID: u.ID, AccountID: acc.ID, Date: core.NewDate(2025, 1, 1), Amount: core.Money{Cents: -1},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.DeleteAccount(ctx, u.ID, acc.ID); !errors.Is(err, core.ErrAccountInUse) {
		t.Fatalf("expected ErrAccountInUse, got %v", err)
	}
}

func TestBudgetUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := seedUser(t, s)
	cat, _ := s.CreateCategory(ctx, core.Category{UserID: u.ID, Name: "Food", Kind: core.Expense})

	if _, err := s.CreateBudget(ctx, core.Budget{UserID: u.ID, CategoryID: cat.ID, Limit: core.Money{Cents: 20000}}); err != nil {
		t.Fatalf("create budget: %v", err)
	}
	_, err := s.CreateBudget(ctx, core.Budget{UserID: u.ID, CategoryID: cat.ID, Limit: core.Money{Cents: 100}})
	if !errors.Is(err, core.ErrDuplicateBudget) {
		t.Fatalf("expected ErrDuplicateBudget, got %v", err)
	}
}

func TestCategoryUniquePerOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := seedUser(t, s)
	if _, err := s.CreateCategory(ctx, core.Category{UserID: u.ID, Name: "Food", Kind: core.Expense}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateCategory(ctx, core.Category{UserID: u.ID, Name: "food", Kind: core.Expense}); !errors.Is(err, core.ErrDuplicateCategory) {
		t.Fatal("expected ErrDuplicateCategory for same owner")
	}
	other, _ := s.CreateUser(ctx, core.User{Email: "o@b.c"})
	if _, err := s.CreateCategory(ctx, core.Category{UserID: other.ID, Name: "Food", Kind: core.Expense}); err != nil {
		t.Fatalf("other owner may reuse the name: %v", err)
	}
}

func TestTokenRevocation(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.RevokeToken(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := s.IsTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}
	revoked, _ = s.IsTokenRevoked(ctx, "jti-unknown")
	if revoked {
		t.Fatal("unknown token must not be revoked")
	}
}
