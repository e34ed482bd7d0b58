// Package memory is an in-memory entity store used by tests and local
// development. A single mutex serializes all access, which satisfies
// the atomicity the transaction writes require.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/store"
)

type Store struct {
	mu           sync.Mutex
	users        map[string]core.User
	accounts     map[string]core.Account
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	budgets      map[string]core.Budget
	revoked      map[string]time.Time
}

func New() *Store {
	return &Store{
		users:        map[string]core.User{},
		accounts:     map[string]core.Account{},
		categories:   map[string]core.Category{},
		transactions: map[string]core.Transaction{},
		budgets:      map[string]core.Budget{},
		revoked:      map[string]time.Time{},
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Close() error { return nil }

// --- users ---

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return core.User{}, core.ErrDuplicateEmail
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) ConfirmUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	u.Confirmed = true
	s.users[userID] = u
	return nil
}

// --- accounts ---

func (s *Store) CreateAccount(_ context.Context, a core.Account) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) AccountByID(_ context.Context, userID, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return core.Account{}, core.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context, userID string) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteAccount(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return core.ErrNotFound
	}
	for _, t := range s.transactions {
		if t.AccountID == id {
			return core.ErrAccountInUse
		}
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) SetAccountBalance(_ context.Context, userID, id string, balance core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return core.ErrNotFound
	}
	a.Balance = balance
	s.accounts[id] = a
	return nil
}

// --- categories ---

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.UserID == c.UserID && strings.EqualFold(existing.Name, c.Name) {
			return core.Category{}, core.ErrDuplicateCategory
		}
	}
	c.ID = uuid.NewString()
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) CategoryByID(_ context.Context, userID, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, userID string, kind core.CategoryKind) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.UserID != userID {
			continue
		}
		if kind != "" && c.Kind != kind {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- transactions ---

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[t.AccountID]
	if !ok || acc.UserID != t.UserID {
		return core.Transaction{}, core.ErrReferenceNotFound
	}
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	s.transactions[t.ID] = t
	acc.Balance = acc.Balance.Add(t.Amount)
	s.accounts[acc.ID] = acc
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction, delta core.Money) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.transactions[t.ID]
	if !ok || old.UserID != t.UserID {
		return core.Transaction{}, core.ErrNotFound
	}
	acc := s.accounts[old.AccountID]
	acc.Balance = acc.Balance.Add(delta)
	s.accounts[acc.ID] = acc
	t.AccountID = old.AccountID
	t.CreatedAt = old.CreatedAt
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok || t.UserID != userID {
		return core.ErrNotFound
	}
	acc := s.accounts[t.AccountID]
	acc.Balance = acc.Balance.Add(t.Amount.Neg())
	s.accounts[acc.ID] = acc
	delete(s.transactions, id)
	return nil
}

func (s *Store) TransactionByID(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok || t.UserID != userID {
		return core.Transaction{}, core.ErrNotFound
	}
	return s.joined(t), nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, f store.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.UserID != userID {
			continue
		}
		if f.From != nil && t.Date.Before(f.From.Time) {
			continue
		}
		if f.To != nil && t.Date.After(f.To.Time) {
			continue
		}
		out = append(out, s.joined(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SumAccountAmounts(_ context.Context, userID, accountID string) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok || acc.UserID != userID {
		return core.Money{}, core.ErrNotFound
	}
	var sum core.Money
	for _, t := range s.transactions {
		if t.AccountID == accountID {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (s *Store) joined(t core.Transaction) core.Transaction {
	if acc, ok := s.accounts[t.AccountID]; ok {
		t.AccountName = acc.Name
	}
	if t.CategoryID != "" {
		if cat, ok := s.categories[t.CategoryID]; ok {
			t.CategoryName = cat.Name
			t.CategoryColor = cat.Color
		}
	}
	return t
}

// --- budgets ---

func (s *Store) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.budgets {
		if existing.UserID == b.UserID && existing.CategoryID == b.CategoryID {
			return core.Budget{}, core.ErrDuplicateBudget
		}
	}
	b.ID = uuid.NewString()
	s.budgets[b.ID] = b
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, userID string) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.UserID != userID {
			continue
		}
		if cat, ok := s.categories[b.CategoryID]; ok {
			b.CategoryName = cat.Name
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryName < out[j].CategoryName })
	return out, nil
}

func (s *Store) UpdateBudgetLimit(_ context.Context, userID, id string, limit core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.UserID != userID {
		return core.ErrNotFound
	}
	b.Limit = limit
	s.budgets[id] = b
	return nil
}

func (s *Store) DeleteBudget(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.budgets, id)
	return nil
}

// --- sessions ---

func (s *Store) RevokeToken(_ context.Context, tokenID string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = expires
	return nil
}

func (s *Store) IsTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(s.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
