// Package sqlite implements the entity store on an embedded SQLite
// database. Paired writes (transaction row + account balance) run
// inside one SQL transaction, and balance changes are expressed as
// atomic increments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"bilancio/internal/core"
	"bilancio/internal/store"
)

type Repository struct {
	db *sql.DB
}

func New(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

var _ store.Store = (*Repository)(nil)

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func isUniqueViolation(err error, table string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+table)
}

// --- users ---

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, confirmed, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Confirmed, u.CreatedAt)
	if isUniqueViolation(err, "users") {
		return core.User{}, core.ErrDuplicateEmail
	}
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, confirmed, created_at FROM users WHERE email = ?`,
		email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Confirmed, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (r *Repository) ConfirmUser(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET confirmed = 1 WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("confirm user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- accounts ---

func (r *Repository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, name, type, opening_cents, balance_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, string(a.Type), a.Opening.Cents, a.Balance.Cents, a.CreatedAt)
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

func (r *Repository) AccountByID(ctx context.Context, userID, id string) (core.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type, opening_cents, balance_cents, created_at
		 FROM accounts WHERE id = ? AND user_id = ?`, id, userID))
}

func scanAccount(row *sql.Row) (core.Account, error) {
	var a core.Account
	var typ string
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &typ, &a.Opening.Cents, &a.Balance.Cents, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.Type = core.AccountType(typ)
	return a, nil
}

func (r *Repository) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, type, opening_cents, balance_cents, created_at
		 FROM accounts WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		var a core.Account
		var typ string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &typ, &a.Opening.Cents, &a.Balance.Cents, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Type = core.AccountType(typ)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteAccount(ctx context.Context, userID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var refs int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = ?`, id).Scan(&refs); err != nil {
		return fmt.Errorf("count references: %w", err)
	}
	if refs > 0 {
		return core.ErrAccountInUse
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return tx.Commit()
}

func (r *Repository) SetAccountBalance(ctx context.Context, userID, id string, balance core.Money) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = ? WHERE id = ? AND user_id = ?`,
		balance.Cents, id, userID)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- categories ---

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, kind, color) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, string(c.Kind), nullable(c.Color))
	if isUniqueViolation(err, "categories") {
		return core.Category{}, core.ErrDuplicateCategory
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (r *Repository) CategoryByID(ctx context.Context, userID, id string) (core.Category, error) {
	var c core.Category
	var kind string
	var color sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, kind, color FROM categories WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&c.ID, &c.UserID, &c.Name, &kind, &color)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("select category: %w", err)
	}
	c.Kind = core.CategoryKind(kind)
	c.Color = color.String
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, userID string, kind core.CategoryKind) ([]core.Category, error) {
	query := `SELECT id, user_id, name, kind, color FROM categories WHERE user_id = ?`
	args := []any{userID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var k string
		var color sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &k, &color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.CategoryKind(k)
		c.Color = color.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- transactions ---

func (r *Repository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, account_id, category_id, date, amount_cents, merchant, description, receipt_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.AccountID, nullable(t.CategoryID), t.Date.String(), t.Amount.Cents,
		t.Merchant, t.Description, nullable(t.ReceiptPath), t.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	if err := applyBalanceDelta(ctx, tx, t.UserID, t.AccountID, t.Amount); err != nil {
		return core.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// applyBalanceDelta increments the account balance inside tx. The
// increment form keeps concurrent writers from losing updates.
func applyBalanceDelta(ctx context.Context, tx *sql.Tx, userID, accountID string, delta core.Money) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ? AND user_id = ?`,
		delta.Cents, accountID, userID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrReferenceNotFound
	}
	return nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, t core.Transaction, delta core.Money) (core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET amount_cents = ?, merchant = ?, description = ? WHERE id = ? AND user_id = ?`,
		t.Amount.Cents, t.Merchant, t.Description, t.ID, t.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, core.ErrNotFound
	}

	if !delta.IsZero() {
		if err := applyBalanceDelta(ctx, tx, t.UserID, t.AccountID, delta); err != nil {
			return core.Transaction{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, userID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var accountID string
	var amountCents int64
	err = tx.QueryRowContext(ctx,
		`SELECT account_id, amount_cents FROM transactions WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&accountID, &amountCents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	// Reverse the balance effect so the derived-balance invariant
	// survives deletes.
	if err := applyBalanceDelta(ctx, tx, userID, accountID, core.Money{Cents: -amountCents}); err != nil {
		return err
	}
	return tx.Commit()
}

const transactionColumns = `
	t.id, t.user_id, t.account_id, COALESCE(t.category_id, ''), t.date, t.amount_cents,
	t.merchant, t.description, COALESCE(t.receipt_path, ''), t.created_at,
	a.name, COALESCE(c.name, ''), COALESCE(c.color, '')`

const transactionJoins = `
	FROM transactions t
	JOIN accounts a ON a.id = t.account_id
	LEFT JOIN categories c ON c.id = t.category_id`

func scanTransaction(rows interface{ Scan(...any) error }) (core.Transaction, error) {
	var t core.Transaction
	var date string
	if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &t.CategoryID, &date, &t.Amount.Cents,
		&t.Merchant, &t.Description, &t.ReceiptPath, &t.CreatedAt,
		&t.AccountName, &t.CategoryName, &t.CategoryColor); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	t.Date = d
	return t, nil
}

func (r *Repository) TransactionByID(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+transactionColumns+transactionJoins+` WHERE t.id = ? AND t.user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("select transaction: %w", err)
	}
	return t, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID string, f store.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT` + transactionColumns + transactionJoins + ` WHERE t.user_id = ?`
	args := []any{userID}
	if f.From != nil {
		query += ` AND t.date >= ?`
		args = append(args, f.From.String())
	}
	if f.To != nil {
		query += ` AND t.date <= ?`
		args = append(args, f.To.String())
	}
	query += ` ORDER BY t.date DESC, t.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) SumAccountAmounts(ctx context.Context, userID, accountID string) (core.Money, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE account_id = ? AND user_id = ?`,
		accountID, userID).Scan(&sum)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum amounts: %w", err)
	}
	return core.Money{Cents: sum}, nil
}

// --- budgets ---

func (r *Repository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (id, user_id, category_id, limit_cents) VALUES (?, ?, ?, ?)`,
		b.ID, b.UserID, b.CategoryID, b.Limit.Cents)
	if isUniqueViolation(err, "budgets") {
		return core.Budget{}, core.ErrDuplicateBudget
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("insert budget: %w", err)
	}
	return b, nil
}

func (r *Repository) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.id, b.user_id, b.category_id, b.limit_cents, c.name
		 FROM budgets b JOIN categories c ON c.id = b.category_id
		 WHERE b.user_id = ? ORDER BY c.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.ID, &b.UserID, &b.CategoryID, &b.Limit.Cents, &b.CategoryName); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateBudgetLimit(ctx context.Context, userID, id string, limit core.Money) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE budgets SET limit_cents = ? WHERE id = ? AND user_id = ?`, limit.Cents, id, userID)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteBudget(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- sessions ---

func (r *Repository) RevokeToken(ctx context.Context, tokenID string, expires time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO revoked_tokens (token_id, expires_at) VALUES (?, ?)`,
		tokenID, expires.UTC())
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *Repository) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_tokens WHERE token_id = ? AND expires_at > ?`,
		tokenID, time.Now().UTC()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return n > 0, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
