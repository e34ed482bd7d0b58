// Package postgres implements the entity store on a remote PostgreSQL
// database via pgx. Paired writes run inside a pgx transaction and
// balance updates are atomic increments, so concurrent sessions posting
// to the same account cannot lose updates.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bilancio/internal/core"
	"bilancio/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Repository struct {
	pool *pgxpool.Pool
}

// New connects to the database and applies the idempotent schema.
func New(ctx context.Context, connString string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Repository{pool: pool}, nil
}

var _ store.Store = (*Repository)(nil)

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

const uniqueViolation = "23505"

func constraintViolated(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
	}
	return false
}

// --- users ---

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, confirmed) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		u.Email, u.PasswordHash, u.Confirmed).Scan(&u.ID, &u.CreatedAt)
	if constraintViolated(err, "users_email_key") {
		return core.User{}, core.ErrDuplicateEmail
	}
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, confirmed, created_at FROM users WHERE lower(email) = lower($1)`,
		email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Confirmed, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (r *Repository) ConfirmUser(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET confirmed = TRUE WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("confirm user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- accounts ---

func (r *Repository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (user_id, name, type, opening_cents, balance_cents)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		a.UserID, a.Name, string(a.Type), a.Opening.Cents, a.Balance.Cents).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

func (r *Repository) AccountByID(ctx context.Context, userID, id string) (core.Account, error) {
	var a core.Account
	var typ string
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, name, type, opening_cents, balance_cents, created_at
		 FROM accounts WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&a.ID, &a.UserID, &a.Name, &typ, &a.Opening.Cents, &a.Balance.Cents, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Account{}, core.ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("select account: %w", err)
	}
	a.Type = core.AccountType(typ)
	return a, nil
}

func (r *Repository) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, name, type, opening_cents, balance_cents, created_at
		 FROM accounts WHERE user_id = $1 ORDER BY created_at`, userID)
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
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var refs int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = $1`, id).Scan(&refs); err != nil {
		return fmt.Errorf("count references: %w", err)
	}
	if refs > 0 {
		return core.ErrAccountInUse
	}

	tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *Repository) SetAccountBalance(ctx context.Context, userID, id string, balance core.Money) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET balance_cents = $1 WHERE id = $2 AND user_id = $3`,
		balance.Cents, id, userID)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- categories ---

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (user_id, name, kind, color) VALUES ($1, $2, $3, NULLIF($4, ''))
		 RETURNING id`,
		c.UserID, c.Name, string(c.Kind), c.Color).Scan(&c.ID)
	if constraintViolated(err, "categories_user_name_key") {
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
	var color *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, name, kind, color FROM categories WHERE id = $1 AND user_id = $2`,
		id, userID).Scan(&c.ID, &c.UserID, &c.Name, &kind, &color)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("select category: %w", err)
	}
	c.Kind = core.CategoryKind(kind)
	if color != nil {
		c.Color = *color
	}
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, userID string, kind core.CategoryKind) ([]core.Category, error) {
	query := `SELECT id, user_id, name, kind, color FROM categories WHERE user_id = $1`
	args := []any{userID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, string(kind))
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var k string
		var color *string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &k, &color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.CategoryKind(k)
		if color != nil {
			c.Color = *color
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- transactions ---

func (r *Repository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (user_id, account_id, category_id, date, amount_cents, merchant, description, receipt_path)
		 VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, NULLIF($8, ''))
		 RETURNING id, created_at`,
		t.UserID, t.AccountID, t.CategoryID, t.Date.Time, t.Amount.Cents,
		t.Merchant, t.Description, t.ReceiptPath).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	if err := applyBalanceDelta(ctx, tx, t.UserID, t.AccountID, t.Amount); err != nil {
		return core.Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return core.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func applyBalanceDelta(ctx context.Context, tx pgx.Tx, userID, accountID string, delta core.Money) error {
	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + $1 WHERE id = $2 AND user_id = $3`,
		delta.Cents, accountID, userID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrReferenceNotFound
	}
	return nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, t core.Transaction, delta core.Money) (core.Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE transactions SET amount_cents = $1, merchant = $2, description = $3
		 WHERE id = $4 AND user_id = $5`,
		t.Amount.Cents, t.Merchant, t.Description, t.ID, t.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.Transaction{}, core.ErrNotFound
	}

	if !delta.IsZero() {
		if err := applyBalanceDelta(ctx, tx, t.UserID, t.AccountID, delta); err != nil {
			return core.Transaction{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return core.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, userID, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var accountID string
	var amountCents int64
	err = tx.QueryRow(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2 RETURNING account_id, amount_cents`,
		id, userID).Scan(&accountID, &amountCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if err := applyBalanceDelta(ctx, tx, userID, accountID, core.Money{Cents: -amountCents}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const transactionColumns = `
	t.id, t.user_id, t.account_id, COALESCE(t.category_id::text, ''), t.date, t.amount_cents,
	t.merchant, t.description, COALESCE(t.receipt_path, ''), t.created_at,
	a.name, COALESCE(c.name, ''), COALESCE(c.color, '')`

const transactionJoins = `
	FROM transactions t
	JOIN accounts a ON a.id = t.account_id
	LEFT JOIN categories c ON c.id = t.category_id`

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var t core.Transaction
	var date time.Time
	if err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.CategoryID, &date, &t.Amount.Cents,
		&t.Merchant, &t.Description, &t.ReceiptPath, &t.CreatedAt,
		&t.AccountName, &t.CategoryName, &t.CategoryColor); err != nil {
		return core.Transaction{}, err
	}
	t.Date = core.DateOf(date)
	return t, nil
}

func (r *Repository) TransactionByID(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+transactionColumns+transactionJoins+` WHERE t.id = $1 AND t.user_id = $2`, id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("select transaction: %w", err)
	}
	return t, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID string, f store.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT` + transactionColumns + transactionJoins + ` WHERE t.user_id = $1`
	args := []any{userID}
	if f.From != nil {
		args = append(args, f.From.Time)
		query += fmt.Sprintf(` AND t.date >= $%d`, len(args))
	}
	if f.To != nil {
		args = append(args, f.To.Time)
		query += fmt.Sprintf(` AND t.date <= $%d`, len(args))
	}
	query += ` ORDER BY t.date DESC, t.created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
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
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE account_id = $1 AND user_id = $2`,
		accountID, userID).Scan(&sum)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum amounts: %w", err)
	}
	return core.Money{Cents: sum}, nil
}

// --- budgets ---

func (r *Repository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO budgets (user_id, category_id, limit_cents) VALUES ($1, $2, $3) RETURNING id`,
		b.UserID, b.CategoryID, b.Limit.Cents).Scan(&b.ID)
	if constraintViolated(err, "budgets_user_category_key") {
		return core.Budget{}, core.ErrDuplicateBudget
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("insert budget: %w", err)
	}
	return b, nil
}

func (r *Repository) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT b.id, b.user_id, b.category_id, b.limit_cents, c.name
		 FROM budgets b JOIN categories c ON c.id = b.category_id
		 WHERE b.user_id = $1 ORDER BY c.name`, userID)
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
	tag, err := r.pool.Exec(ctx,
		`UPDATE budgets SET limit_cents = $1 WHERE id = $2 AND user_id = $3`, limit.Cents, id, userID)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteBudget(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM budgets WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- sessions ---

func (r *Repository) RevokeToken(ctx context.Context, tokenID string, expires time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO revoked_tokens (token_id, expires_at) VALUES ($1, $2)
		 ON CONFLICT (token_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		tokenID, expires.UTC())
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *Repository) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM revoked_tokens WHERE token_id = $1 AND expires_at > now()`,
		tokenID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return n > 0, nil
}
