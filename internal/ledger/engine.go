// Package ledger keeps account balances consistent with posted
// transactions and serves transaction history. Every balance-affecting
// write goes through the store as one atomic unit; the engine itself
// holds no state and is safe for concurrent use.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/store"
)

// EventPublisher publishes ledger events after balance-affecting
// writes. A nil publisher disables events; publish failures are logged
// and never fail the write that already committed.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

type Engine struct {
	store  store.Store
	events EventPublisher
}

func New(st store.Store, events EventPublisher) *Engine {
	return &Engine{store: st, events: events}
}

// PostInput carries the fields of a new transaction. Amount is signed:
// the caller decides income (positive) vs expense (negative) before
// this call; the engine never infers the sign.
type PostInput struct {
	AccountID   string
	CategoryID  string // optional, empty means uncategorized
	Date        core.Date
	Amount      core.Money
	Merchant    string
	Description string
	ReceiptPath string
}

// UpdateInput carries the mutable fields of a transaction. Magnitude is
// unsigned; the stored sign is reapplied (sign-preserving update: an
// edit cannot flip expense to income or back).
type UpdateInput struct {
	Magnitude   core.Money
	Merchant    string
	Description string
}

// Post records a transaction and applies its balance delta to the
// owning account as a single unit.
func (e *Engine) Post(ctx context.Context, userID string, in PostInput) (core.Transaction, error) {
	if userID == "" {
		return core.Transaction{}, core.ErrNotAuthenticated
	}

	t := core.Transaction{
		UserID:      userID,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Date:        in.Date,
		Amount:      in.Amount,
		Merchant:    strings.TrimSpace(in.Merchant),
		Description: strings.TrimSpace(in.Description),
		ReceiptPath: in.ReceiptPath,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	// Resolve references against owned records before writing anything.
	if _, err := e.store.AccountByID(ctx, userID, in.AccountID); err != nil {
		return core.Transaction{}, refErr("account", in.AccountID, err)
	}
	if in.CategoryID != "" {
		if _, err := e.store.CategoryByID(ctx, userID, in.CategoryID); err != nil {
			return core.Transaction{}, refErr("category", in.CategoryID, err)
		}
	}

	posted, err := e.store.InsertTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("post transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction posted",
		"transaction_id", posted.ID,
		"account_id", posted.AccountID,
		"amount_cents", posted.Amount.Cents,
		"date", posted.Date.String())

	e.publish(ctx, amqp.EventTransactionPosted, userID, posted.AccountID, posted.ID)
	return posted, nil
}

// Update edits merchant, description and the amount magnitude, then
// applies the resulting balance delta (old amount removed, new amount
// added) on the owning account. Moving a transaction to another account
// is not supported; delete and repost instead.
func (e *Engine) Update(ctx context.Context, userID, id string, in UpdateInput) (core.Transaction, error) {
	if userID == "" {
		return core.Transaction{}, core.ErrNotAuthenticated
	}
	if in.Magnitude.Cents <= 0 {
		return core.Transaction{}, core.ErrInvalidAmount
	}

	old, err := e.store.TransactionByID(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load transaction: %w", err)
	}

	newAmount := in.Magnitude
	if old.Amount.Cents < 0 {
		newAmount = in.Magnitude.Neg()
	}
	delta := newAmount.Add(old.Amount.Neg())

	updated := old
	updated.Amount = newAmount
	updated.Merchant = strings.TrimSpace(in.Merchant)
	updated.Description = strings.TrimSpace(in.Description)
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, err
	}

	updated, err = e.store.UpdateTransaction(ctx, updated, delta)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", id,
		"delta_cents", delta.Cents)

	e.publish(ctx, amqp.EventTransactionPosted, userID, updated.AccountID, updated.ID)
	return updated, nil
}

// Delete removes a transaction and reverses its balance effect, so the
// derived-balance invariant holds after any interleaving of posts and
// deletes.
func (e *Engine) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return core.ErrNotAuthenticated
	}

	t, err := e.store.TransactionByID(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}

	if err := e.store.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"transaction_id", id,
		"account_id", t.AccountID,
		"reversed_cents", t.Amount.Neg().Cents)

	e.publish(ctx, amqp.EventTransactionDeleted, userID, t.AccountID, id)
	return nil
}

// List returns transactions in the inclusive date range, newest first,
// with account and category labels joined in. Either bound may be nil
// for an open-ended range. Each call issues a fresh query.
func (e *Engine) List(ctx context.Context, userID string, from, to *core.Date) ([]core.Transaction, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	txs, err := e.store.ListTransactions(ctx, userID, store.TransactionFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// RecomputeBalance derives the balance from scratch: opening value plus
// the sum of currently posted amounts. It exists for drift detection
// and repair; the normal flow maintains the balance incrementally.
func (e *Engine) RecomputeBalance(ctx context.Context, userID, accountID string) (core.Money, error) {
	if userID == "" {
		return core.Money{}, core.ErrNotAuthenticated
	}
	acc, err := e.store.AccountByID(ctx, userID, accountID)
	if err != nil {
		return core.Money{}, refErr("account", accountID, err)
	}
	sum, err := e.store.SumAccountAmounts(ctx, userID, accountID)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum amounts: %w", err)
	}
	return acc.Opening.Add(sum), nil
}

func (e *Engine) publish(ctx context.Context, eventType, userID, accountID, transactionID string) {
	if e.events == nil {
		return
	}
	event := amqp.NewLedgerEvent(eventType, userID, accountID, transactionID)
	if err := e.events.PublishEvent(ctx, event); err != nil {
		// The write already committed; events are best effort.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"error", err,
			"type", eventType,
			"transaction_id", transactionID)
	}
}

func refErr(kind, id string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrReferenceNotFound)
	}
	return fmt.Errorf("resolve %s %s: %w", kind, id, err)
}
