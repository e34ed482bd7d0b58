// Package worker verifies that stored account balances match their
// posted transactions. It consumes ledger events from AMQP and repairs
// any balance that has drifted from the recomputed value.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/ledger"
	"bilancio/internal/store"
)

// DriftVerifier recomputes balances from first principles after every
// ledger event. Repairs are idempotent, so replayed events are safe.
type DriftVerifier struct {
	store  store.Store
	engine *ledger.Engine
}

func NewDriftVerifier(st store.Store, engine *ledger.Engine) *DriftVerifier {
	return &DriftVerifier{store: st, engine: engine}
}

// HandleLedgerEvent processes a single ledger event from AMQP.
func (w *DriftVerifier) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"component", "worker",
		"type", event.Type,
		"account_id", event.AccountID,
		"transaction_id", event.TransactionID)

	return w.verifyAccount(ctx, event.UserID, event.AccountID)
}

// SweepUser verifies every account of one user. Useful at startup to
// recover from missed events or worker downtime.
func (w *DriftVerifier) SweepUser(ctx context.Context, userID string) error {
	accounts, err := w.store.ListAccounts(ctx, userID)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	var failed int
	for _, acc := range accounts {
		if err := w.verifyAccount(ctx, userID, acc.ID); err != nil {
			slog.ErrorContext(ctx, "Account verification failed",
				"component", "worker", "account_id", acc.ID, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("sweep: %d of %d accounts failed", failed, len(accounts))
	}

	slog.InfoContext(ctx, "Sweep completed",
		"component", "worker", "user_id", userID, "accounts", len(accounts))
	return nil
}

func (w *DriftVerifier) verifyAccount(ctx context.Context, userID, accountID string) error {
	account, err := w.store.AccountByID(ctx, userID, accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	want, err := w.engine.RecomputeBalance(ctx, userID, accountID)
	if err != nil {
		return fmt.Errorf("recompute balance: %w", err)
	}

	if account.Balance == want {
		slog.DebugContext(ctx, "Balance verified",
			"component", "worker", "account_id", accountID, "balance_cents", want.Cents)
		return nil
	}

	slog.WarnContext(ctx, "Balance drift detected",
		"component", "worker",
		"account_id", accountID,
		"stored_cents", account.Balance.Cents,
		"computed_cents", want.Cents)

	if err := w.store.SetAccountBalance(ctx, userID, accountID, want); err != nil {
		return fmt.Errorf("repair balance: %w", err)
	}

	slog.InfoContext(ctx, "Balance repaired",
		"component", "worker", "account_id", accountID, "balance_cents", want.Cents)
	return nil
}
