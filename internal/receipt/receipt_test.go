package receipt

import (
	"context"
	"errors"
	"testing"

	"bilancio/internal/blob"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ocr"
	"bilancio/internal/store/memory"
)

// stubExtractor replays a canned model reply through the shared parser.
type stubExtractor struct {
	reply string
}

func (s stubExtractor) Extract(_ context.Context, _ string, _ []byte) (ocr.Fields, error) {
	return ocr.ParseFields(s.reply)
}

type fixture struct {
	bridge  *Bridge
	ledger  *ledger.Engine
	userID  string
	account core.Account
}

func newFixture(t *testing.T, reply string) fixture {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	u, err := st.CreateUser(ctx, core.User{Email: "r@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	eng := ledger.New(st, nil)
	acc, err := eng.CreateAccount(ctx, u.ID, "Main", core.Checking, core.Money{Cents: 100000})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	fs, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	return fixture{
		bridge:  NewBridge(fs, stubExtractor{reply: reply}, eng),
		ledger:  eng,
		userID:  u.ID,
		account: acc,
	}
}

func TestExtractThenConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "```json\n{\"merchant\":\"Esselunga\",\"date\":\"2025-06-03\",\"amount\":42.50,\"category\":\"Food\"}\n```")

	draft, err := f.bridge.Extract(ctx, f.userID, []byte("fake-jpeg"), "image/jpeg", "scan.jpg")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if draft.Fields.Merchant != "Esselunga" || draft.Fields.Amount.Cents != 4250 {
		t.Fatalf("unexpected fields %+v", draft.Fields)
	}
	if draft.ReceiptPath == "" {
		t.Fatal("expected stored receipt path")
	}
	if _, ok := f.bridge.Pending(f.userID); !ok {
		t.Fatal("expected pending draft")
	}

	tx, err := f.bridge.ConfirmAndCommit(ctx, f.userID, ConfirmInput{
		AccountID: f.account.ID,
		Date:      draft.Fields.Date,
		Amount:    draft.Fields.Amount,
		Merchant:  draft.Fields.Merchant,
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if tx.Amount.Cents != -4250 {
		t.Fatalf("expected forced expense -4250, got %d", tx.Amount.Cents)
	}
	if tx.ReceiptPath != draft.ReceiptPath {
		t.Fatalf("expected receipt path %q on transaction, got %q", draft.ReceiptPath, tx.ReceiptPath)
	}

	// Back to idle: the draft is consumed.
	if _, ok := f.bridge.Pending(f.userID); ok {
		t.Fatal("expected no pending draft after commit")
	}

	accounts, _ := f.ledger.ListAccounts(ctx, f.userID)
	if accounts[0].Balance.Cents != 100000-4250 {
		t.Fatalf("balance not applied, got %d", accounts[0].Balance.Cents)
	}
}

func TestExtractMalformedReplyKeepsBlob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Sorry, I cannot read this receipt.")

	draft, err := f.bridge.Extract(ctx, f.userID, []byte("fake-jpeg"), "image/jpeg", "scan.jpg")
	if !errors.Is(err, core.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if draft.ReceiptPath == "" {
		t.Fatal("stored image path must survive extraction failure")
	}
	if _, ok := f.bridge.Pending(f.userID); ok {
		t.Fatal("failed extraction must not leave a draft")
	}

	// Nothing was committed.
	txs, _ := f.ledger.List(ctx, f.userID, nil, nil)
	if len(txs) != 0 {
		t.Fatalf("expected no transactions, got %d", len(txs))
	}
}

func TestConfirmIncomeOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	tx, err := f.bridge.ConfirmAndCommit(ctx, f.userID, ConfirmInput{
		AccountID:      f.account.ID,
		Date:           core.NewDate(2025, 6, 30),
		Amount:         core.Money{Cents: 200000},
		Merchant:       "Employer",
		IncomeOverride: true,
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if tx.Amount.Cents != 200000 {
		t.Fatalf("expected positive amount with override, got %d", tx.Amount.Cents)
	}
	if tx.ReceiptPath != "" {
		t.Fatalf("manual entry must not carry a receipt path, got %q", tx.ReceiptPath)
	}
}

func TestConfirmFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, `{"merchant":"Shop","date":"2025-06-03","amount":10,"category":""}`)

	if _, err := f.bridge.Extract(ctx, f.userID, []byte("img"), "image/png", "a.png"); err != nil {
		t.Fatalf("extract: %v", err)
	}

	// Posting against a foreign account fails and must not consume the draft.
	_, err := f.bridge.ConfirmAndCommit(ctx, f.userID, ConfirmInput{
		AccountID: "missing",
		Date:      core.NewDate(2025, 6, 3),
		Amount:    core.Money{Cents: 1000},
	})
	if !errors.Is(err, core.ErrReferenceNotFound) {
		t.Fatalf("expected ErrReferenceNotFound, got %v", err)
	}
	if _, ok := f.bridge.Pending(f.userID); !ok {
		t.Fatal("draft must survive a failed commit")
	}
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, `{"merchant":"Shop","date":"2025-06-03","amount":10,"category":""}`)

	if _, err := f.bridge.Extract(ctx, f.userID, []byte("img"), "image/png", "a.png"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if err := f.bridge.Discard(ctx, f.userID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, ok := f.bridge.Pending(f.userID); ok {
		t.Fatal("expected no draft after discard")
	}
	if err := f.bridge.Discard(ctx, f.userID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
