// Package receipt drives the ingestion flow for scanned receipts: the
// image is stored, the OCR collaborator proposes fields, and nothing
// hits the ledger until the user explicitly confirms.
package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"bilancio/internal/blob"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ocr"
)

// Extraction is a pending draft: the stored image plus the proposed
// fields, all editable before commit.
type Extraction struct {
	ReceiptPath string
	Fields      ocr.Fields
}

// ConfirmInput carries the user-reviewed fields for commit. Amount is
// an unsigned magnitude; it is posted as an expense unless
// IncomeOverride is set.
type ConfirmInput struct {
	AccountID      string
	CategoryID     string
	Date           core.Date
	Amount         core.Money
	Merchant       string
	Description    string
	IncomeOverride bool
}

// Bridge holds at most one pending extraction per user. The image blob
// is stored before OCR runs and survives extraction failure, so a
// draft can always be completed by hand.
type Bridge struct {
	blobs     blob.Store
	extractor ocr.Extractor
	ledger    *ledger.Engine

	mu     sync.Mutex
	drafts map[string]Extraction
}

func NewBridge(blobs blob.Store, extractor ocr.Extractor, eng *ledger.Engine) *Bridge {
	return &Bridge{
		blobs:     blobs,
		extractor: extractor,
		ledger:    eng,
		drafts:    make(map[string]Extraction),
	}
}

// Extract stores the image and asks the OCR collaborator for fields.
// The blob is written before OCR runs; on extraction failure the
// stored path is still returned so the caller can finish the entry by
// hand, but no draft is recorded.
func (b *Bridge) Extract(ctx context.Context, userID string, image []byte, contentType, filename string) (Extraction, error) {
	if userID == "" {
		return Extraction{}, core.ErrNotAuthenticated
	}
	if len(image) == 0 {
		return Extraction{}, fmt.Errorf("%w: empty image", core.ErrValidation)
	}

	path, err := b.blobs.Save(ctx, userID, filename, image)
	if err != nil {
		return Extraction{}, fmt.Errorf("store receipt: %w", err)
	}

	fields, err := b.extractor.Extract(ctx, contentType, image)
	if err != nil {
		slog.Warn("receipt extraction failed",
			"component", "receipt", "user_id", userID, "receipt_path", path, "error", err)
		return Extraction{ReceiptPath: path}, err
	}

	draft := Extraction{ReceiptPath: path, Fields: fields}
	b.mu.Lock()
	b.drafts[userID] = draft
	b.mu.Unlock()

	slog.Info("receipt extracted",
		"component", "receipt", "user_id", userID, "receipt_path", path, "merchant", fields.Merchant)
	return draft, nil
}

// Pending returns the user's current draft, if any.
func (b *Bridge) Pending(userID string) (Extraction, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.drafts[userID]
	return d, ok
}

// Discard drops the pending draft and its stored image.
func (b *Bridge) Discard(ctx context.Context, userID string) error {
	b.mu.Lock()
	d, ok := b.drafts[userID]
	delete(b.drafts, userID)
	b.mu.Unlock()
	if !ok {
		return core.ErrNotFound
	}
	if err := b.blobs.Delete(ctx, d.ReceiptPath); err != nil {
		return fmt.Errorf("discard receipt blob: %w", err)
	}
	return nil
}

// ConfirmAndCommit posts the reviewed transaction. It works with or
// without a pending draft; when one exists its stored image is
// attached and the draft is cleared only after the post succeeds.
func (b *Bridge) ConfirmAndCommit(ctx context.Context, userID string, in ConfirmInput) (core.Transaction, error) {
	if userID == "" {
		return core.Transaction{}, core.ErrNotAuthenticated
	}

	amount := in.Amount.Abs()
	if !in.IncomeOverride {
		amount = amount.Neg()
	}

	b.mu.Lock()
	draft, hasDraft := b.drafts[userID]
	b.mu.Unlock()

	post := ledger.PostInput{
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Date:        in.Date,
		Amount:      amount,
		Merchant:    in.Merchant,
		Description: in.Description,
	}
	if hasDraft {
		post.ReceiptPath = draft.ReceiptPath
	}

	tx, err := b.ledger.Post(ctx, userID, post)
	if err != nil {
		return core.Transaction{}, err
	}

	if hasDraft {
		b.mu.Lock()
		delete(b.drafts, userID)
		b.mu.Unlock()
	}
	return tx, nil
}
