// Package ocr defines the outbound port for receipt field extraction
// and the parsing of model output into typed fields.
package ocr

import (
	"context"

	"bilancio/internal/core"
)

// Fields are the values extracted from a receipt image. Amount is the
// unsigned total as printed; the caller decides the ledger sign.
type Fields struct {
	Merchant string
	Date     core.Date
	Amount   core.Money
	Category string
}

// Extractor turns a receipt image into structured fields.
type Extractor interface {
	Extract(ctx context.Context, mimeType string, image []byte) (Fields, error)
}
