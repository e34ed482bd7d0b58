package ocr

import (
	"encoding/json"
	"fmt"
	"strings"

	"bilancio/internal/core"
)

type rawFields struct {
	Merchant string `json:"merchant"`
	Date     string `json:"date"`
	// Amount arrives as a number or a quoted string depending on the
	// model's mood, so it is decoded late.
	Amount   json.RawMessage `json:"amount"`
	Category string          `json:"category"`
}

// ParseFields decodes a model reply into Fields. Models tend to wrap
// the JSON in markdown code fences, so those are stripped first. Any
// reply that does not yield a positive amount and a valid date maps to
// core.ErrExtractionFailed.
func ParseFields(reply string) (Fields, error) {
	payload := stripFences(reply)

	var raw rawFields
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Fields{}, fmt.Errorf("%w: not valid JSON", core.ErrExtractionFailed)
	}

	date, err := core.ParseDate(raw.Date)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: bad date %q", core.ErrExtractionFailed, raw.Date)
	}

	amount := strings.Trim(strings.TrimSpace(string(raw.Amount)), `"`)
	cents, err := core.ParseDecimalToCents(amount)
	if err != nil || cents <= 0 {
		return Fields{}, fmt.Errorf("%w: bad amount %q", core.ErrExtractionFailed, amount)
	}

	return Fields{
		Merchant: strings.TrimSpace(raw.Merchant),
		Date:     date,
		Amount:   core.Money{Cents: cents},
		Category: strings.TrimSpace(raw.Category),
	}, nil
}

// stripFences removes a surrounding markdown code fence, with or
// without a language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{}") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
