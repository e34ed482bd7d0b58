package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"bilancio/internal/core"
	"bilancio/internal/receipt"
)

const maxReceiptBytes = 10 << 20

type extractionDTO struct {
	ReceiptPath string `json:"receipt_path"`
	Merchant    string `json:"merchant,omitempty"`
	Date        string `json:"date,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Category    string `json:"category,omitempty"`
}

func toExtractionDTO(e receipt.Extraction) extractionDTO {
	dto := extractionDTO{ReceiptPath: e.ReceiptPath}
	if !e.Fields.Date.IsZero() {
		dto.Merchant = e.Fields.Merchant
		dto.Date = e.Fields.Date.String()
		dto.Amount = e.Fields.Amount.String()
		dto.Category = e.Fields.Category
	}
	return dto
}

func (s *Server) handleExtractReceipt(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		http.Error(w, "receipt extraction is not configured", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes)
	if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
		writeError(w, r, fmt.Errorf("%w: multipart form", core.ErrValidation))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: missing image field", core.ErrValidation))
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: read image", core.ErrValidation))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}

	extraction, err := s.bridge.Extract(r.Context(), userID(r), image, contentType, header.Filename)
	if err != nil {
		// The stored path is reported even when extraction fails so
		// the client can fall back to manual entry.
		if errors.Is(err, core.ErrExtractionFailed) && extraction.ReceiptPath != "" {
			writeJSON(w, http.StatusUnprocessableEntity, extractionDTO{ReceiptPath: extraction.ReceiptPath})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExtractionDTO(extraction))
}

func (s *Server) handlePendingReceipt(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		http.Error(w, "receipt extraction is not configured", http.StatusServiceUnavailable)
		return
	}
	draft, ok := s.bridge.Pending(userID(r))
	if !ok {
		writeError(w, r, core.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toExtractionDTO(draft))
}

type confirmReceiptRequest struct {
	AccountID      string `json:"account_id"`
	CategoryID     string `json:"category_id"`
	Date           string `json:"date"`
	Amount         string `json:"amount"`
	Merchant       string `json:"merchant"`
	Description    string `json:"description"`
	IncomeOverride bool   `json:"income_override"`
}

func (s *Server) handleConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		http.Error(w, "receipt extraction is not configured", http.StatusServiceUnavailable)
		return
	}

	var req confirmReceiptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := parseUnsignedAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.bridge.ConfirmAndCommit(r.Context(), userID(r), receipt.ConfirmInput{
		AccountID:      req.AccountID,
		CategoryID:     req.CategoryID,
		Date:           date,
		Amount:         amount,
		Merchant:       req.Merchant,
		Description:    req.Description,
		IncomeOverride: req.IncomeOverride,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

func (s *Server) handleDiscardReceipt(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		http.Error(w, "receipt extraction is not configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.bridge.Discard(r.Context(), userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handleReceiptLink mints a signed download URL for one of the user's
// stored receipts.
func (s *Server) handleReceiptLink(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	uid := userID(r)
	if path == "" || !ownsPath(uid, path) {
		writeError(w, r, core.ErrNotFound)
		return
	}

	exp, sig := s.signer.Sign(path, s.linkTTL)
	writeJSON(w, http.StatusOK, map[string]string{
		"url": fmt.Sprintf("/receipts/%s?exp=%d&sig=%s", path, exp, sig),
	})
}

// handleReceiptDownload serves a blob when the signed link checks out.
// No session is required; the signature is the credential.
func (s *Server) handleReceiptDownload(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	exp, err := strconv.ParseInt(r.URL.Query().Get("exp"), 10, 64)
	if err != nil {
		writeError(w, r, core.ErrInvalidToken)
		return
	}
	if err := s.signer.Check(path, exp, r.URL.Query().Get("sig")); err != nil {
		writeError(w, r, err)
		return
	}

	data, err := s.blobs.Open(r.Context(), path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=0")
	_, _ = w.Write(data)
}

// ownsPath checks the per-user prefix every stored blob path carries.
func ownsPath(uid, path string) bool {
	return uid != "" && len(path) > len(uid)+1 && path[:len(uid)+1] == uid+"/"
}
