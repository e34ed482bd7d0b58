package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bilancio/internal/auth"
	"bilancio/internal/blob"
	"bilancio/internal/ledger"
	"bilancio/internal/ocr"
	"bilancio/internal/receipt"
	"bilancio/internal/store/memory"
)

type stubExtractor struct {
	reply string
}

func (s stubExtractor) Extract(_ context.Context, _ string, _ []byte) (ocr.Fields, error) {
	return ocr.ParseFields(s.reply)
}

func newTestServer(t *testing.T, reply string) *Server {
	t.Helper()

	st := memory.New()
	authSvc := auth.New(st, []byte("test-secret-key"), time.Hour)
	eng := ledger.New(st, nil)
	fs, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("blob fs: %v", err)
	}
	bridge := receipt.NewBridge(fs, stubExtractor{reply: reply}, eng)

	srv := NewServer(":0", Deps{
		Auth:    authSvc,
		Ledger:  eng,
		Bridge:  bridge,
		Blobs:   fs,
		Signer:  blob.NewSigner([]byte("sign-key")),
		LinkTTL: 15 * time.Minute,
	})
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

// signUpAndLogin walks the full auth flow and returns a session token.
func signUpAndLogin(t *testing.T, srv *Server, email string) string {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "password123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: status %d body %s", rec.Code, rec.Body.String())
	}
	signup := decodeBody[signUpResponse](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/confirm", "", map[string]string{
		"token": signup.ConfirmToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "password123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[loginResponse](t, rec).Token
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, "")
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodGet, "/api/accounts", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/accounts", "garbage-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestLedgerFlow(t *testing.T) {
	srv := newTestServer(t, "")
	token := signUpAndLogin(t, srv, "flow@example.com")

	// Confirm seeded the stock categories.
	rec := doJSON(t, srv, http.MethodGet, "/api/categories", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list categories: %d", rec.Code)
	}
	cats := decodeBody[[]categoryDTO](t, rec)
	if len(cats) == 0 {
		t.Fatal("expected seeded categories")
	}
	var foodID, salaryID string
	for _, c := range cats {
		switch c.Name {
		case "Food":
			foodID = c.ID
		case "Salary":
			salaryID = c.ID
		}
	}
	if foodID == "" || salaryID == "" {
		t.Fatalf("missing stock categories in %+v", cats)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/accounts", token, map[string]string{
		"name": "Main", "type": "checking", "opening": "1000.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account: %d body %s", rec.Code, rec.Body.String())
	}
	acc := decodeBody[accountDTO](t, rec)
	if acc.Balance != "1000.00" {
		t.Fatalf("expected opening balance 1000.00, got %s", acc.Balance)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]string{
		"account_id": acc.ID, "category_id": foodID,
		"date": "2025-06-03", "amount": "-50.00", "merchant": "Grocer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post expense: %d body %s", rec.Code, rec.Body.String())
	}
	expense := decodeBody[transactionDTO](t, rec)
	if expense.Amount != "-50.00" {
		t.Fatalf("expected amount -50.00, got %s", expense.Amount)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]string{
		"account_id": acc.ID, "category_id": salaryID,
		"date": "2025-06-05", "amount": "2000.00", "merchant": "Employer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post income: %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/accounts", token, nil)
	accounts := decodeBody[[]accountDTO](t, rec)
	if len(accounts) != 1 || accounts[0].Balance != "2950.00" {
		t.Fatalf("expected balance 2950.00, got %+v", accounts)
	}

	// Range listing is inclusive on both ends.
	rec = doJSON(t, srv, http.MethodGet, "/api/transactions?from=2025-06-03&to=2025-06-03", token, nil)
	txs := decodeBody[[]transactionDTO](t, rec)
	if len(txs) != 1 || txs[0].ID != expense.ID {
		t.Fatalf("expected only the expense, got %+v", txs)
	}

	// Magnitude-only update keeps the expense sign.
	rec = doJSON(t, srv, http.MethodPut, "/api/transactions/"+expense.ID, token, map[string]string{
		"amount": "75.00", "merchant": "Grocer", "description": "",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[transactionDTO](t, rec)
	if updated.Amount != "-75.00" {
		t.Fatalf("expected -75.00 after magnitude update, got %s", updated.Amount)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/transactions/"+expense.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/accounts/"+acc.ID+"/recompute", token, nil)
	recomputed := decodeBody[map[string]string](t, rec)
	if recomputed["balance"] != "3000.00" {
		t.Fatalf("expected recomputed balance 3000.00, got %s", recomputed["balance"])
	}

	// Account with history cannot be deleted.
	rec = doJSON(t, srv, http.MethodDelete, "/api/accounts/"+acc.ID, token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting account in use, got %d", rec.Code)
	}
}

func TestBudgetsAndDashboard(t *testing.T) {
	srv := newTestServer(t, "")
	token := signUpAndLogin(t, srv, "dash@example.com")

	rec := doJSON(t, srv, http.MethodGet, "/api/categories?kind=expense", token, nil)
	cats := decodeBody[[]categoryDTO](t, rec)
	var foodID string
	for _, c := range cats {
		if c.Name == "Food" {
			foodID = c.ID
		}
	}

	// A zero opening balance is a valid explicit amount.
	rec = doJSON(t, srv, http.MethodPost, "/api/accounts", token, map[string]string{
		"name": "Main", "type": "checking", "opening": "0.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account with zero opening: %d body %s", rec.Code, rec.Body.String())
	}
	acc := decodeBody[accountDTO](t, rec)
	if acc.ID == "" || acc.Balance != "0.00" {
		t.Fatalf("unexpected account %+v", acc)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/budgets", token, map[string]string{
		"category_id": foodID, "limit": "200.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create budget: %d body %s", rec.Code, rec.Body.String())
	}

	// Duplicate budget for the same category conflicts.
	rec = doJSON(t, srv, http.MethodPost, "/api/budgets", token, map[string]string{
		"category_id": foodID, "limit": "300.00",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate budget, got %d", rec.Code)
	}

	// 250.00 spent against a 200.00 limit clamps at ratio 1.0.
	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]string{
		"account_id": acc.ID, "category_id": foodID,
		"date": "2025-06-10", "amount": "-250.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/dashboard?year=2025&month=6", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: %d body %s", rec.Code, rec.Body.String())
	}
	dash := decodeBody[dashboardResponse](t, rec)
	if dash.Summary.Expense != "-250.00" || dash.Summary.Net != "-250.00" {
		t.Fatalf("unexpected summary %+v", dash.Summary)
	}
	if len(dash.Budgets) != 1 || dash.Budgets[0].Ratio != 1.0 || dash.Budgets[0].Spent != "250.00" {
		t.Fatalf("unexpected budget utilization %+v", dash.Budgets)
	}
	if len(dash.ByCategory) != 1 || dash.ByCategory[0].Category != "Food" {
		t.Fatalf("unexpected category totals %+v", dash.ByCategory)
	}
}

func TestReceiptFlow(t *testing.T) {
	srv := newTestServer(t, `{"merchant":"Esselunga","date":"2025-06-03","amount":42.50,"category":"Food"}`)
	token := signUpAndLogin(t, srv, "rec@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", token, map[string]string{
		"name": "Main", "type": "checking", "opening": "100.00",
	})
	acc := decodeBody[accountDTO](t, rec)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "scan.jpg")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write([]byte("fake-jpeg-bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/receipts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("extract: %d body %s", rr.Code, rr.Body.String())
	}
	extraction := decodeBody[extractionDTO](t, rr)
	if extraction.Merchant != "Esselunga" || extraction.Amount != "42.50" {
		t.Fatalf("unexpected extraction %+v", extraction)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/receipts/confirm", token, map[string]any{
		"account_id": acc.ID,
		"date":       extraction.Date,
		"amount":     extraction.Amount,
		"merchant":   extraction.Merchant,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("confirm: %d body %s", rec.Code, rec.Body.String())
	}
	tx := decodeBody[transactionDTO](t, rec)
	if tx.Amount != "-42.50" {
		t.Fatalf("expected forced expense, got %s", tx.Amount)
	}
	if tx.ReceiptPath == "" {
		t.Fatal("expected receipt path on transaction")
	}

	// Mint a signed link and follow it without a session.
	rec = doJSON(t, srv, http.MethodGet, "/api/receipts/link?path="+tx.ReceiptPath, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("link: %d body %s", rec.Code, rec.Body.String())
	}
	link := decodeBody[map[string]string](t, rec)

	rec = doJSON(t, srv, http.MethodGet, link["url"], "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: %d body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "fake-jpeg-bytes" {
		t.Fatalf("unexpected blob body %q", rec.Body.String())
	}

	// Another user cannot mint links for this path.
	otherToken := signUpAndLogin(t, srv, "other@example.com")
	rec = doJSON(t, srv, http.MethodGet, "/api/receipts/link?path="+tx.ReceiptPath, otherToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign path, got %d", rec.Code)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	srv := newTestServer(t, "")
	token := signUpAndLogin(t, srv, "out@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/logout", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/accounts", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestValidationAndStatusMapping(t *testing.T) {
	srv := newTestServer(t, "")
	token := signUpAndLogin(t, srv, "val@example.com")

	// Unknown account reference.
	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]string{
		"account_id": "missing", "date": "2025-06-03", "amount": "-1.00",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown account, got %d", rec.Code)
	}

	// Zero amount.
	recAcc := doJSON(t, srv, http.MethodPost, "/api/accounts", token, map[string]string{
		"name": "A", "type": "checking", "opening": "0.00",
	})
	acc := decodeBody[accountDTO](t, recAcc)
	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]string{
		"account_id": acc.ID, "date": "2025-06-03", "amount": "0.00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero amount, got %d", rec.Code)
	}

	// Malformed date.
	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]string{
		"account_id": acc.ID, "date": "03/06/2025", "amount": "-1.00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}
