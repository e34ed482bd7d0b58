package http

import (
	"net/http"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

type createAccountRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Opening string `json:"opening"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	opening := core.Money{}
	if req.Opening != "" {
		var err error
		if opening, err = parseSignedAmount(req.Opening); err != nil {
			writeError(w, r, err)
			return
		}
	}

	acc, err := s.ledger.CreateAccount(r.Context(), userID(r), req.Name, core.AccountType(req.Type), opening)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(acc))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountDTO, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountDTO(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteAccount(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRecomputeBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.RecomputeBalance(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

type createCategoryRequest struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Color string `json:"color"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	cat, err := s.ledger.CreateCategory(r.Context(), userID(r), req.Name, core.CategoryKind(req.Kind), req.Color)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(cat))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	kind := core.CategoryKind(r.URL.Query().Get("kind"))
	cats, err := s.ledger.ListCategories(r.Context(), userID(r), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryDTO, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

type createTransactionRequest struct {
	AccountID   string `json:"account_id"`
	CategoryID  string `json:"category_id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Merchant    string `json:"merchant"`
	Description string `json:"description"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := parseSignedAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.ledger.Post(r.Context(), userID(r), ledger.PostInput{
		AccountID:   req.AccountID,
		CategoryID:  req.CategoryID,
		Date:        date,
		Amount:      amount,
		Merchant:    req.Merchant,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	var from, to *core.Date
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		from = &d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		to = &d
	}

	txs, err := s.ledger.List(r.Context(), userID(r), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionDTO(t))
	}
	writeJSON(w, http.StatusOK, out)
}

type updateTransactionRequest struct {
	Amount      string `json:"amount"`
	Merchant    string `json:"merchant"`
	Description string `json:"description"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req updateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	// The amount is an unsigned magnitude; the stored sign wins.
	magnitude, err := parseUnsignedAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.ledger.Update(r.Context(), userID(r), r.PathValue("id"), ledger.UpdateInput{
		Magnitude:   magnitude,
		Merchant:    req.Merchant,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type createBudgetRequest struct {
	CategoryID string `json:"category_id"`
	Limit      string `json:"limit"`
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req createBudgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	limit, err := parseUnsignedAmount(req.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.ledger.CreateBudget(r.Context(), userID(r), req.CategoryID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetDTO(b))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.ledger.ListBudgets(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]budgetDTO, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetDTO(b))
	}
	writeJSON(w, http.StatusOK, out)
}

type updateBudgetRequest struct {
	Limit string `json:"limit"`
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req updateBudgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	limit, err := parseUnsignedAmount(req.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.UpdateBudgetLimit(r.Context(), userID(r), r.PathValue("id"), limit); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteBudget(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
