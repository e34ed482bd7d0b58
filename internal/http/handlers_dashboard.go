package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/report"
)

type dashboardResponse struct {
	Year       int                `json:"year"`
	Month      int                `json:"month"`
	Summary    summaryDTO         `json:"summary"`
	ByCategory []categoryTotalDTO `json:"by_category"`
	ByDay      []dayTotalDTO      `json:"by_day"`
	Budgets    []utilizationDTO   `json:"budgets"`
}

// parseYearMonth extracts year and month from query parameters,
// defaulting to the current month.
func parseYearMonth(r *http.Request) (year, month int) {
	now := time.Now()
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			month = m
		}
	}

	return year, month
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)

	from := core.NewDate(year, month, 1)
	to := core.DateOf(from.AddDate(0, 1, -1))

	txs, err := s.ledger.List(r.Context(), userID(r), &from, &to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	budgets, err := s.ledger.ListBudgets(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary := report.Totals(txs)
	resp := dashboardResponse{
		Year:  year,
		Month: month,
		Summary: summaryDTO{
			Income:  summary.Income.String(),
			Expense: summary.Expense.String(),
			Net:     summary.Net.String(),
		},
		ByCategory: []categoryTotalDTO{},
		ByDay:      []dayTotalDTO{},
		Budgets:    []utilizationDTO{},
	}

	for _, ct := range report.ByCategory(txs) {
		resp.ByCategory = append(resp.ByCategory, categoryTotalDTO{
			Category: ct.Name,
			Total:    ct.Total.String(),
		})
	}
	for _, dt := range report.ByDay(txs) {
		resp.ByDay = append(resp.ByDay, dayTotalDTO{
			Date:  dt.Date.String(),
			Total: dt.Net.String(),
		})
	}
	for _, u := range report.BudgetUtilization(txs, budgets) {
		resp.Budgets = append(resp.Budgets, toUtilizationDTO(u))
	}

	writeJSON(w, http.StatusOK, resp)
}
