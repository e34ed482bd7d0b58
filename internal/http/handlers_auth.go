package http

import (
	"log/slog"
	"net/http"

	"bilancio/internal/core"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpResponse struct {
	UserID string `json:"user_id"`
	// ConfirmToken would normally travel by email; it is returned
	// directly because no mailer is wired in.
	ConfirmToken string `json:"confirm_token"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, confirm, err := s.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, signUpResponse{UserID: u.ID, ConfirmToken: confirm})
}

type confirmRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	uid, err := s.auth.Confirm(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// A fresh account starts with the stock categories.
	if err := s.ledger.SeedDefaultCategories(r.Context(), uid); err != nil {
		slog.ErrorContext(r.Context(), "Failed to seed default categories",
			"user_id", uid, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"user_id": uid})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	uid, token, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{UserID: uid, Token: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, r, core.ErrNotAuthenticated)
		return
	}
	if err := s.auth.SignOut(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
