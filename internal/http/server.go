// Package http exposes the JSON API over the engines. Routing uses
// method patterns on the stdlib mux; every mutating route sits behind
// the bearer-token middleware.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/auth"
	"bilancio/internal/blob"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
	"bilancio/internal/receipt"
)

type Server struct {
	http.Server

	auth    *auth.Service
	ledger  *ledger.Engine
	bridge  *receipt.Bridge
	blobs   blob.Store
	signer  *blob.Signer
	linkTTL time.Duration

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// Deps carries the collaborators the server exposes. Bridge may be nil
// when receipt extraction is not configured; its routes then answer
// 503.
type Deps struct {
	Auth    *auth.Service
	Ledger  *ledger.Engine
	Bridge  *receipt.Bridge
	Blobs   blob.Store
	Signer  *blob.Signer
	LinkTTL time.Duration
}

// NewServer configures routes and returns a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		auth:        deps.Auth,
		ledger:      deps.Ledger,
		bridge:      deps.Bridge,
		blobs:       deps.Blobs,
		signer:      deps.Signer,
		linkTTL:     deps.LinkTTL,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/auth/signup", s.wrap(s.handleSignUp))
	mux.HandleFunc("POST /api/auth/confirm", s.wrap(s.handleConfirm))
	mux.HandleFunc("POST /api/auth/login", s.wrap(s.handleLogin))
	mux.HandleFunc("POST /api/auth/logout", s.wrap(s.handleLogout))

	mux.HandleFunc("POST /api/accounts", s.wrap(s.requireUser(s.handleCreateAccount)))
	mux.HandleFunc("GET /api/accounts", s.wrap(s.requireUser(s.handleListAccounts)))
	mux.HandleFunc("DELETE /api/accounts/{id}", s.wrap(s.requireUser(s.handleDeleteAccount)))
	mux.HandleFunc("POST /api/accounts/{id}/recompute", s.wrap(s.requireUser(s.handleRecomputeBalance)))

	mux.HandleFunc("POST /api/categories", s.wrap(s.requireUser(s.handleCreateCategory)))
	mux.HandleFunc("GET /api/categories", s.wrap(s.requireUser(s.handleListCategories)))

	mux.HandleFunc("POST /api/transactions", s.wrap(s.requireUser(s.handleCreateTransaction)))
	mux.HandleFunc("GET /api/transactions", s.wrap(s.requireUser(s.handleListTransactions)))
	mux.HandleFunc("PUT /api/transactions/{id}", s.wrap(s.requireUser(s.handleUpdateTransaction)))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.wrap(s.requireUser(s.handleDeleteTransaction)))

	mux.HandleFunc("POST /api/budgets", s.wrap(s.requireUser(s.handleCreateBudget)))
	mux.HandleFunc("GET /api/budgets", s.wrap(s.requireUser(s.handleListBudgets)))
	mux.HandleFunc("PUT /api/budgets/{id}", s.wrap(s.requireUser(s.handleUpdateBudget)))
	mux.HandleFunc("DELETE /api/budgets/{id}", s.wrap(s.requireUser(s.handleDeleteBudget)))

	mux.HandleFunc("GET /api/dashboard", s.wrap(s.requireUser(s.handleDashboard)))

	mux.HandleFunc("POST /api/receipts", s.wrap(s.requireUser(s.handleExtractReceipt)))
	mux.HandleFunc("GET /api/receipts/pending", s.wrap(s.requireUser(s.handlePendingReceipt)))
	mux.HandleFunc("POST /api/receipts/confirm", s.wrap(s.requireUser(s.handleConfirmReceipt)))
	mux.HandleFunc("DELETE /api/receipts/pending", s.wrap(s.requireUser(s.handleDiscardReceipt)))
	mux.HandleFunc("GET /api/receipts/link", s.wrap(s.requireUser(s.handleReceiptLink)))

	// Download is authenticated by the signed link itself.
	mux.HandleFunc("GET /receipts/{path...}", s.wrap(s.handleReceiptDownload))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// wrap adds security headers, rate limiting on mutations, and request
// logging.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		logger := applog.FromContext(ctx).With(
			applog.FieldRequestID, requestID,
			applog.FieldClientIP, clientIP)
		applog.NewRequestLogger(logger).LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
