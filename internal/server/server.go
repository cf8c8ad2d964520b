package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"prdgen/internal/app"
	"prdgen/internal/ratelimit"
	"prdgen/internal/usertoken"
	"prdgen/internal/util"
	"prdgen/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	TokenVerifier              *usertoken.Verifier
	RedisAddr                  string
	RedisPassword              string
	GenerateRateLimitPerMinute int
}

// Server exposes the PRD generation HTTP API.
type Server struct {
	app             *app.App
	tokenVerifier   *usertoken.Verifier
	mux             *http.ServeMux
	generateLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	generateLimit := cfg.GenerateRateLimitPerMinute
	if generateLimit <= 0 {
		generateLimit = 10
	}
	generateLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr, cfg.RedisPassword, "prdgen:ratelimit:generate", generateLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init generate limiter: %w", err)
	}
	s := &Server{
		app:             cfg.App,
		tokenVerifier:   cfg.TokenVerifier,
		mux:             http.NewServeMux(),
		generateLimiter: generateLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/api/usage", s.withUser(s.handleUsage))
	s.mux.Handle("/api/generations", s.withUser(s.handleGenerations))
	s.mux.Handle("/api/generations/", s.withUser(s.handleGenerationByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "token verifier not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.tokenVerifier.VerifyUser(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleGenerations(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleGenerate(w, r, user)
	case http.MethodGet:
		records, err := s.app.ListGenerations(user, parseLimit(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list generations")
			return
		}
		writeJSON(w, http.StatusOK, records)
	default:
		methodNotAllowed(w)
	}
}

// handleGenerate runs one generation. Generation outcomes are reported
// in-band: the envelope carries success or a user-safe error message and the
// HTTP status stays 200 for everything except transport-level faults.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.generateLimiter.Allow(user.ID) {
		writeError(w, http.StatusTooManyRequests, "too many generation requests, slow down")
		return
	}
	var input domain.GenerationInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec, err := s.app.Generate(r.Context(), user, input)
	if err != nil {
		var genErr *app.GenerationError
		switch {
		case errors.As(err, &genErr):
			writeJSON(w, http.StatusOK, generateResponse{Success: false, Error: genErr.Message})
		case errors.Is(err, app.ErrQuotaExceeded):
			writeJSON(w, http.StatusOK, generateResponse{Success: false, Error: err.Error()})
		default:
			util.LoggerFromContext(r.Context()).Error("generation failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, generateResponse{Success: false, Error: "failed to generate PRD"})
		}
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Success: true, Data: &rec})
}

func (s *Server) handleGenerationByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/generations/")
	id, export := strings.CutSuffix(rest, "/export")
	id = strings.Trim(id, "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if export {
		s.handleExport(w, r, user, id)
		return
	}
	rec, err := s.app.GetGeneration(user, id)
	if err != nil {
		writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	markdown, url, err := s.app.Export(r.Context(), user, id)
	if err != nil {
		writeRecordError(w, err)
		return
	}
	if url != "" {
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="product-requirements.md"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, markdown)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	acct, limit, err := s.app.Usage(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Plan:           acct.Plan,
		Used:           acct.GenerationsThisMonth,
		Limit:          limit,
		MonthResetDate: acct.MonthResetDate,
	})
}

type generateResponse struct {
	Success bool                     `json:"success"`
	Data    *domain.GenerationRecord `json:"data,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

type usageResponse struct {
	Plan           domain.Plan `json:"plan"`
	Used           int         `json:"used"`
	Limit          int         `json:"limit"`
	MonthResetDate time.Time   `json:"monthResetDate"`
}

func parseLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	var limit int
	if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
		return 0
	}
	return limit
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeRecordError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "generation not found")
	case errors.Is(err, app.ErrRecordForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		writeError(w, http.StatusInternalServerError, "failed to load generation")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
