// Package http exposes the workflow core over REST. The institute gateway
// terminates user sessions and forwards requests with the authenticated
// requester's identity and role in headers; the core still re-checks
// authority on every operation, so a missing or forged role degrades to a
// domain-level rejection, never a silent escalation.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/application/command"
	"github.com/iiitp-spms/spms-workflow/internal/application/query"
	"github.com/iiitp-spms/spms-workflow/internal/application/saga"
	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	// ReadTimeout - maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout - maximum duration for writing the response.
	WriteTimeout time.Duration

	// IdleTimeout - maximum duration for idle connections.
	IdleTimeout time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// RateLimitPerMinute - requests per minute per client (0 = disabled).
	RateLimitPerMinute int

	// APIKeyHeader - header name for gateway authentication.
	APIKeyHeader string

	// APIKeys - accepted gateway keys. Empty disables the check; health
	// probes are always exempt.
	APIKeys []string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20, // 1 MB
		RateLimitPerMinute: 120,
		APIKeyHeader:       "X-API-Key",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains the workflow entry points the endpoints map onto.
type Dependencies struct {
	// Commands
	SyncStudent        *command.SyncStudentHandler
	SelectTrack        *command.SelectTrackHandler
	RecordVerification *command.RecordVerificationHandler
	CreateGroup        *command.CreateGroupHandler
	SendInvitations    *command.SendInvitationsHandler
	RespondInvitation  *command.RespondInvitationHandler
	CloseRecruitment   *command.CloseRecruitmentHandler
	FinalizeGroup      *command.FinalizeGroupHandler
	DisbandGroup       *command.DisbandGroupHandler
	RegisterProject    *command.RegisterProjectHandler
	ClaimProject       *command.ClaimProjectHandler
	AllocateFaculty    *command.AllocateFacultyHandler

	// Queries
	InvitationInbox *query.InvitationInboxHandler
	GroupRoster     *query.GroupRosterHandler
	FacultyQueue    *query.FacultyQueueHandler

	// Sagas
	Promotion *saga.PromotionSaga

	// Readiness reports whether the backing store is reachable. Nil means
	// the readiness probe only checks that the process is up.
	Readiness func(ctx context.Context) error

	// Logger
	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger

	rateLimiter *rateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
	}

	if s.logger == nil {
		s.logger = logger.Default()
	}

	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.buildMiddlewareChain(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth) // Kubernetes alias
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// Students & Track Selection
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/students", s.handleSyncStudent)
	s.router.HandleFunc("POST /api/v1/students/{id}/track", s.handleSelectTrack)
	s.router.HandleFunc("POST /api/v1/students/{id}/track/verification", s.handleRecordVerification)
	s.router.HandleFunc("GET /api/v1/students/{id}/invitations", s.handleInvitationInbox)

	// ─────────────────────────────────────────────────────────────────────────
	// Groups & Invitations
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/groups", s.handleCreateGroup)
	s.router.HandleFunc("GET /api/v1/groups/{id}", s.handleGroupRoster)
	s.router.HandleFunc("POST /api/v1/groups/{id}/invitations", s.handleSendInvitations)
	s.router.HandleFunc("POST /api/v1/groups/{id}/invitations/response", s.handleRespondInvitation)
	s.router.HandleFunc("POST /api/v1/groups/{id}/close", s.handleCloseRecruitment)
	s.router.HandleFunc("POST /api/v1/groups/{id}/finalize", s.handleFinalizeGroup)
	s.router.HandleFunc("POST /api/v1/groups/{id}/disband", s.handleDisbandGroup)

	// ─────────────────────────────────────────────────────────────────────────
	// Projects & Allocation
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/projects", s.handleRegisterProject)
	s.router.HandleFunc("POST /api/v1/projects/{id}/claim", s.handleClaimProject)
	s.router.HandleFunc("POST /api/v1/projects/{id}/allocation", s.handleAllocateFaculty)
	s.router.HandleFunc("GET /api/v1/faculty/{id}/queue", s.handleFacultyQueue)

	// ─────────────────────────────────────────────────────────────────────────
	// Promotion
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/promotions", s.handleRunPromotion)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router with all middleware.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	// Applied in reverse order (last middleware wraps first).
	h := handler

	h = s.requestIDMiddleware(h)
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)

	if len(s.config.APIKeys) > 0 {
		h = s.apiKeyMiddleware(h)
	}
	if s.rateLimiter != nil {
		h = s.rateLimitMiddleware(h)
	}

	return h
}

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()),
			logger.String("requester_id", r.Header.Get(headerRequesterID)),
			logger.String("request_id", getRequestID(r.Context())),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", getRequestID(r.Context())),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// apiKeyMiddleware authenticates the calling gateway. Health probes pass.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(s.config.APIKeyHeader)
		for _, valid := range s.config.APIKeys {
			if key != "" && key == valid {
				next.ServeHTTP(w, r)
				return
			}
		}

		writeJSONError(w, http.StatusUnauthorized, "invalid_api_key", "A valid API key is required")
	})
}

// rateLimitMiddleware implements per-requester rate limiting. Requests
// without a requester header share one anonymous bucket.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerRequesterID)
		if key == "" {
			key = "anonymous"
		}

		if !s.rateLimiter.Allow(key) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	response := JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	_ = json.NewEncoder(w).Encode(response)
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	response := JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	}

	_ = json.NewEncoder(w).Encode(response)
}

// writeDomainError maps a workflow error onto an HTTP status. Shared error
// kinds are checked first; the plain domain sentinels the operations surface
// directly are folded into the same buckets.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrForbidden), errors.Is(err, shared.ErrUnauthorized),
		errors.Is(err, group.ErrNotLeader):
		writeJSONError(w, http.StatusForbidden, "forbidden", err.Error())
	case shared.IsNotFound(err),
		errors.Is(err, group.ErrGroupNotFound), errors.Is(err, group.ErrInvitationNotFound),
		errors.Is(err, project.ErrProjectNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrStateTransition), errors.Is(err, shared.ErrInvalidState),
		errors.Is(err, group.ErrInvalidTransition), errors.Is(err, group.ErrGroupFull),
		errors.Is(err, group.ErrGroupClosed), errors.Is(err, group.ErrQuorumNotMet),
		errors.Is(err, project.ErrProjectTerminal):
		writeJSONError(w, http.StatusConflict, "invalid_state", err.Error())
	case shared.IsConflict(err),
		errors.Is(err, project.ErrAlreadyAllocated), errors.Is(err, student.ErrTrackSelectionExists),
		errors.Is(err, group.ErrAlreadyFinalized), errors.Is(err, group.ErrAlreadyMember),
		errors.Is(err, group.ErrDuplicateInvitation):
		writeJSONError(w, http.StatusConflict, "conflict", err.Error())
	case shared.IsIneligible(err),
		errors.Is(err, project.ErrFacultyNotPreferred), errors.Is(err, group.ErrInviteTargetUnavailable),
		errors.Is(err, student.ErrNotEnrolled):
		writeJSONError(w, http.StatusUnprocessableEntity, "ineligible", err.Error())
	case shared.IsValidation(err), errors.Is(err, shared.ErrInvalidEntity),
		errors.Is(err, project.ErrTooManyPreferences), errors.Is(err, project.ErrDuplicatePreference),
		errors.Is(err, project.ErrNoPreferences), errors.Is(err, project.ErrInvalidOwner):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "operation failed")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTER IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// The gateway forwards the authenticated session's identity in these
// headers. The core treats them as claims, not proof: every operation
// re-checks the claimed authority against its own rules.
const (
	headerRequesterID   = "X-Requester-ID"
	headerRequesterRole = "X-Requester-Role"
)

// requester extracts the forwarded identity. An unknown role collapses to
// student, the least-privileged role.
func requester(r *http.Request) (string, shared.RequesterRole) {
	id := r.Header.Get(headerRequesterID)
	switch shared.RequesterRole(r.Header.Get(headerRequesterRole)) {
	case shared.RequesterAdmin:
		return id, shared.RequesterAdmin
	case shared.RequesterFaculty:
		return id, shared.RequesterFaculty
	default:
		return id, shared.RequesterStudent
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// generateRequestID generates a unique request ID.
func generateRequestID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%1000)
}

// getQueryParamBool extracts a boolean query parameter.
func getQueryParamBool(r *http.Request, key string) bool {
	value := strings.ToLower(r.URL.Query().Get(key))
	return value == "true" || value == "1" || value == "yes"
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := time.Now().Add(-rl.window)

	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, time.Now())
	return true
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		windowStart := time.Now().Add(-rl.window)
		for key, requests := range rl.requests {
			var valid []time.Time
			for _, t := range requests {
				if t.After(windowStart) {
					valid = append(valid, t)
				}
			}
			if len(valid) == 0 {
				delete(rl.requests, key)
			} else {
				rl.requests[key] = valid
			}
		}
		rl.mu.Unlock()
	}
}
