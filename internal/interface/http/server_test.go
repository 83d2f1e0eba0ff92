package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiitp-spms/spms-workflow/internal/application/command"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test harness
// ─────────────────────────────────────────────────────────────────────────────

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

type memStudents struct {
	mu       sync.Mutex
	students map[string]*student.Student
}

func newMemStudents() *memStudents {
	return &memStudents{students: make(map[string]*student.Student)}
}

func (m *memStudents) seed(s *student.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.students[s.ID] = &cp
}

func (m *memStudents) Create(_ context.Context, s *student.Student) error {
	m.seed(s)
	return nil
}

func (m *memStudents) GetByID(_ context.Context, id string) (*student.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", id, shared.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *memStudents) GetByIDs(ctx context.Context, ids []string) ([]*student.Student, error) {
	var out []*student.Student
	for _, id := range ids {
		if s, err := m.GetByID(ctx, id); err == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStudents) GetByRollNumber(_ context.Context, roll string) (*student.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.RollNumber == roll {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("roll %s: %w", roll, shared.ErrNotFound)
}

func (m *memStudents) Update(_ context.Context, s *student.Student) error {
	m.seed(s)
	return nil
}

func (m *memStudents) GetCohort(_ context.Context, _ student.CohortFilter) ([]*student.Student, error) {
	return nil, nil
}

func (m *memStudents) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.students), nil
}

type memTracks struct {
	mu   sync.Mutex
	sels map[string]*student.TrackSelection
}

func newMemTracks() *memTracks {
	return &memTracks{sels: make(map[string]*student.TrackSelection)}
}

func trackKey(studentID string, semester shared.Semester) string {
	return fmt.Sprintf("%s/%d", studentID, int(semester))
}

func (m *memTracks) Create(_ context.Context, sel *student.TrackSelection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := trackKey(sel.StudentID, sel.Semester)
	if _, exists := m.sels[key]; exists {
		return student.ErrTrackSelectionExists
	}
	cp := *sel
	m.sels[key] = &cp
	return nil
}

func (m *memTracks) Get(_ context.Context, studentID string, semester shared.Semester) (*student.TrackSelection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sel, ok := m.sels[trackKey(studentID, semester)]
	if !ok {
		return nil, fmt.Errorf("selection: %w", shared.ErrNotFound)
	}
	cp := *sel
	return &cp, nil
}

func (m *memTracks) Update(_ context.Context, sel *student.TrackSelection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sel
	m.sels[trackKey(sel.StudentID, sel.Semester)] = &cp
	return nil
}

type serverWorld struct {
	students *memStudents
	tracks   *memTracks
	server   *Server
}

func newServerWorld(t *testing.T, cfg Config) *serverWorld {
	t.Helper()
	students := newMemStudents()
	tracks := newMemTracks()
	ids := command.NewUUIDGenerator()

	deps := Dependencies{
		SyncStudent:        command.NewSyncStudentHandler(students),
		SelectTrack:        command.NewSelectTrackHandler(students, tracks, ids),
		RecordVerification: command.NewRecordVerificationHandler(tracks),
		Logger:             quietLogger(),
	}

	return &serverWorld{
		students: students,
		tracks:   tracks,
		server:   NewServer(cfg, deps),
	}
}

func (w *serverWorld) seedStudent(t *testing.T, id string, semester shared.Semester) {
	t.Helper()
	st, err := student.NewStudent(student.NewStudentParams{
		ID:           id,
		FullName:     "Student " + id,
		RollNumber:   "CS23" + id,
		Branch:       "CSE",
		Degree:       shared.DegreeBTech,
		Semester:     semester,
		AcademicYear: "2025-26",
	})
	require.NoError(t, err)
	w.students.seed(st)
}

func (w *serverWorld) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	w.server.Handler().ServeHTTP(rec, req)
	return rec
}

func asStudent(id string) map[string]string {
	return map[string]string{headerRequesterID: id, headerRequesterRole: "student"}
}

func asAdmin(id string) map[string]string {
	return map[string]string{headerRequesterID: id, headerRequesterRole: "admin"}
}

// ─────────────────────────────────────────────────────────────────────────────
// Health & probes
// ─────────────────────────────────────────────────────────────────────────────

func TestHealthEndpoints(t *testing.T) {
	t.Run("healthy without readiness check", func(t *testing.T) {
		w := newServerWorld(t, DefaultConfig())

		rec := w.do(http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)

		rec = w.do(http.MethodGet, "/live", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ready reports backing store failures", func(t *testing.T) {
		w := newServerWorld(t, DefaultConfig())
		w.server.deps.Readiness = func(context.Context) error {
			return errors.New("pool exhausted")
		}

		rec := w.do(http.MethodGet, "/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_ready")
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Requester identity & authorization
// ─────────────────────────────────────────────────────────────────────────────

func TestRequesterIdentity(t *testing.T) {
	t.Run("missing requester header is rejected", func(t *testing.T) {
		w := newServerWorld(t, DefaultConfig())

		rec := w.do(http.MethodPost, "/api/v1/students/alice/track", `{"semester":7,"track":"internship"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing_requester")
	})

	t.Run("unknown role collapses to student", func(t *testing.T) {
		w := newServerWorld(t, DefaultConfig())

		// A forged role grants no admin authority on an admin endpoint.
		rec := w.do(http.MethodPost, "/api/v1/students", `{}`, map[string]string{
			headerRequesterID:   "mallory",
			headerRequesterRole: "superuser",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("students cannot act for each other", func(t *testing.T) {
		w := newServerWorld(t, DefaultConfig())
		w.seedStudent(t, "alice", 7)

		rec := w.do(http.MethodPost, "/api/v1/students/alice/track",
			`{"semester":7,"track":"internship"}`, asStudent("bob"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Track selection over HTTP
// ─────────────────────────────────────────────────────────────────────────────

func TestTrackSelectionEndpoints(t *testing.T) {
	w := newServerWorld(t, DefaultConfig())
	w.seedStudent(t, "dana", 7)

	rec := w.do(http.MethodPost, "/api/v1/students/dana/track",
		`{"semester":7,"track":"internship"}`, asStudent("dana"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"track":"internship"`)

	// A second selection for the same semester conflicts.
	rec = w.do(http.MethodPost, "/api/v1/students/dana/track",
		`{"semester":7,"track":"coursework"}`, asStudent("dana"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Verification requires admin authority; the domain rejects others.
	rec = w.do(http.MethodPost, "/api/v1/students/dana/track/verification",
		`{"semester":7,"outcome":"verified_pass"}`, asStudent("dana"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = w.do(http.MethodPost, "/api/v1/students/dana/track/verification",
		`{"semester":7,"outcome":"verified_pass"}`, asAdmin("admin-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"verified_pass"`)
}

func TestSyncStudentEndpoint(t *testing.T) {
	w := newServerWorld(t, DefaultConfig())

	body := `{"student_id":"s-1","full_name":"Asha Rao","roll_number":"CS23B001",` +
		`"branch":"CSE","degree":"btech","semester":5,"academic_year":"2025-26"}`

	rec := w.do(http.MethodPost, "/api/v1/students", body, asAdmin("roster-sync"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_new":true`)

	got, err := w.students.GetByID(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got.FullName)

	// Malformed bodies never reach the handler.
	rec = w.do(http.MethodPost, "/api/v1/students", `{"student_id":`, asAdmin("roster-sync"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

func TestAPIKeyMiddleware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKeys = []string{"gateway-secret"}
	w := newServerWorld(t, cfg)

	// API routes need the key.
	rec := w.do(http.MethodGet, "/api/v1/students/dana/invitations", "", asStudent("dana"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_api_key")

	// Health probes stay open.
	rec = w.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The right key passes through to the handlers.
	w.seedStudent(t, "dana", 7)
	rec = w.do(http.MethodPost, "/api/v1/students/dana/track",
		`{"semester":7,"track":"coursework"}`, map[string]string{
			headerRequesterID:   "dana",
			headerRequesterRole: "student",
			"X-API-Key":         "gateway-secret",
		})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 2
	w := newServerWorld(t, cfg)
	w.seedStudent(t, "dana", 7)

	for i := 0; i < 2; i++ {
		rec := w.do(http.MethodGet, "/health", "", asStudent("dana"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := w.do(http.MethodGet, "/health", "", asStudent("dana"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Other requesters keep their own budget.
	rec = w.do(http.MethodGet, "/health", "", asStudent("erin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	w := newServerWorld(t, DefaultConfig())

	rec := w.do(http.MethodGet, "/health", "", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = w.do(http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Error mapping
// ─────────────────────────────────────────────────────────────────────────────

func TestWriteDomainError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("load: %w", shared.ErrNotFound), http.StatusNotFound},
		{"forbidden", fmt.Errorf("op: %w", shared.ErrForbidden), http.StatusForbidden},
		{"state transition", fmt.Errorf("op: %w", shared.ErrStateTransition), http.StatusConflict},
		{"conflict", fmt.Errorf("op: %w", shared.ErrConflict), http.StatusConflict},
		{"capacity", fmt.Errorf("op: %w", shared.ErrCapacity), http.StatusConflict},
		{"ineligible", fmt.Errorf("op: %w", shared.ErrIneligible), http.StatusUnprocessableEntity},
		{"duplicate selection", fmt.Errorf("select_track: %w", student.ErrTrackSelectionExists), http.StatusConflict},
		{"not enrolled", fmt.Errorf("select_track: %w", student.ErrNotEnrolled), http.StatusUnprocessableEntity},
		{"validation", fmt.Errorf("op: %w", shared.ErrInvalidInput), http.StatusBadRequest},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tc.err)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	// Internal errors never leak their message to the client.
	rec := httptest.NewRecorder()
	writeDomainError(rec, errors.New("password=hunter2"))
	assert.NotContains(t, rec.Body.String(), "hunter2")
}
