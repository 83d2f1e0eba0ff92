package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WORKFLOW CONFIG STORE
// The store is the source of truth for per-semester parameters. The core
// re-reads it for every operation that depends on it; caching is layered on
// top in the redis package.
// ══════════════════════════════════════════════════════════════════════════════

// WorkflowConfigStore implements shared.WorkflowConfigSource over the
// workflow_configs table.
type WorkflowConfigStore struct {
	conn *Connection
}

// NewWorkflowConfigStore creates a new WorkflowConfigStore.
func NewWorkflowConfigStore(conn *Connection) *WorkflowConfigStore {
	return &WorkflowConfigStore{conn: conn}
}

// WorkflowConfig returns the parameters for a semester and track. When no
// track-specific row exists the track-neutral row (track = '') applies.
func (s *WorkflowConfigStore) WorkflowConfig(ctx context.Context, semester shared.Semester, track shared.Track) (shared.WorkflowConfig, error) {
	query := `
		SELECT semester, track, min_group_members, max_group_members,
		       faculty_preference_limit, allowed_faculty_categories,
		       registration_opens_at, registration_closes_at
		FROM workflow_configs
		WHERE semester = $1 AND track IN ($2, '')
		ORDER BY track DESC
		LIMIT 1
	`

	var (
		cfg              shared.WorkflowConfig
		sem              int
		trk              string
		categoriesJSON   []byte
		opensAt, closesAt *time.Time
	)
	err := s.conn.QueryRow(ctx, query, int(semester), string(track)).Scan(
		&sem, &trk, &cfg.MinGroupMembers, &cfg.MaxGroupMembers,
		&cfg.FacultyPreferenceLimit, &categoriesJSON,
		&opensAt, &closesAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return shared.WorkflowConfig{}, shared.NewDomainError("config", "WorkflowConfig",
				shared.ErrNotFound, fmt.Sprintf("no workflow config for semester %d", int(semester)))
		}
		return shared.WorkflowConfig{}, fmt.Errorf("failed to load workflow config: %w", err)
	}

	cfg.Semester = shared.Semester(sem)
	cfg.Track = shared.Track(trk)
	if opensAt != nil {
		cfg.RegistrationOpensAt = *opensAt
	}
	if closesAt != nil {
		cfg.RegistrationClosesAt = *closesAt
	}
	if len(categoriesJSON) > 0 {
		if err := json.Unmarshal(categoriesJSON, &cfg.AllowedFacultyCategories); err != nil {
			return shared.WorkflowConfig{}, fmt.Errorf("failed to decode faculty categories: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return shared.WorkflowConfig{}, err
	}
	return cfg, nil
}

// Upsert writes a configuration row. Used by administrative tooling and by
// tests seeding the store.
func (s *WorkflowConfigStore) Upsert(ctx context.Context, cfg shared.WorkflowConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	categoriesJSON, err := json.Marshal(cfg.AllowedFacultyCategories)
	if err != nil {
		return fmt.Errorf("failed to encode faculty categories: %w", err)
	}
	if cfg.AllowedFacultyCategories == nil {
		categoriesJSON = []byte("[]")
	}

	query := `
		INSERT INTO workflow_configs (
			semester, track, min_group_members, max_group_members,
			faculty_preference_limit, allowed_faculty_categories,
			registration_opens_at, registration_closes_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (semester, track) DO UPDATE SET
			min_group_members = EXCLUDED.min_group_members,
			max_group_members = EXCLUDED.max_group_members,
			faculty_preference_limit = EXCLUDED.faculty_preference_limit,
			allowed_faculty_categories = EXCLUDED.allowed_faculty_categories,
			registration_opens_at = EXCLUDED.registration_opens_at,
			registration_closes_at = EXCLUDED.registration_closes_at,
			updated_at = NOW()
	`

	_, err = s.conn.Exec(ctx, query,
		int(cfg.Semester),
		string(cfg.Track),
		cfg.MinGroupMembers,
		cfg.MaxGroupMembers,
		cfg.FacultyPreferenceLimit,
		categoriesJSON,
		nullableTime(cfg.RegistrationOpensAt),
		nullableTime(cfg.RegistrationClosesAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert workflow config: %w", err)
	}
	return nil
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
