package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROJECT REPOSITORY IMPLEMENTATION
// ClaimFaculty is the single contested operation: a conditional UPDATE
// against an empty faculty_id decides the race at the database, so exactly
// one concurrent claimer wins regardless of application-level interleaving.
// ══════════════════════════════════════════════════════════════════════════════

// ProjectRepository implements project.Repository for PostgreSQL.
type ProjectRepository struct {
	conn *Connection
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(conn *Connection) *ProjectRepository {
	return &ProjectRepository{conn: conn}
}

const projectColumns = `id, title, COALESCE(student_id::text, ''), COALESCE(group_id::text, ''),
	semester, academic_year, COALESCE(faculty_id, ''), allocated_by, status, created_at, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create persists a new project together with its pending allocation record.
func (r *ProjectRepository) Create(ctx context.Context, p *project.Project, rec *project.AllocationRecord) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		query := `
			INSERT INTO projects (
				id, title, student_id, group_id, semester, academic_year,
				faculty_id, allocated_by, status, created_at, updated_at
			) VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6,
				NULLIF($7, ''), $8, $9, $10, $11)
		`

		_, err := tx.Exec(ctx, query,
			p.ID,
			p.Title,
			p.StudentID,
			p.GroupID,
			int(p.Semester),
			string(p.AcademicYear),
			p.FacultyID,
			string(p.AllocatedBy),
			string(p.Status),
			p.CreatedAt,
			p.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.NewDomainError("project", "Create", shared.ErrAlreadyExists,
					"owner already has a project for this semester")
			}
			return fmt.Errorf("failed to create project: %w", err)
		}

		for _, pref := range p.Preferences {
			_, err := tx.Exec(ctx, `
				INSERT INTO project_preferences (project_id, faculty_id, priority)
				VALUES ($1, $2, $3)
			`, p.ID, pref.FacultyID, pref.Priority)
			if err != nil {
				return fmt.Errorf("failed to insert preference: %w", err)
			}
		}

		if rec != nil {
			if err := insertAllocationRecord(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID returns a project.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*project.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1`, projectColumns)

	p, err := scanProject(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadPreferences(ctx, []*project.Project{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByGroup returns the project owned by the group for a semester.
func (r *ProjectRepository) GetByGroup(ctx context.Context, groupID string, semester int) (*project.Project, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM projects
		WHERE group_id = $1 AND semester = $2 AND status != 'cancelled'
	`, projectColumns)

	p, err := scanProject(r.conn.QueryRow(ctx, query, groupID, semester))
	if err != nil {
		return nil, err
	}
	if err := r.loadPreferences(ctx, []*project.Project{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByStudent returns the solo project owned by the student for a semester.
func (r *ProjectRepository) GetByStudent(ctx context.Context, studentID string, semester int) (*project.Project, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM projects
		WHERE student_id = $1 AND semester = $2 AND status != 'cancelled'
	`, projectColumns)

	p, err := scanProject(r.conn.QueryRow(ctx, query, studentID, semester))
	if err != nil {
		return nil, err
	}
	if err := r.loadPreferences(ctx, []*project.Project{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPendingForFaculty returns pending projects listing the faculty in their
// preferences - the faculty's incoming preference queue.
func (r *ProjectRepository) GetPendingForFaculty(ctx context.Context, facultyID string) ([]*project.Project, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM projects p
		WHERE p.faculty_id IS NULL
		  AND p.status = 'registered'
		  AND EXISTS (
			SELECT 1 FROM project_preferences pp
			WHERE pp.project_id = p.id AND pp.faculty_id = $1
		  )
		ORDER BY p.created_at
	`, projectColumns)

	rows, err := r.conn.Query(ctx, query, facultyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending projects: %w", err)
	}
	defer rows.Close()

	projects, err := scanProjects(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadPreferences(ctx, projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// Update persists the project's fields. The preference list is immutable
// after registration and is not written here.
func (r *ProjectRepository) Update(ctx context.Context, p *project.Project) error {
	query := `
		UPDATE projects SET
			title = $1,
			faculty_id = NULLIF($2, ''),
			allocated_by = $3,
			status = $4,
			updated_at = $5
		WHERE id = $6
	`

	result, err := r.conn.Exec(ctx, query,
		p.Title,
		p.FacultyID,
		string(p.AllocatedBy),
		string(p.Status),
		time.Now().UTC(),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return project.ErrProjectNotFound
	}
	return nil
}

// Delete removes an orphaned project.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	result, err := r.conn.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return project.ErrProjectNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Allocation Records
// ─────────────────────────────────────────────────────────────────────────────

// GetAllocationByProject returns the current (non-superseded) allocation
// record for a project.
func (r *ProjectRepository) GetAllocationByProject(ctx context.Context, projectID string) (*project.AllocationRecord, error) {
	query := `
		SELECT a.id, a.project_id, COALESCE(p.group_id::text, ''),
		       COALESCE(a.faculty_id, ''), a.outcome, a.method,
		       COALESCE(a.superseded_by::text, ''), a.created_at, a.resolved_at
		FROM faculty_allocations a
		JOIN projects p ON p.id = a.project_id
		WHERE a.project_id = $1 AND a.superseded_by IS NULL
	`

	rec, err := scanAllocationRecord(r.conn.QueryRow(ctx, query, projectID))
	if err != nil {
		return nil, err
	}
	if err := r.loadRecordPreferences(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateAllocationRecord persists a new allocation record.
func (r *ProjectRepository) CreateAllocationRecord(ctx context.Context, rec *project.AllocationRecord) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return insertAllocationRecord(ctx, tx, rec)
	})
}

// UpdateAllocationRecord persists a resolved or superseded record.
func (r *ProjectRepository) UpdateAllocationRecord(ctx context.Context, rec *project.AllocationRecord) error {
	query := `
		UPDATE faculty_allocations SET
			faculty_id = NULLIF($1, ''),
			outcome = $2,
			method = $3,
			superseded_by = NULLIF($4, '')::uuid,
			resolved_at = $5
		WHERE id = $6
	`

	result, err := r.conn.Exec(ctx, query,
		rec.FacultyID,
		string(rec.Outcome),
		string(rec.Method),
		rec.SupersededBy,
		rec.ResolvedAt,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update allocation record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return project.ErrProjectNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Atomic Workflow Operations
// ─────────────────────────────────────────────────────────────────────────────

// ClaimFaculty atomically assigns the faculty if and only if no faculty is
// allocated yet. The conditional UPDATE is the compare-and-set; everything
// after it runs in the same transaction.
func (r *ProjectRepository) ClaimFaculty(ctx context.Context, projectID, facultyID string, at time.Time) (*project.Project, error) {
	var claimed *project.Project

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE projects SET
				faculty_id = $1,
				allocated_by = $2,
				status = $3,
				updated_at = $4
			WHERE id = $5
			  AND faculty_id IS NULL
			  AND status = 'registered'
			  AND EXISTS (
				SELECT 1 FROM project_preferences pp
				WHERE pp.project_id = projects.id AND pp.faculty_id = $1
			  )
		`, facultyID, string(project.MethodPreferenceMatch),
			string(project.StatusFacultyAllocated), at.UTC(), projectID)
		if err != nil {
			return fmt.Errorf("failed to claim project: %w", err)
		}

		if result.RowsAffected() == 0 {
			// Lost the race, off-list faculty, or missing project: classify
			// by re-reading current state.
			return classifyFailedClaim(ctx, tx, projectID, facultyID)
		}

		p, err := scanProject(tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1`, projectColumns), projectID))
		if err != nil {
			return err
		}

		// Resolve the pending allocation record in the same transaction.
		_, err = tx.Exec(ctx, `
			UPDATE faculty_allocations SET
				faculty_id = $1,
				outcome = $2,
				method = $3,
				resolved_at = $4
			WHERE project_id = $5 AND superseded_by IS NULL AND outcome = 'pending'
		`, facultyID, string(project.AllocationAllocated),
			string(project.MethodPreferenceMatch), at.UTC(), projectID)
		if err != nil {
			return fmt.Errorf("failed to resolve allocation record: %w", err)
		}

		// Propagate the faculty reference to the owning group, if any.
		if p.GroupID != "" {
			_, err = tx.Exec(ctx, `
				UPDATE groups SET allocated_faculty_id = $1, updated_at = $2
				WHERE id = $3
			`, facultyID, at.UTC(), p.GroupID)
			if err != nil {
				return fmt.Errorf("failed to propagate faculty to group: %w", err)
			}
			p.AllocatedBy = project.MethodPreferenceMatch
		}

		claimed = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := r.loadPreferences(ctx, []*project.Project{claimed}); err != nil {
		return nil, err
	}
	return claimed, nil
}

// classifyFailedClaim turns a zero-row CAS into the precise domain error.
func classifyFailedClaim(ctx context.Context, tx pgx.Tx, projectID, facultyID string) error {
	var (
		allocated bool
		status    string
		listed    bool
	)
	err := tx.QueryRow(ctx, `
		SELECT faculty_id IS NOT NULL, status,
		       EXISTS (SELECT 1 FROM project_preferences pp
		               WHERE pp.project_id = p.id AND pp.faculty_id = $2)
		FROM projects p WHERE p.id = $1
	`, projectID, facultyID).Scan(&allocated, &status, &listed)
	if err != nil {
		if IsNoRows(err) {
			return project.ErrProjectNotFound
		}
		return fmt.Errorf("failed to classify claim: %w", err)
	}

	switch {
	case allocated:
		return project.ErrAlreadyAllocated
	case project.Status(status).IsTerminal():
		return project.ErrProjectTerminal
	case !listed:
		return project.ErrFacultyNotPreferred
	default:
		return project.ErrAlreadyAllocated
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning and helpers
// ─────────────────────────────────────────────────────────────────────────────

func insertAllocationRecord(ctx context.Context, tx pgx.Tx, rec *project.AllocationRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO faculty_allocations (
			id, project_id, faculty_id, outcome, method, superseded_by, created_at, resolved_at
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, '')::uuid, $7, $8)
	`, rec.ID, rec.ProjectID, rec.FacultyID, string(rec.Outcome), string(rec.Method),
		rec.SupersededBy, rec.CreatedAt, rec.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to insert allocation record: %w", err)
	}
	return nil
}

func scanProject(row pgx.Row) (*project.Project, error) {
	var (
		p            project.Project
		semester     int
		academicYear string
		allocatedBy  string
		status       string
	)

	err := row.Scan(
		&p.ID, &p.Title, &p.StudentID, &p.GroupID, &semester, &academicYear,
		&p.FacultyID, &allocatedBy, &status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, project.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	p.Semester = shared.Semester(semester)
	p.AcademicYear = shared.AcademicYear(academicYear)
	p.AllocatedBy = project.AllocationMethod(allocatedBy)
	p.Status = project.Status(status)
	return &p, nil
}

func scanProjects(rows pgx.Rows) ([]*project.Project, error) {
	var projects []*project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// loadPreferences fills preference lists for a batch of projects.
func (r *ProjectRepository) loadPreferences(ctx context.Context, projects []*project.Project) error {
	if len(projects) == 0 {
		return nil
	}

	byID := make(map[string]*project.Project, len(projects))
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := r.conn.Query(ctx, `
		SELECT project_id, faculty_id, priority
		FROM project_preferences
		WHERE project_id = ANY($1)
		ORDER BY project_id, priority
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			projectID string
			pref      project.FacultyPreference
		)
		if err := rows.Scan(&projectID, &pref.FacultyID, &pref.Priority); err != nil {
			return fmt.Errorf("failed to scan preference: %w", err)
		}
		if p, ok := byID[projectID]; ok {
			p.Preferences = append(p.Preferences, pref)
		}
	}
	return rows.Err()
}

func (r *ProjectRepository) loadRecordPreferences(ctx context.Context, rec *project.AllocationRecord) error {
	rows, err := r.conn.Query(ctx, `
		SELECT faculty_id, priority
		FROM project_preferences
		WHERE project_id = $1
		ORDER BY priority
	`, rec.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to query record preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pref project.FacultyPreference
		if err := rows.Scan(&pref.FacultyID, &pref.Priority); err != nil {
			return fmt.Errorf("failed to scan record preference: %w", err)
		}
		rec.Preferences = append(rec.Preferences, pref)
	}
	return rows.Err()
}

func scanAllocationRecord(row pgx.Row) (*project.AllocationRecord, error) {
	var (
		rec     project.AllocationRecord
		outcome string
		method  string
	)

	err := row.Scan(
		&rec.ID, &rec.ProjectID, &rec.GroupID, &rec.FacultyID, &outcome, &method,
		&rec.SupersededBy, &rec.CreatedAt, &rec.ResolvedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, project.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to scan allocation record: %w", err)
	}

	rec.Outcome = project.AllocationOutcome(outcome)
	rec.Method = project.AllocationMethod(method)
	return &rec, nil
}
