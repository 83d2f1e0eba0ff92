package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `id, full_name, roll_number, branch, degree, semester,
	academic_year, status, created_at, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create creates a new student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (
			id, full_name, roll_number, branch, degree, semester,
			academic_year, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.conn.Exec(ctx, query,
		s.ID,
		s.FullName,
		s.RollNumber,
		s.Branch,
		string(s.Degree),
		int(s.Semester),
		string(s.AcademicYear),
		string(s.Status),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return student.ErrStudentAlreadyExists
		}
		return fmt.Errorf("failed to create student: %w", err)
	}

	return nil
}

// GetByID returns a student with memberships and project refs loaded.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)

	s, err := r.scanStudent(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadAssociations(ctx, r.conn, []*student.Student{s}); err != nil {
		return nil, err
	}
	return s, nil
}

// GetByRollNumber returns a student by institutional ID.
func (r *StudentRepository) GetByRollNumber(ctx context.Context, rollNumber string) (*student.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE roll_number = $1`, studentColumns)

	s, err := r.scanStudent(r.conn.QueryRow(ctx, query, rollNumber))
	if err != nil {
		return nil, err
	}
	if err := r.loadAssociations(ctx, r.conn, []*student.Student{s}); err != nil {
		return nil, err
	}
	return s, nil
}

// GetByIDs returns students by ID list; missing IDs are skipped.
func (r *StudentRepository) GetByIDs(ctx context.Context, ids []string) ([]*student.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = ANY($1)`, studentColumns)

	rows, err := r.conn.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	students, err := r.scanStudents(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadAssociations(ctx, r.conn, students); err != nil {
		return nil, err
	}
	return students, nil
}

// Update persists the student together with membership and project reference
// changes. The associated rows are replaced in the same transaction, so a
// partial failure leaves the previous state intact.
func (r *StudentRepository) Update(ctx context.Context, s *student.Student) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		query := `
			UPDATE students SET
				full_name = $1,
				branch = $2,
				degree = $3,
				semester = $4,
				academic_year = $5,
				status = $6,
				updated_at = $7
			WHERE id = $8
		`

		result, err := tx.Exec(ctx, query,
			s.FullName,
			s.Branch,
			string(s.Degree),
			int(s.Semester),
			string(s.AcademicYear),
			string(s.Status),
			time.Now().UTC(),
			s.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update student: %w", err)
		}
		if result.RowsAffected() == 0 {
			return student.ErrStudentNotFound
		}

		if err := replaceMemberships(ctx, tx, s); err != nil {
			return err
		}
		return replaceProjectRefs(ctx, tx, s)
	})
}

// GetCohort returns the students matching the filter, with associations
// loaded, ordered by roll number for stable batch processing.
func (r *StudentRepository) GetCohort(ctx context.Context, filter student.CohortFilter) ([]*student.Student, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Semester != 0 {
		add("semester = $%d", int(filter.Semester))
	}
	if filter.AcademicYear != "" {
		add("academic_year = $%d", string(filter.AcademicYear))
	}
	if filter.Degree != "" {
		add("degree = $%d", string(filter.Degree))
	}
	if len(filter.StudentIDs) > 0 {
		add("id = ANY($%d)", filter.StudentIDs)
	}

	query := fmt.Sprintf(`SELECT %s FROM students`, studentColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY roll_number"

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort: %w", err)
	}
	defer rows.Close()

	students, err := r.scanStudents(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadAssociations(ctx, r.conn, students); err != nil {
		return nil, err
	}
	return students, nil
}

// Count returns the total number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM students").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning and associations
// ─────────────────────────────────────────────────────────────────────────────

func (r *StudentRepository) scanStudent(row pgx.Row) (*student.Student, error) {
	var (
		s            student.Student
		degree       string
		semester     int
		academicYear string
		status       string
	)

	err := row.Scan(
		&s.ID, &s.FullName, &s.RollNumber, &s.Branch, &degree, &semester,
		&academicYear, &status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, student.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}

	s.Degree = shared.Degree(degree)
	s.Semester = shared.Semester(semester)
	s.AcademicYear = shared.AcademicYear(academicYear)
	s.Status = student.Status(status)
	return &s, nil
}

func (r *StudentRepository) scanStudents(rows pgx.Rows) ([]*student.Student, error) {
	var students []*student.Student
	for rows.Next() {
		s, err := r.scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// loadAssociations fills memberships and project refs for a batch of
// students with two queries instead of 2N.
func (r *StudentRepository) loadAssociations(ctx context.Context, q Querier, students []*student.Student) error {
	if len(students) == 0 {
		return nil
	}

	byID := make(map[string]*student.Student, len(students))
	ids := make([]string, 0, len(students))
	for _, s := range students {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT student_id, group_id, semester, role, active, joined_at
		FROM group_memberships
		WHERE student_id = ANY($1)
		ORDER BY joined_at
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			studentID string
			m         student.GroupMembership
			semester  int
			role      string
		)
		if err := rows.Scan(&studentID, &m.GroupID, &semester, &role, &m.Active, &m.JoinedAt); err != nil {
			return fmt.Errorf("failed to scan membership: %w", err)
		}
		m.Semester = shared.Semester(semester)
		m.Role = shared.Role(role)
		if s, ok := byID[studentID]; ok {
			s.Memberships = append(s.Memberships, m)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	refRows, err := q.Query(ctx, `
		SELECT student_id, project_id, semester, role, status
		FROM student_project_refs
		WHERE student_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query project refs: %w", err)
	}
	defer refRows.Close()

	for refRows.Next() {
		var (
			studentID string
			ref       student.ProjectRef
			semester  int
			role      string
		)
		if err := refRows.Scan(&studentID, &ref.ProjectID, &semester, &role, &ref.Status); err != nil {
			return fmt.Errorf("failed to scan project ref: %w", err)
		}
		ref.Semester = shared.Semester(semester)
		ref.Role = shared.Role(role)
		if s, ok := byID[studentID]; ok {
			s.Projects = append(s.Projects, ref)
		}
	}
	return refRows.Err()
}

// replaceMemberships rewrites the student's membership rows to match the
// aggregate. An absolute set, so re-running a batch converges.
func replaceMemberships(ctx context.Context, tx pgx.Tx, s *student.Student) error {
	if _, err := tx.Exec(ctx, `DELETE FROM group_memberships WHERE student_id = $1`, s.ID); err != nil {
		return fmt.Errorf("failed to clear memberships: %w", err)
	}
	for _, m := range s.Memberships {
		_, err := tx.Exec(ctx, `
			INSERT INTO group_memberships (group_id, student_id, semester, role, active, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, m.GroupID, s.ID, int(m.Semester), string(m.Role), m.Active, m.JoinedAt)
		if err != nil {
			return fmt.Errorf("failed to insert membership: %w", err)
		}
	}
	return nil
}

// replaceProjectRefs rewrites the student's project reference mirror.
func replaceProjectRefs(ctx context.Context, tx pgx.Tx, s *student.Student) error {
	if _, err := tx.Exec(ctx, `DELETE FROM student_project_refs WHERE student_id = $1`, s.ID); err != nil {
		return fmt.Errorf("failed to clear project refs: %w", err)
	}
	for _, ref := range s.Projects {
		_, err := tx.Exec(ctx, `
			INSERT INTO student_project_refs (student_id, project_id, semester, role, status)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ID, ref.ProjectID, int(ref.Semester), string(ref.Role), ref.Status)
		if err != nil {
			return fmt.Errorf("failed to insert project ref: %w", err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACK SELECTION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// TrackSelectionRepository implements student.TrackSelectionRepository.
type TrackSelectionRepository struct {
	conn *Connection
}

// NewTrackSelectionRepository creates a new TrackSelectionRepository.
func NewTrackSelectionRepository(conn *Connection) *TrackSelectionRepository {
	return &TrackSelectionRepository{conn: conn}
}

// Create persists a new selection.
func (r *TrackSelectionRepository) Create(ctx context.Context, sel *student.TrackSelection) error {
	query := `
		INSERT INTO track_selections (
			id, student_id, semester, track, finalized, verification, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.conn.Exec(ctx, query,
		sel.ID,
		sel.StudentID,
		int(sel.Semester),
		string(sel.Track),
		sel.Finalized,
		string(sel.Verification),
		sel.CreatedAt,
		sel.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return student.ErrTrackSelectionExists
		}
		return fmt.Errorf("failed to create track selection: %w", err)
	}
	return nil
}

// Get returns the selection for (student, semester).
func (r *TrackSelectionRepository) Get(ctx context.Context, studentID string, semester shared.Semester) (*student.TrackSelection, error) {
	query := `
		SELECT id, student_id, semester, track, finalized, verification, created_at, updated_at
		FROM track_selections
		WHERE student_id = $1 AND semester = $2
	`

	var (
		sel          student.TrackSelection
		sem          int
		track        string
		verification string
	)
	err := r.conn.QueryRow(ctx, query, studentID, int(semester)).Scan(
		&sel.ID, &sel.StudentID, &sem, &track, &sel.Finalized,
		&verification, &sel.CreatedAt, &sel.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, student.ErrTrackSelectionNotFound
		}
		return nil, fmt.Errorf("failed to scan track selection: %w", err)
	}

	sel.Semester = shared.Semester(sem)
	sel.Track = shared.Track(track)
	sel.Verification = student.VerificationOutcome(verification)
	return &sel, nil
}

// Update persists selection changes.
func (r *TrackSelectionRepository) Update(ctx context.Context, sel *student.TrackSelection) error {
	query := `
		UPDATE track_selections SET
			track = $1,
			finalized = $2,
			verification = $3,
			updated_at = $4
		WHERE id = $5
	`

	result, err := r.conn.Exec(ctx, query,
		string(sel.Track),
		sel.Finalized,
		string(sel.Verification),
		time.Now().UTC(),
		sel.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update track selection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return student.ErrTrackSelectionNotFound
	}
	return nil
}
