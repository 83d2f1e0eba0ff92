package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP REPOSITORY IMPLEMENTATION
// The composite operations (AcceptInvitation, FinalizeGroup) lock the group
// row FOR UPDATE and re-run every domain guard inside the transaction, so
// concurrent callers serialize on the group and losers get conflict errors.
// ══════════════════════════════════════════════════════════════════════════════

// GroupRepository implements group.Repository for PostgreSQL.
type GroupRepository struct {
	conn *Connection
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(conn *Connection) *GroupRepository {
	return &GroupRepository{conn: conn}
}

const groupColumns = `id, name, semester, academic_year, leader_id, status,
	min_members, max_members, allocated_faculty_id, COALESCE(project_id::text, ''),
	finalized_at, COALESCE(finalized_by::text, ''), created_at, updated_at`

const invitationColumns = `id, group_id, student_id, role, inviter_id, status,
	reason, created_at, resolved_at`

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create persists a new group with its initial roster.
func (r *GroupRepository) Create(ctx context.Context, g *group.Group) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		query := `
			INSERT INTO groups (
				id, name, semester, academic_year, leader_id, status,
				min_members, max_members, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`

		_, err := tx.Exec(ctx, query,
			g.ID,
			g.Name,
			int(g.Semester),
			string(g.AcademicYear),
			g.LeaderID,
			string(g.Status),
			g.MinMembers,
			g.MaxMembers,
			g.CreatedAt,
			g.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}

		return replaceRoster(ctx, tx, g)
	})
}

// GetByID returns a group with its full roster.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*group.Group, error) {
	query := fmt.Sprintf(`SELECT %s FROM groups WHERE id = $1`, groupColumns)

	g, err := scanGroup(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := loadRosters(ctx, r.conn, []*group.Group{g}); err != nil {
		return nil, err
	}
	return g, nil
}

// Update persists the group's fields and roster.
func (r *GroupRepository) Update(ctx context.Context, g *group.Group) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return updateGroupTx(ctx, tx, g)
	})
}

// GetBySemester returns all groups for a semester and academic year.
func (r *GroupRepository) GetBySemester(ctx context.Context, semester int, academicYear string) ([]*group.Group, error) {
	query := fmt.Sprintf(`SELECT %s FROM groups WHERE semester = $1`, groupColumns)
	args := []interface{}{semester}
	if academicYear != "" {
		query += " AND academic_year = $2"
		args = append(args, academicYear)
	}
	query += " ORDER BY created_at"

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	groups, err := scanGroups(rows)
	if err != nil {
		return nil, err
	}
	if err := loadRosters(ctx, r.conn, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetActiveByStudent returns the group in which the student holds an active
// membership for the semester.
func (r *GroupRepository) GetActiveByStudent(ctx context.Context, studentID string, semester int) (*group.Group, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM groups g
		WHERE g.semester = $2
		  AND g.status NOT IN ('disbanded')
		  AND EXISTS (
			SELECT 1 FROM group_memberships m
			WHERE m.group_id = g.id AND m.student_id = $1 AND m.active
		  )
		LIMIT 1
	`, groupColumns)

	g, err := scanGroup(r.conn.QueryRow(ctx, query, studentID, semester))
	if err != nil {
		return nil, err
	}
	if err := loadRosters(ctx, r.conn, []*group.Group{g}); err != nil {
		return nil, err
	}
	return g, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Invitation Ledger
// ─────────────────────────────────────────────────────────────────────────────

// CreateInvitations persists a batch of pending invitations. The partial
// unique index on pending pairs turns duplicates into ErrDuplicateInvitation
// and rolls back the whole batch.
func (r *GroupRepository) CreateInvitations(ctx context.Context, invitations []*group.Invitation) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, inv := range invitations {
			_, err := tx.Exec(ctx, `
				INSERT INTO invitations (id, group_id, student_id, role, inviter_id, status, reason, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, inv.ID, inv.GroupID, inv.StudentID, string(inv.Role), inv.InviterID,
				string(inv.Status), inv.Reason, inv.CreatedAt)
			if err != nil {
				if IsUniqueViolation(err) {
					return group.ErrDuplicateInvitation
				}
				return fmt.Errorf("failed to create invitation: %w", err)
			}
		}
		return nil
	})
}

// GetInvitation returns the most recent invitation for the pair.
func (r *GroupRepository) GetInvitation(ctx context.Context, groupID, studentID string) (*group.Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invitations
		WHERE group_id = $1 AND student_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, invitationColumns)

	return scanInvitation(r.conn.QueryRow(ctx, query, groupID, studentID))
}

// GetPendingByStudent returns all pending invitations addressed to the student.
func (r *GroupRepository) GetPendingByStudent(ctx context.Context, studentID string) ([]*group.Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invitations
		WHERE student_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`, invitationColumns)

	rows, err := r.conn.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending invitations: %w", err)
	}
	defer rows.Close()
	return scanInvitations(rows)
}

// GetPendingByGroup returns the group's outstanding pending invitations.
func (r *GroupRepository) GetPendingByGroup(ctx context.Context, groupID string) ([]*group.Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invitations
		WHERE group_id = $1 AND status = 'pending'
		ORDER BY created_at
	`, invitationColumns)

	rows, err := r.conn.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending invitations: %w", err)
	}
	defer rows.Close()
	return scanInvitations(rows)
}

// GetByStudent returns the student's full invitation inbox, newest first.
func (r *GroupRepository) GetByStudent(ctx context.Context, studentID string) ([]*group.Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invitations
		WHERE student_id = $1
		ORDER BY created_at DESC
	`, invitationColumns)

	rows, err := r.conn.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	defer rows.Close()
	return scanInvitations(rows)
}

// UpdateInvitation persists a resolved invitation.
func (r *GroupRepository) UpdateInvitation(ctx context.Context, inv *group.Invitation) error {
	result, err := r.conn.Exec(ctx, `
		UPDATE invitations SET status = $1, reason = $2, resolved_at = $3
		WHERE id = $4
	`, string(inv.Status), inv.Reason, inv.ResolvedAt, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return group.ErrInvitationNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Atomic Workflow Operations
// ─────────────────────────────────────────────────────────────────────────────

// AcceptInvitation atomically admits the student, accepts the invitation, and
// auto-rejects the rival invitations. Guards are re-checked under the group's
// row lock.
func (r *GroupRepository) AcceptInvitation(ctx context.Context, groupID, studentID string, at time.Time) (*group.AcceptOutcome, error) {
	var outcome *group.AcceptOutcome

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		g, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}

		inv, err := lockPendingInvitation(ctx, tx, groupID, studentID)
		if err != nil {
			return err
		}

		if err := inv.Accept(at); err != nil {
			return err
		}
		if err := g.AdmitMember(studentID, inv.Role); err != nil {
			return err
		}

		if err := persistInvitation(ctx, tx, inv); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO group_memberships (group_id, student_id, semester, role, active, joined_at)
			VALUES ($1, $2, $3, $4, TRUE, $5)
		`, g.ID, studentID, int(g.Semester), string(inv.Role), at.UTC())
		if err != nil {
			if IsUniqueViolation(err) {
				// The partial unique index caught a concurrent acceptance
				// elsewhere: the student already joined a group.
				return group.ErrInviteTargetUnavailable
			}
			return fmt.Errorf("failed to insert membership: %w", err)
		}

		var autoRejected []*group.Invitation

		// The student joined here: every rival pending invitation dies.
		rivals, err := lockPendingForStudent(ctx, tx, studentID, inv.ID)
		if err != nil {
			return err
		}
		for _, rival := range rivals {
			if err := rival.AutoReject(group.ReasonJoinedAnotherGroup, at); err != nil {
				return err
			}
			if err := persistInvitation(ctx, tx, rival); err != nil {
				return err
			}
			autoRejected = append(autoRejected, rival)
		}

		// Capacity reached: the group's remaining pending invitations die too.
		if !g.Status.AcceptsMembers() {
			remaining, err := lockPendingForGroup(ctx, tx, g.ID)
			if err != nil {
				return err
			}
			for _, p := range remaining {
				if err := p.AutoReject(group.ReasonGroupFull, at); err != nil {
					return err
				}
				if err := persistInvitation(ctx, tx, p); err != nil {
					return err
				}
				autoRejected = append(autoRejected, p)
			}
		}

		if err := updateGroupRow(ctx, tx, g); err != nil {
			return err
		}

		outcome = &group.AcceptOutcome{Group: g, Invitation: inv, AutoRejected: autoRejected}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// FinalizeGroup atomically finalizes the group and auto-rejects its pending
// invitations.
func (r *GroupRepository) FinalizeGroup(ctx context.Context, groupID, requesterID string, at time.Time) (*group.FinalizeOutcome, error) {
	var outcome *group.FinalizeOutcome

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		g, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}

		if err := g.Finalize(requesterID, at); err != nil {
			return err
		}

		pending, err := lockPendingForGroup(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		var autoRejected []*group.Invitation
		for _, p := range pending {
			if err := p.AutoReject(group.ReasonGroupFinalized, at); err != nil {
				return err
			}
			if err := persistInvitation(ctx, tx, p); err != nil {
				return err
			}
			autoRejected = append(autoRejected, p)
		}

		if err := updateGroupRow(ctx, tx, g); err != nil {
			return err
		}

		outcome = &group.FinalizeOutcome{Group: g, AutoRejected: autoRejected}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Transaction helpers
// ─────────────────────────────────────────────────────────────────────────────

// lockGroup loads the group FOR UPDATE with its roster.
func lockGroup(ctx context.Context, tx pgx.Tx, groupID string) (*group.Group, error) {
	query := fmt.Sprintf(`SELECT %s FROM groups WHERE id = $1 FOR UPDATE`, groupColumns)

	g, err := scanGroup(tx.QueryRow(ctx, query, groupID))
	if err != nil {
		return nil, err
	}
	if err := loadRosters(ctx, tx, []*group.Group{g}); err != nil {
		return nil, err
	}
	return g, nil
}

// lockPendingInvitation loads the pending invitation for the pair FOR UPDATE.
// A resolved invitation surfaces as ErrInvitationExpired so the caller can
// tell a late acceptance from a missing one.
func lockPendingInvitation(ctx context.Context, tx pgx.Tx, groupID, studentID string) (*group.Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invitations
		WHERE group_id = $1 AND student_id = $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, invitationColumns)

	inv, err := scanInvitation(tx.QueryRow(ctx, query, groupID, studentID))
	if err != nil {
		return nil, err
	}
	if inv.Status.IsResolved() {
		return nil, group.ErrInvitationExpired
	}
	return inv, nil
}

func lockPendingForStudent(ctx context.Context, tx pgx.Tx, studentID, excludeID string) ([]*group.Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invitations
		WHERE student_id = $1 AND status = 'pending' AND id != $2
		ORDER BY created_at
		FOR UPDATE
	`, invitationColumns)

	rows, err := tx.Query(ctx, query, studentID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock pending invitations: %w", err)
	}
	defer rows.Close()
	return scanInvitations(rows)
}

func lockPendingForGroup(ctx context.Context, tx pgx.Tx, groupID string) ([]*group.Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invitations
		WHERE group_id = $1 AND status = 'pending'
		ORDER BY created_at
		FOR UPDATE
	`, invitationColumns)

	rows, err := tx.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock pending invitations: %w", err)
	}
	defer rows.Close()
	return scanInvitations(rows)
}

func persistInvitation(ctx context.Context, tx pgx.Tx, inv *group.Invitation) error {
	_, err := tx.Exec(ctx, `
		UPDATE invitations SET status = $1, reason = $2, resolved_at = $3
		WHERE id = $4
	`, string(inv.Status), inv.Reason, inv.ResolvedAt, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to persist invitation %s: %w", inv.ID, err)
	}
	return nil
}

func updateGroupTx(ctx context.Context, tx pgx.Tx, g *group.Group) error {
	if err := updateGroupRow(ctx, tx, g); err != nil {
		return err
	}
	return replaceRoster(ctx, tx, g)
}

func updateGroupRow(ctx context.Context, tx pgx.Tx, g *group.Group) error {
	query := `
		UPDATE groups SET
			name = $1,
			leader_id = $2,
			status = $3,
			allocated_faculty_id = $4,
			project_id = NULLIF($5, '')::uuid,
			finalized_at = $6,
			finalized_by = NULLIF($7, '')::uuid,
			updated_at = $8
		WHERE id = $9
	`

	result, err := tx.Exec(ctx, query,
		g.Name,
		g.LeaderID,
		string(g.Status),
		g.AllocatedFacultyID,
		g.ProjectID,
		g.FinalizedAt,
		g.FinalizedBy,
		time.Now().UTC(),
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return group.ErrGroupNotFound
	}
	return nil
}

// replaceRoster rewrites the group's membership rows to match the aggregate.
func replaceRoster(ctx context.Context, tx pgx.Tx, g *group.Group) error {
	if _, err := tx.Exec(ctx, `DELETE FROM group_memberships WHERE group_id = $1`, g.ID); err != nil {
		return fmt.Errorf("failed to clear roster: %w", err)
	}
	for _, m := range g.Members {
		_, err := tx.Exec(ctx, `
			INSERT INTO group_memberships (group_id, student_id, semester, role, active, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, g.ID, m.StudentID, int(g.Semester), string(m.Role), m.Active, m.JoinedAt)
		if err != nil {
			return fmt.Errorf("failed to insert roster entry: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanGroup(row pgx.Row) (*group.Group, error) {
	var (
		g            group.Group
		semester     int
		academicYear string
		status       string
	)

	err := row.Scan(
		&g.ID, &g.Name, &semester, &academicYear, &g.LeaderID, &status,
		&g.MinMembers, &g.MaxMembers, &g.AllocatedFacultyID, &g.ProjectID,
		&g.FinalizedAt, &g.FinalizedBy, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, group.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to scan group: %w", err)
	}

	g.Semester = shared.Semester(semester)
	g.AcademicYear = shared.AcademicYear(academicYear)
	g.Status = group.Status(status)
	return &g, nil
}

func scanGroups(rows pgx.Rows) ([]*group.Group, error) {
	var groups []*group.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// loadRosters fills members for a batch of groups with one query.
func loadRosters(ctx context.Context, q Querier, groups []*group.Group) error {
	if len(groups) == 0 {
		return nil
	}

	byID := make(map[string]*group.Group, len(groups))
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
		ids = append(ids, g.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT group_id, student_id, role, active, joined_at
		FROM group_memberships
		WHERE group_id = ANY($1)
		ORDER BY joined_at
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query rosters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			groupID string
			m       group.Member
			role    string
		)
		if err := rows.Scan(&groupID, &m.StudentID, &role, &m.Active, &m.JoinedAt); err != nil {
			return fmt.Errorf("failed to scan roster entry: %w", err)
		}
		m.Role = shared.Role(role)
		if g, ok := byID[groupID]; ok {
			g.Members = append(g.Members, m)
		}
	}
	return rows.Err()
}

func scanInvitation(row pgx.Row) (*group.Invitation, error) {
	var (
		inv    group.Invitation
		role   string
		status string
	)

	err := row.Scan(
		&inv.ID, &inv.GroupID, &inv.StudentID, &role, &inv.InviterID,
		&status, &inv.Reason, &inv.CreatedAt, &inv.ResolvedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, group.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to scan invitation: %w", err)
	}

	inv.Role = shared.Role(role)
	inv.Status = group.InvitationStatus(status)
	return &inv, nil
}

func scanInvitations(rows pgx.Rows) ([]*group.Invitation, error) {
	var invitations []*group.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}
