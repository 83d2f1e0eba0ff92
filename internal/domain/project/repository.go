package project

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence. ClaimFaculty is the
// single contested operation: it must be a compare-and-set against an empty
// allocation so that exactly one concurrent claimer wins.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines persistence operations for projects and allocation
// records.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// CRUD Operations
	// ─────────────────────────────────────────────────────────────────────────

	// Create persists a new project together with its pending allocation
	// record.
	Create(ctx context.Context, p *Project, rec *AllocationRecord) error

	// GetByID returns a project.
	// Returns ErrProjectNotFound if the project does not exist.
	GetByID(ctx context.Context, id string) (*Project, error)

	// GetByGroup returns the project owned by the group for a semester.
	// Returns ErrProjectNotFound if none exists.
	GetByGroup(ctx context.Context, groupID string, semester int) (*Project, error)

	// GetByStudent returns the solo project owned by the student for a
	// semester. Returns ErrProjectNotFound if none exists.
	GetByStudent(ctx context.Context, studentID string, semester int) (*Project, error)

	// GetPendingForFaculty returns pending projects listing the faculty in
	// their preferences - the faculty's incoming preference queue.
	GetPendingForFaculty(ctx context.Context, facultyID string) ([]*Project, error)

	// Update persists the project's fields.
	// Returns ErrProjectNotFound if the project does not exist.
	Update(ctx context.Context, p *Project) error

	// Delete removes an orphaned project. Orphan cleanup is the only path
	// that destroys a project; normal lifecycle only terminates status.
	Delete(ctx context.Context, id string) error

	// ─────────────────────────────────────────────────────────────────────────
	// Allocation Records
	// ─────────────────────────────────────────────────────────────────────────

	// GetAllocationByProject returns the current (non-superseded) allocation
	// record for a project.
	GetAllocationByProject(ctx context.Context, projectID string) (*AllocationRecord, error)

	// CreateAllocationRecord persists a new allocation record.
	CreateAllocationRecord(ctx context.Context, rec *AllocationRecord) error

	// UpdateAllocationRecord persists a resolved or superseded record.
	UpdateAllocationRecord(ctx context.Context, rec *AllocationRecord) error

	// ─────────────────────────────────────────────────────────────────────────
	// Atomic Workflow Operations
	// ─────────────────────────────────────────────────────────────────────────

	// ClaimFaculty atomically assigns the faculty to the project if and only
	// if no faculty is allocated yet (compare-and-set). The allocation
	// record is resolved in the same transaction and the faculty reference
	// is propagated to the owning group, if any.
	//
	// Returns ErrAlreadyAllocated when the claim lost the race; the caller
	// must re-fetch current state, the core never retries.
	ClaimFaculty(ctx context.Context, projectID, facultyID string, at time.Time) (*Project, error)
}
