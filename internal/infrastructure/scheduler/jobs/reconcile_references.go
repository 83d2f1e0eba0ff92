// Package jobs contains implementations of scheduled jobs for the student
// project management workflow. Jobs are re-runnable: each sweep converges on
// a consistent state and running it twice changes nothing the second time.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/infrastructure/persistence/postgres"
	rediscache "github.com/iiitp-spms/spms-workflow/internal/infrastructure/persistence/redis"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE REFERENCES JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileReferencesJob repairs cross-aggregate references that drifted out
// of sync: student project references whose project was deleted or cancelled,
// group rows still pointing at a terminal project, and group-owned projects
// whose group has been disbanded. Repairs are logged and summarized on the
// event bus so operators can see the drift rate.
type ReconcileReferencesJob struct {
	conn      *postgres.Connection
	publisher shared.EventPublisher
	lock      *rediscache.JobLock
	log       *logger.Logger
	timeout   time.Duration
}

// ReconcileReferencesConfig contains configuration for the job.
type ReconcileReferencesConfig struct {
	// Timeout bounds one full sweep.
	Timeout time.Duration
}

// NewReconcileReferencesJob creates the job. The lock is optional; pass nil
// when only one worker runs the schedule.
func NewReconcileReferencesJob(
	conn *postgres.Connection,
	publisher shared.EventPublisher,
	lock *rediscache.JobLock,
	log *logger.Logger,
	cfg ReconcileReferencesConfig,
) *ReconcileReferencesJob {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &ReconcileReferencesJob{
		conn:      conn,
		publisher: publisher,
		lock:      lock,
		log:       log.With(logger.Component("reconcile_references")),
		timeout:   cfg.Timeout,
	}
}

// Name implements scheduler.Job.
func (j *ReconcileReferencesJob) Name() string {
	return "reconcile_references"
}

// Description implements scheduler.Job.
func (j *ReconcileReferencesJob) Description() string {
	return "Repairs dangling references between students, groups and projects"
}

// Run implements scheduler.Job.
func (j *ReconcileReferencesJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if j.lock != nil {
		lease, ok, err := j.lock.Acquire(ctx, j.Name(), rediscache.TTLJobLock)
		if err != nil {
			return fmt.Errorf("acquire job lock: %w", err)
		}
		if !ok {
			j.log.Info("skipped, another worker holds the lock")
			return nil
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				j.log.Warn("release job lock failed", logger.Err(err))
			}
		}()
	}

	runID := uuid.NewString()
	start := time.Now()

	danglingRefs, err := j.sweepStudentProjectRefs(ctx)
	if err != nil {
		return fmt.Errorf("sweep student project refs: %w", err)
	}

	danglingGroups, err := j.sweepGroupProjectLinks(ctx)
	if err != nil {
		return fmt.Errorf("sweep group project links: %w", err)
	}

	orphanedProjects, err := j.sweepOrphanedProjects(ctx)
	if err != nil {
		return fmt.Errorf("sweep orphaned projects: %w", err)
	}

	j.log.Info("reconciliation complete",
		logger.String("run_id", runID),
		logger.Int("dangling_project_refs", danglingRefs),
		logger.Int("dangling_group_refs", danglingGroups),
		logger.Int("orphaned_projects", orphanedProjects),
		logger.Duration("duration", time.Since(start)))

	event := shared.NewReferencesReconciledEvent(runID, danglingRefs, danglingGroups, orphanedProjects)
	if err := j.publisher.Publish(event); err != nil {
		j.log.Warn("publish reconciliation summary failed", logger.Err(err))
	}

	return nil
}

// sweepStudentProjectRefs deletes student project references whose project
// no longer exists or has been cancelled.
func (j *ReconcileReferencesJob) sweepStudentProjectRefs(ctx context.Context) (int, error) {
	const query = `
		DELETE FROM student_project_refs r
		WHERE NOT EXISTS (
			SELECT 1 FROM projects p
			WHERE p.id = r.project_id AND p.status != 'cancelled'
		)`

	tag, err := j.conn.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// sweepGroupProjectLinks clears project links on groups whose project was
// deleted or cancelled.
func (j *ReconcileReferencesJob) sweepGroupProjectLinks(ctx context.Context) (int, error) {
	const query = `
		UPDATE groups g
		SET project_id = NULL, allocated_faculty_id = NULL, updated_at = NOW()
		WHERE g.project_id IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM projects p
			WHERE p.id = g.project_id AND p.status != 'cancelled'
		  )`

	tag, err := j.conn.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// sweepOrphanedProjects cancels live group-owned projects whose group has
// been disbanded. Completed and cancelled projects are left untouched as
// historical record.
func (j *ReconcileReferencesJob) sweepOrphanedProjects(ctx context.Context) (int, error) {
	const query = `
		UPDATE projects p
		SET status = 'cancelled', updated_at = NOW()
		WHERE p.group_id IS NOT NULL
		  AND p.status NOT IN ('completed', 'cancelled')
		  AND EXISTS (
			SELECT 1 FROM groups g
			WHERE g.id = p.group_id AND g.status = 'disbanded'
		  )`

	tag, err := j.conn.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
