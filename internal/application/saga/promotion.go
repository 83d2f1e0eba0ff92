// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
// Sagas ensure consistency across operations and handle compensation on failures.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
	"github.com/iiitp-spms/spms-workflow/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION SAGA
// Batch migration of a semester cohort across a semester boundary.
// Flow: Validate → Load Cohort → Check Prerequisites (all-or-nothing per
// student) → Apply Side Effects (best-effort per unit, re-runnable) →
// Promote → Group Pass (lock / disband / recompute) → Publish Summary
//
// Prerequisite checks are all-or-nothing: one unmet prerequisite makes the
// student ineligible and nothing is applied for them. Side effects are
// best-effort per unit: every write is an absolute set, so re-running the
// saga after a partial failure converges instead of double-applying.
// ══════════════════════════════════════════════════════════════════════════════

// TransitionRule describes the policy for one semester boundary.
type TransitionRule struct {
	// RequireFinalizedGroup demands an active membership in a finalized
	// (or already carried-forward) group for the from-semester.
	RequireFinalizedGroup bool

	// RequireTrackSelection demands a finalized track selection for the
	// from-semester; internship tracks additionally need a passing
	// verification.
	RequireTrackSelection bool

	// CarryForward keeps the from-semester group as the working unit for
	// the new semester: members get a parallel membership for the new
	// semester and the group is locked as a historical artifact.
	CarryForward bool

	// CarryTrack copies the from-semester track selection into the new
	// semester when none exists yet.
	CarryTrack bool
}

// DefaultTransitionRules is the institutional policy per from-semester.
// Boundaries not listed have no prerequisites.
func DefaultTransitionRules() map[shared.Semester]TransitionRule {
	return map[shared.Semester]TransitionRule{
		5: {RequireFinalizedGroup: true, CarryForward: true},
		6: {RequireFinalizedGroup: true},
		7: {RequireTrackSelection: true, CarryTrack: true},
	}
}

// PromotionInput contains all data required to run a promotion batch.
type PromotionInput struct {
	// FromSemester is the cohort's current semester.
	FromSemester shared.Semester

	// AcademicYear restricts the cohort, empty for all cohorts.
	AcademicYear shared.AcademicYear

	// StudentIDs, when non-empty, restricts the batch to an explicit list
	// (re-running a failed subset).
	StudentIDs []string

	// Degree, when set, restricts the cohort to one programme.
	Degree shared.Degree

	// RequesterID is the acting admin.
	RequesterID string

	// RequesterRole must be admin.
	RequesterRole shared.RequesterRole

	// DryRun evaluates eligibility without applying anything.
	DryRun bool

	// ValidatePrerequisites makes the batch all-or-nothing: prerequisites
	// are checked for the whole cohort up front, and if any student fails
	// the run commits nothing, reporting the eligible/ineligible split.
	ValidatePrerequisites bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate checks if the input is valid for a promotion run.
func (i PromotionInput) Validate() error {
	if !i.FromSemester.IsValid() {
		return fmt.Errorf("promotion: invalid from semester: %d", int(i.FromSemester))
	}
	if i.FromSemester.IsFinal() {
		return errors.New("promotion: final semester students graduate, not promote")
	}
	if i.RequesterID == "" {
		return errors.New("promotion: requester_id is required")
	}
	return nil
}

// IneligibleStudent is one student excluded by a prerequisite check.
type IneligibleStudent struct {
	StudentID string
	Reason    string
}

// FailedStudent is one student whose migration hit a persistence error.
// Their units may be partially applied; a re-run converges.
type FailedStudent struct {
	StudentID string
	Err       error
}

// PromotionResult contains the outcome of a promotion batch.
type PromotionResult struct {
	// BatchID identifies this run.
	BatchID string

	// FromSemester and ToSemester are the boundary crossed.
	FromSemester shared.Semester
	ToSemester   shared.Semester

	// Promoted are the students migrated successfully.
	Promoted []string

	// Eligible lists the students that passed prerequisite checks on a
	// validated run that aborted without committing anything.
	Eligible []string

	// Ineligible are the students excluded with reasons.
	Ineligible []IneligibleStudent

	// Failed are the students whose migration errored mid-way.
	Failed []FailedStudent

	// LockedGroups and DisbandedGroups summarize the group pass.
	LockedGroups    []string
	DisbandedGroups []string

	// DryRun reports whether anything was applied.
	DryRun bool

	// CompletedAt is when the batch finished.
	CompletedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA
// ══════════════════════════════════════════════════════════════════════════════

// PromotionSaga orchestrates a semester promotion batch.
type PromotionSaga struct {
	studentRepo    student.Repository
	trackRepo      student.TrackSelectionRepository
	groupRepo      group.Repository
	projectRepo    project.Repository
	eventPublisher shared.EventPublisher
	ids            IDGenerator
	log            *logger.Logger
	retrier        *retry.Retrier

	rules map[shared.Semester]TransitionRule
}

// IDGenerator produces identifiers for new records created by sagas.
type IDGenerator interface {
	NewID() string
}

// NewPromotionSaga creates a new PromotionSaga with the default policy table.
func NewPromotionSaga(
	studentRepo student.Repository,
	trackRepo student.TrackSelectionRepository,
	groupRepo group.Repository,
	projectRepo project.Repository,
	eventPublisher shared.EventPublisher,
	ids IDGenerator,
	log *logger.Logger,
) *PromotionSaga {
	return &PromotionSaga{
		studentRepo:    studentRepo,
		trackRepo:      trackRepo,
		groupRepo:      groupRepo,
		projectRepo:    projectRepo,
		eventPublisher: eventPublisher,
		ids:            ids,
		log:            log.With(logger.Component("promotion_saga")),
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithRetryIf(func(err error) bool {
				// Conflicts and validation failures are terminal for the
				// attempt; only infrastructure hiccups are retried.
				return !shared.IsConflict(err) && !shared.IsValidation(err)
			}),
		),
		rules: DefaultTransitionRules(),
	}
}

// WithRules overrides the policy table (tests, non-default institutions).
func (s *PromotionSaga) WithRules(rules map[shared.Semester]TransitionRule) *PromotionSaga {
	s.rules = rules
	return s
}

// Execute runs the promotion batch.
func (s *PromotionSaga) Execute(ctx context.Context, input PromotionInput) (*PromotionResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if !input.RequesterRole.IsAdmin() {
		return nil, shared.NewDomainError("promotion", "Execute", shared.ErrForbidden,
			"only admins may run promotions")
	}

	to := input.FromSemester.Next()
	rule := s.rules[input.FromSemester]

	result := &PromotionResult{
		BatchID:      s.ids.NewID(),
		FromSemester: input.FromSemester,
		ToSemester:   to,
		DryRun:       input.DryRun,
	}

	cohort, err := s.studentRepo.GetCohort(ctx, student.CohortFilter{
		Semester:     input.FromSemester,
		StudentIDs:   input.StudentIDs,
		Degree:       input.Degree,
		AcademicYear: input.AcademicYear,
	})
	if err != nil {
		return nil, fmt.Errorf("promotion: failed to load cohort: %w", err)
	}

	s.log.Info("promotion batch started",
		logger.String("batch_id", result.BatchID),
		logger.Semester(int(input.FromSemester)),
		logger.Int("cohort_size", len(cohort)),
		logger.Bool("dry_run", input.DryRun),
	)

	carriedGroups := make(map[string]struct{})
	promoted := make(map[string]struct{})

	// First pass: partition the cohort by prerequisites before anything
	// is applied.
	eligible := make([]*student.Student, 0, len(cohort))
	for _, st := range cohort {
		if reason, ok := s.checkPrerequisites(ctx, st, rule); !ok {
			result.Ineligible = append(result.Ineligible, IneligibleStudent{StudentID: st.ID, Reason: reason})
			continue
		}
		eligible = append(eligible, st)
	}

	// A validated batch is all-or-nothing: one ineligible student aborts
	// the run with nothing committed.
	if input.ValidatePrerequisites && len(result.Ineligible) > 0 {
		for _, st := range eligible {
			result.Eligible = append(result.Eligible, st.ID)
		}
		result.CompletedAt = time.Now().UTC()
		s.log.Warn("validated promotion batch aborted, nothing applied",
			logger.String("batch_id", result.BatchID),
			logger.Int("eligible", len(result.Eligible)),
			logger.Int("ineligible", len(result.Ineligible)),
		)
		return result, nil
	}

	for _, st := range eligible {
		if input.DryRun {
			result.Promoted = append(result.Promoted, st.ID)
			continue
		}
		if err := s.promoteStudent(ctx, st, to, rule, carriedGroups); err != nil {
			s.log.Error("student promotion failed",
				logger.StudentID(st.ID), logger.Err(err))
			result.Failed = append(result.Failed, FailedStudent{StudentID: st.ID, Err: err})
			continue
		}
		promoted[st.ID] = struct{}{}
		result.Promoted = append(result.Promoted, st.ID)

		event := shared.NewStudentPromotedEvent(st.ID, int(input.FromSemester), int(to))
		if input.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(input.CorrelationID)
		}
		_ = s.eventPublisher.Publish(event)
	}

	if !input.DryRun {
		s.groupPass(ctx, input, rule, promoted, carriedGroups, result)
	}

	result.CompletedAt = time.Now().UTC()

	summary := shared.NewPromotionCompletedEvent(
		result.BatchID, int(input.FromSemester), int(to),
		len(result.Promoted), len(result.Ineligible), len(result.Failed),
	)
	if input.CorrelationID != "" {
		summary.BaseEvent = summary.BaseEvent.WithCorrelationID(input.CorrelationID)
	}
	_ = s.eventPublisher.Publish(summary)

	s.log.Info("promotion batch completed",
		logger.String("batch_id", result.BatchID),
		logger.Int("promoted", len(result.Promoted)),
		logger.Int("ineligible", len(result.Ineligible)),
		logger.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Prerequisites (all-or-nothing per student)
// ─────────────────────────────────────────────────────────────────────────────

// checkPrerequisites validates every prerequisite before anything is applied
// for the student. The returned reason is surfaced in the batch result.
func (s *PromotionSaga) checkPrerequisites(ctx context.Context, st *student.Student, rule TransitionRule) (string, bool) {
	if !st.Status.IsEnrolled() {
		return "student is not enrolled", false
	}

	if rule.RequireFinalizedGroup {
		membership := st.ActiveMembership(st.Semester)
		if membership == nil {
			return "no active group membership", false
		}
		g, err := s.groupRepo.GetByID(ctx, membership.GroupID)
		if err != nil {
			return "group membership references a missing group", false
		}
		// A locked group already crossed this boundary on a previous run.
		if g.Status != group.StatusFinalized && g.Status != group.StatusLocked {
			return fmt.Sprintf("group %s is %s, not finalized", g.ID, g.Status), false
		}
		if g.AllocatedFacultyID == "" {
			return fmt.Sprintf("group %s has no allocated faculty", g.ID), false
		}
		if g.ProjectID == "" {
			return fmt.Sprintf("group %s has no registered project", g.ID), false
		}
		if _, err := s.projectRepo.GetByID(ctx, g.ProjectID); err != nil {
			return fmt.Sprintf("group %s project %s is missing", g.ID, g.ProjectID), false
		}
	}

	if rule.RequireTrackSelection {
		sel, err := s.trackRepo.Get(ctx, st.ID, st.Semester)
		if err != nil {
			return "no track selection for the semester", false
		}
		if !sel.Finalized {
			return "track selection is not finalized", false
		}
		if sel.Track == shared.TrackInternship && !sel.PassedInternshipVerification() {
			return "internship verification has not passed", false
		}
	}

	return "", true
}

// ─────────────────────────────────────────────────────────────────────────────
// Per-student migration (best-effort per unit, re-runnable)
// ─────────────────────────────────────────────────────────────────────────────

func (s *PromotionSaga) promoteStudent(
	ctx context.Context,
	st *student.Student,
	to shared.Semester,
	rule TransitionRule,
	carriedGroups map[string]struct{},
) error {
	from := st.Semester
	now := time.Now().UTC()

	// Complete the semester's projects. Complete is an absolute set and
	// no-ops on terminal projects, so repeats are harmless.
	for _, ref := range st.ProjectsForSemester(from) {
		p, err := s.projectRepo.GetByID(ctx, ref.ProjectID)
		if err != nil {
			s.log.Warn("project reference is dangling",
				logger.StudentID(st.ID), logger.ProjectID(ref.ProjectID))
			continue
		}
		p.Complete()
		if err := s.update(ctx, func(ctx context.Context) error {
			return s.projectRepo.Update(ctx, p)
		}); err != nil {
			return fmt.Errorf("complete project %s: %w", p.ID, err)
		}
		st.SetProjectStatus(p.ID, string(p.Status))
	}

	membership := st.ActiveMembership(from)

	if rule.CarryForward && membership != nil {
		// The group continues as the working unit for the new semester:
		// open a parallel membership; the from-semester one stays as the
		// locked group's frozen roster.
		if !st.HasActiveMembership(to) {
			if err := st.JoinGroup(membership.GroupID, to, membership.Role, now); err != nil {
				return fmt.Errorf("carry membership forward: %w", err)
			}
		}
		carriedGroups[membership.GroupID] = struct{}{}
	} else if membership != nil {
		st.DeactivateMemberships(from)
	}

	if rule.CarryTrack {
		if err := s.carryTrack(ctx, st, from, to); err != nil {
			// Best effort: a missing carried selection does not block the
			// promotion, the student can select again.
			s.log.Warn("failed to carry track selection",
				logger.StudentID(st.ID), logger.Err(err))
		}
	}

	if err := st.PromoteTo(to); err != nil {
		return err
	}
	if err := s.update(ctx, func(ctx context.Context) error {
		return s.studentRepo.Update(ctx, st)
	}); err != nil {
		return fmt.Errorf("persist student: %w", err)
	}
	return nil
}

// carryTrack copies the from-semester track selection into the new semester
// when the student has none there yet.
func (s *PromotionSaga) carryTrack(ctx context.Context, st *student.Student, from, to shared.Semester) error {
	prev, err := s.trackRepo.Get(ctx, st.ID, from)
	if err != nil {
		return err
	}
	if _, err := s.trackRepo.Get(ctx, st.ID, to); err == nil {
		return nil
	}
	next, err := student.NewTrackSelection(s.ids.NewID(), st.ID, to, prev.Track)
	if err != nil {
		return err
	}
	next.FinalizeSelection()
	if err := s.trackRepo.Create(ctx, next); err != nil && !errors.Is(err, student.ErrTrackSelectionExists) {
		return err
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Group pass
// ─────────────────────────────────────────────────────────────────────────────

// groupPass settles the from-semester groups after the cohort moved:
// carried groups are locked as historical artifacts, fully-departed groups
// are disbanded, and partially-departed pre-finalized groups downgrade to
// match their remaining roster.
func (s *PromotionSaga) groupPass(
	ctx context.Context,
	input PromotionInput,
	rule TransitionRule,
	promoted map[string]struct{},
	carriedGroups map[string]struct{},
	result *PromotionResult,
) {
	groups, err := s.groupRepo.GetBySemester(ctx, int(input.FromSemester), string(input.AcademicYear))
	if err != nil {
		s.log.Error("group pass skipped", logger.Err(err))
		return
	}

	for _, g := range groups {
		if g.Status.IsTerminal() {
			continue
		}

		if _, carried := carriedGroups[g.ID]; carried {
			if err := g.Lock(); err != nil {
				s.log.Warn("failed to lock carried group", logger.GroupID(g.ID), logger.Err(err))
				continue
			}
			if err := s.update(ctx, func(ctx context.Context) error {
				return s.groupRepo.Update(ctx, g)
			}); err != nil {
				s.log.Error("failed to persist locked group", logger.GroupID(g.ID), logger.Err(err))
				continue
			}
			result.LockedGroups = append(result.LockedGroups, g.ID)
			_ = s.eventPublisher.Publish(shared.NewGroupStatusChangedEvent(
				shared.EventGroupLocked, g.ID, int(g.Semester), string(g.Status),
				g.ActiveMemberCount(), input.RequesterID,
			))
			continue
		}

		departed := 0
		for _, m := range g.Members {
			if !m.Active {
				continue
			}
			if _, ok := promoted[m.StudentID]; ok {
				g.DeactivateMember(m.StudentID)
				departed++
			}
		}
		if departed == 0 {
			continue
		}

		if g.ActiveMemberCount() == 0 {
			g.DisbandAfterPromotion()
			result.DisbandedGroups = append(result.DisbandedGroups, g.ID)
		} else {
			g.RecomputeAfterDepartures()
		}
		if err := s.update(ctx, func(ctx context.Context) error {
			return s.groupRepo.Update(ctx, g)
		}); err != nil {
			s.log.Error("failed to persist group after departures", logger.GroupID(g.ID), logger.Err(err))
			continue
		}
		if g.Status == group.StatusDisbanded {
			_ = s.eventPublisher.Publish(shared.NewGroupStatusChangedEvent(
				shared.EventGroupDisbanded, g.ID, int(g.Semester), string(g.Status),
				0, input.RequesterID,
			))
		}
	}
}

// update runs a persistence write through the retry policy.
func (s *PromotionSaga) update(ctx context.Context, op func(ctx context.Context) error) error {
	return s.retrier.Do(ctx, op)
}
