package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/application/command"
	"github.com/iiitp-spms/spms-workflow/internal/application/query"
	"github.com/iiitp-spms/spms-workflow/internal/application/saga"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if s.deps.Readiness != nil {
		if err := s.deps.Readiness(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Readiness != nil {
		if err := s.deps.Readiness(r.Context()); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", "backing store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DECODING
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON decodes the request body into dst, reporting a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

// requireRequester extracts the forwarded identity, reporting a 401 when the
// gateway sent none.
func requireRequester(w http.ResponseWriter, r *http.Request) (string, shared.RequesterRole, bool) {
	id, role := requester(r)
	if id == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing_requester", "the "+headerRequesterID+" header is required")
		return "", "", false
	}
	return id, role, true
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS & TRACK SELECTION
// ══════════════════════════════════════════════════════════════════════════════

type syncStudentRequest struct {
	StudentID    string `json:"student_id"`
	FullName     string `json:"full_name"`
	RollNumber   string `json:"roll_number"`
	Branch       string `json:"branch"`
	Degree       string `json:"degree"`
	Semester     int    `json:"semester"`
	AcademicYear string `json:"academic_year"`
}

// handleSyncStudent mirrors one institutional roster record. Only the roster
// integration (acting as admin) may call it.
func (s *Server) handleSyncStudent(w http.ResponseWriter, r *http.Request) {
	_, role, ok := requireRequester(w, r)
	if !ok {
		return
	}
	if !role.IsAdmin() {
		writeJSONError(w, http.StatusForbidden, "forbidden", "roster sync requires admin authority")
		return
	}

	var req syncStudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd := command.SyncStudentCommand{
		StudentID:     req.StudentID,
		FullName:      req.FullName,
		RollNumber:    req.RollNumber,
		Branch:        req.Branch,
		Degree:        shared.Degree(req.Degree),
		Semester:      shared.Semester(req.Semester),
		AcademicYear:  shared.AcademicYear(req.AcademicYear),
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.SyncStudent.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student_id": result.StudentID,
		"is_new":     result.IsNew,
		"synced_at":  result.SyncedAt,
	})
}

type selectTrackRequest struct {
	Semester int    `json:"semester"`
	Track    string `json:"track"`
}

func (s *Server) handleSelectTrack(w http.ResponseWriter, r *http.Request) {
	requesterID, role, ok := requireRequester(w, r)
	if !ok {
		return
	}

	studentID := r.PathValue("id")
	if studentID != requesterID && !role.IsAdmin() {
		writeJSONError(w, http.StatusForbidden, "forbidden", "students select their own track")
		return
	}

	var req selectTrackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd := command.SelectTrackCommand{
		StudentID:     studentID,
		Semester:      shared.Semester(req.Semester),
		Track:         shared.Track(req.Track),
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.SelectTrack.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"selection_id": result.SelectionID,
		"track":        string(result.Track),
		"selected_at":  result.SelectedAt,
	})
}

type recordVerificationRequest struct {
	Semester int    `json:"semester"`
	Outcome  string `json:"outcome"`
}

func (s *Server) handleRecordVerification(w http.ResponseWriter, r *http.Request) {
	_, role, ok := requireRequester(w, r)
	if !ok {
		return
	}

	var req recordVerificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd := command.RecordVerificationCommand{
		StudentID:     r.PathValue("id"),
		Semester:      shared.Semester(req.Semester),
		Outcome:       student.VerificationOutcome(req.Outcome),
		RequesterRole: role,
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	sel, err := s.deps.RecordVerification.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student_id": sel.StudentID,
		"semester":   int(sel.Semester),
		"outcome":    string(sel.Verification),
	})
}

func (s *Server) handleInvitationInbox(w http.ResponseWriter, r *http.Request) {
	requesterID, role, ok := requireRequester(w, r)
	if !ok {
		return
	}

	studentID := r.PathValue("id")
	if studentID != requesterID && !role.IsAdmin() {
		writeJSONError(w, http.StatusForbidden, "forbidden", "students read their own inbox")
		return
	}

	q := query.InvitationInboxQuery{
		StudentID:   studentID,
		PendingOnly: getQueryParamBool(r, "pending_only"),
	}
	if err := q.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	inbox, err := s.deps.InvitationInbox.Handle(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inbox)
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUPS & INVITATIONS
// ══════════════════════════════════════════════════════════════════════════════

type createGroupRequest struct {
	Name         string `json:"name"`
	Semester     int    `json:"semester"`
	AcademicYear string `json:"academic_year"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	requesterID, _, ok := requireRequester(w, r)
	if !ok {
		return
	}

	var req createGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd := command.CreateGroupCommand{
		LeaderID:      requesterID,
		Name:          req.Name,
		Semester:      shared.Semester(req.Semester),
		AcademicYear:  shared.AcademicYear(req.AcademicYear),
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.CreateGroup.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"group_id":    result.GroupID,
		"status":      string(result.Status),
		"min_members": result.MinMembers,
		"max_members": result.MaxMembers,
		"created_at":  result.CreatedAt,
	})
}

func (s *Server) handleGroupRoster(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := requireRequester(w, r); !ok {
		return
	}

	q := query.GroupRosterQuery{
		GroupID:         r.PathValue("id"),
		IncludeInactive: getQueryParamBool(r, "include_inactive"),
	}
	if err := q.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	roster, err := s.deps.GroupRoster.Handle(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, roster)
}

type sendInvitationsRequest struct {
	StudentIDs []string `json:"student_ids"`
}

func (s *Server) handleSendInvitations(w http.ResponseWriter, r *http.Request) {
	requesterID, _, ok := requireRequester(w, r)
	if !ok {
		return
	}

	var req sendInvitationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd := command.SendInvitationsCommand{
		GroupID:       r.PathValue("id"),
		RequesterID:   requesterID,
		StudentIDs:    req.StudentIDs,
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.SendInvitations.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"invitation_ids": result.InvitationIDs,
		"group_status":   string(result.GroupStatus),
	})
}

type respondInvitationRequest struct {
	Accept bool `json:"accept"`
}

func (s *Server) handleRespondInvitation(w http.ResponseWriter, r *http.Request) {
	requesterID, _, ok := requireRequester(w, r)
	if !ok {
		return
	}

	var req respondInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd := command.RespondInvitationCommand{
		GroupID:       r.PathValue("id"),
		StudentID:     requesterID,
		Accept:        req.Accept,
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.RespondInvitation.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invitation_id":       result.InvitationID,
		"status":              string(result.Status),
		"group_status":        string(result.GroupStatus),
		"auto_rejected_count": result.AutoRejectedCount,
	})
}

func (s *Server) handleCloseRecruitment(w http.ResponseWriter, r *http.Request) {
	requesterID, _, ok := requireRequester(w, r)
	if !ok {
		return
	}

	cmd := command.CloseRecruitmentCommand{
		GroupID:       r.PathValue("id"),
		RequesterID:   requesterID,
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.CloseRecruitment.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group_id":     result.GroupID,
		"status":       string(result.Status),
		"member_count": result.MemberCount,
	})
}

func (s *Server) handleFinalizeGroup(w http.ResponseWriter, r *http.Request) {
	requesterID, _, ok := requireRequester(w, r)
	if !ok {
		return
	}

	cmd := command.FinalizeGroupCommand{
		GroupID:       r.PathValue("id"),
		RequesterID:   requesterID,
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.FinalizeGroup.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group_id":            result.GroupID,
		"member_count":        result.MemberCount,
		"auto_rejected_count": result.AutoRejectedCount,
		"finalized_at":        result.FinalizedAt,
	})
}

func (s *Server) handleDisbandGroup(w http.ResponseWriter, r *http.Request) {
	requesterID, role, ok := requireRequester(w, r)
	if !ok {
		return
	}

	cmd := command.DisbandGroupCommand{
		GroupID:       r.PathValue("id"),
		RequesterID:   requesterID,
		RequesterRole: role,
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.DisbandGroup.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group_id":         result.GroupID,
		"released_members": result.ReleasedMembers,
		"disbanded_at":     result.DisbandedAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROJECTS & ALLOCATION
// ══════════════════════════════════════════════════════════════════════════════

type registerProjectRequest struct {
	GroupID      string   `json:"group_id,omitempty"`
	Title        string   `json:"title"`
	Semester     int      `json:"semester"`
	AcademicYear string   `json:"academic_year"`
	Track        string   `json:"track,omitempty"`
	FacultyIDs   []string `json:"faculty_ids"`
}

func (s *Server) handleRegisterProject(w http.ResponseWriter, r *http.Request) {
	requesterID, _, ok := requireRequester(w, r)
	if !ok {
		return
	}

	var req registerProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd := command.RegisterProjectCommand{
		RequesterID:   requesterID,
		GroupID:       req.GroupID,
		Title:         req.Title,
		Semester:      shared.Semester(req.Semester),
		AcademicYear:  shared.AcademicYear(req.AcademicYear),
		Track:         shared.Track(req.Track),
		FacultyIDs:    req.FacultyIDs,
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.RegisterProject.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"project_id":           result.ProjectID,
		"allocation_record_id": result.AllocationRecordID,
	})
}

// handleClaimProject records a faculty claim. The claiming faculty is the
// requester; the preference-list check stays in the domain.
func (s *Server) handleClaimProject(w http.ResponseWriter, r *http.Request) {
	requesterID, _, ok := requireRequester(w, r)
	if !ok {
		return
	}

	cmd := command.ClaimProjectCommand{
		ProjectID:     r.PathValue("id"),
		FacultyID:     requesterID,
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.ClaimProject.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project_id": result.ProjectID,
		"group_id":   result.GroupID,
		"status":     string(result.Status),
		"claimed_at": result.ClaimedAt,
	})
}

type allocateFacultyRequest struct {
	FacultyID string `json:"faculty_id"`
}

func (s *Server) handleAllocateFaculty(w http.ResponseWriter, r *http.Request) {
	requesterID, role, ok := requireRequester(w, r)
	if !ok {
		return
	}

	var req allocateFacultyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd := command.AllocateFacultyCommand{
		ProjectID:     r.PathValue("id"),
		FacultyID:     req.FacultyID,
		RequesterID:   requesterID,
		RequesterRole: role,
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.AllocateFaculty.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project_id":           result.ProjectID,
		"allocation_record_id": result.AllocationRecordID,
		"reallocated":          result.Reallocated,
		"superseded_record_id": result.SupersededRecordID,
	})
}

func (s *Server) handleFacultyQueue(w http.ResponseWriter, r *http.Request) {
	requesterID, role, ok := requireRequester(w, r)
	if !ok {
		return
	}

	facultyID := r.PathValue("id")
	if facultyID != requesterID && !role.IsAdmin() {
		writeJSONError(w, http.StatusForbidden, "forbidden", "faculty read their own queue")
		return
	}

	q := query.FacultyQueueQuery{FacultyID: facultyID}
	if err := q.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	queue, err := s.deps.FacultyQueue.Handle(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queue)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION
// ══════════════════════════════════════════════════════════════════════════════

type runPromotionRequest struct {
	FromSemester          int      `json:"from_semester"`
	AcademicYear          string   `json:"academic_year,omitempty"`
	StudentIDs            []string `json:"student_ids,omitempty"`
	Degree                string   `json:"degree,omitempty"`
	DryRun                bool     `json:"dry_run,omitempty"`
	ValidatePrerequisites bool     `json:"validate_prerequisites,omitempty"`
}

type promotionIneligibleDTO struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

type promotionFailedDTO struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

type promotionResultDTO struct {
	BatchID         string                   `json:"batch_id"`
	FromSemester    int                      `json:"from_semester"`
	ToSemester      int                      `json:"to_semester"`
	Promoted        []string                 `json:"promoted"`
	Eligible        []string                 `json:"eligible,omitempty"`
	Ineligible      []promotionIneligibleDTO `json:"ineligible,omitempty"`
	Failed          []promotionFailedDTO     `json:"failed,omitempty"`
	LockedGroups    []string                 `json:"locked_groups,omitempty"`
	DisbandedGroups []string                 `json:"disbanded_groups,omitempty"`
	DryRun          bool                     `json:"dry_run"`
	CompletedAt     time.Time                `json:"completed_at"`
}

func (s *Server) handleRunPromotion(w http.ResponseWriter, r *http.Request) {
	requesterID, role, ok := requireRequester(w, r)
	if !ok {
		return
	}

	var req runPromotionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input := saga.PromotionInput{
		FromSemester:          shared.Semester(req.FromSemester),
		AcademicYear:          shared.AcademicYear(req.AcademicYear),
		StudentIDs:            req.StudentIDs,
		Degree:                shared.Degree(req.Degree),
		RequesterID:           requesterID,
		RequesterRole:         role,
		DryRun:                req.DryRun,
		ValidatePrerequisites: req.ValidatePrerequisites,
		CorrelationID:         getRequestID(r.Context()),
	}
	if err := input.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.Promotion.Execute(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := promotionResultDTO{
		BatchID:         result.BatchID,
		FromSemester:    int(result.FromSemester),
		ToSemester:      int(result.ToSemester),
		Promoted:        result.Promoted,
		Eligible:        result.Eligible,
		LockedGroups:    result.LockedGroups,
		DisbandedGroups: result.DisbandedGroups,
		DryRun:          result.DryRun,
		CompletedAt:     result.CompletedAt,
	}
	for _, in := range result.Ineligible {
		dto.Ineligible = append(dto.Ineligible, promotionIneligibleDTO{StudentID: in.StudentID, Reason: in.Reason})
	}
	for _, f := range result.Failed {
		dto.Failed = append(dto.Failed, promotionFailedDTO{StudentID: f.StudentID, Error: f.Err.Error()})
	}

	writeJSON(w, http.StatusOK, dto)
}
