package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-identity-api/internal/dto"
	"github.com/noah-isme/sma-identity-api/internal/models"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
	"github.com/noah-isme/sma-identity-api/pkg/middleware/requestid"
)

const (
	leaveTrackGuardian   = "guardian"
	leaveTrackSupervisor = "supervisor"
	leaveTrackTeacher    = "teacher"
)

type leaveStore interface {
	CreateStudentLeave(ctx context.Context, leave *models.StudentLeaveRequest) error
	FindStudentLeave(ctx context.Context, id string) (*models.StudentLeaveRequest, error)
	FindStudentLeaveGuardian(ctx context.Context, id string) (*string, error)
	SetGuardianApproval(ctx context.Context, id string, decision models.LeaveDecision, comments *string, at time.Time) error
	SetSupervisorApproval(ctx context.Context, id string, decision models.LeaveDecision, comments *string, at time.Time) error
	ListStudentLeaves(ctx context.Context, filter models.LeaveFilter) ([]models.StudentLeaveRequest, error)
	CreateTeacherLeave(ctx context.Context, leave *models.TeacherLeaveRequest) error
	FindTeacherLeave(ctx context.Context, id string) (*models.TeacherLeaveRequest, error)
	SetTeacherLeaveStatus(ctx context.Context, id string, status models.LeaveDecision, comments *string, at time.Time) error
	ListTeacherLeaves(ctx context.Context, filter models.LeaveFilter) ([]models.TeacherLeaveRequest, int, error)
}

type studentFinder interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
}

type teacherFinder interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Teacher, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// LeaveService runs the student and teacher leave workflows.
type LeaveService struct {
	repo      leaveStore
	students  studentFinder
	teachers  teacherFinder
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewLeaveService constructs a LeaveService.
func NewLeaveService(repo leaveStore, students studentFinder, teachers teacherFinder, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveService{
		repo:      repo,
		students:  students,
		teachers:  teachers,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateStudentLeave submits a leave for a student with both tracks pending.
func (s *LeaveService) CreateStudentLeave(ctx context.Context, req dto.CreateStudentLeaveRequest) (*models.StudentLeaveView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid leave payload")
	}
	if req.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	if req.ToDate.Before(req.FromDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "toDate must not be before fromDate")
	}
	student, err := s.students.FindByID(ctx, nil, req.StudentID)
	if err != nil {
		return nil, lookupError(err, "student not found")
	}

	leave := &models.StudentLeaveRequest{
		TenantID:  student.TenantID,
		StudentID: student.ID,
		FromDate:  req.FromDate,
		ToDate:    req.ToDate,
		Reason:    req.Reason,
		Comments:  req.Comments,
	}
	if err := s.repo.CreateStudentLeave(ctx, leave); err != nil {
		return nil, appErrors.Internal(err, "failed to create leave request")
	}
	view := models.NewStudentLeaveView(*leave)
	return &view, nil
}

// GetStudentLeave returns a student leave visible to actor.
func (s *LeaveService) GetStudentLeave(ctx context.Context, id string, actor *models.JWTClaims) (*models.StudentLeaveView, error) {
	leave, err := s.loadStudentLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, leave, actor); err != nil {
		return nil, err
	}
	view := models.NewStudentLeaveView(*leave)
	return &view, nil
}

// ListStudentLeaves returns a page of student leaves. The effective status
// filter applies to the derived status, so pagination happens after derivation.
func (s *LeaveService) ListStudentLeaves(ctx context.Context, filter models.LeaveFilter) (*dto.StudentLeaveList, error) {
	leaves, err := s.repo.ListStudentLeaves(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list leave requests")
	}
	views := make([]models.StudentLeaveView, 0, len(leaves))
	for _, leave := range leaves {
		view := models.NewStudentLeaveView(leave)
		if filter.EffectiveStatus != "" && view.EffectiveStatus != filter.EffectiveStatus {
			continue
		}
		views = append(views, view)
	}

	page, size := leavePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start > len(views) {
		start = len(views)
	}
	end := start + size
	if end > len(views) {
		end = len(views)
	}
	return &dto.StudentLeaveList{
		Items:      views[start:end],
		Pagination: models.Pagination{Page: page, PageSize: size, TotalCount: len(views)},
	}, nil
}

// SetGuardianApproval records the decision of the student's guardian. Only
// the guardian track is written; a second decision is rejected as a conflict.
func (s *LeaveService) SetGuardianApproval(ctx context.Context, requestID, guardianID string, req dto.LeaveDecisionRequest) (*models.StudentLeaveView, error) {
	if err := s.validateDecision(req); err != nil {
		return nil, err
	}
	owner, err := s.repo.FindStudentLeaveGuardian(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Internal(err, "failed to load leave request")
	}
	if owner == nil || *owner != guardianID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the student's guardian can decide this track")
	}

	if err := s.repo.SetGuardianApproval(ctx, requestID, req.Decision, req.Comments, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "guardian decision already recorded")
		}
		return nil, appErrors.Internal(err, "failed to record guardian decision")
	}
	leave, err := s.loadStudentLeave(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.recordDecision(ctx, leaveTrackGuardian, leave.TenantID, requestID, guardianID, req)
	view := models.NewStudentLeaveView(*leave)
	return &view, nil
}

// SetSupervisorApproval records the supervisor decision. Any supervisor of
// the request's tenant may decide; actorTenantID is empty for platform owners.
func (s *LeaveService) SetSupervisorApproval(ctx context.Context, requestID, actorID, actorTenantID string, req dto.LeaveDecisionRequest) (*models.StudentLeaveView, error) {
	if err := s.validateDecision(req); err != nil {
		return nil, err
	}
	leave, err := s.loadStudentLeave(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actorTenantID != "" && leave.TenantID != actorTenantID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
	}

	if err := s.repo.SetSupervisorApproval(ctx, requestID, req.Decision, req.Comments, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "supervisor decision already recorded")
		}
		return nil, appErrors.Internal(err, "failed to record supervisor decision")
	}
	s.recordDecision(ctx, leaveTrackSupervisor, leave.TenantID, requestID, actorID, req)

	if leave, err = s.loadStudentLeave(ctx, requestID); err != nil {
		return nil, err
	}
	view := models.NewStudentLeaveView(*leave)
	return &view, nil
}

// CreateTeacherLeave submits a teacher leave in pending status.
func (s *LeaveService) CreateTeacherLeave(ctx context.Context, req dto.CreateTeacherLeaveRequest) (*models.TeacherLeaveRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid leave payload")
	}
	if req.TeacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	if req.ToDate.Before(req.FromDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "toDate must not be before fromDate")
	}
	teacher, err := s.teachers.FindByID(ctx, nil, req.TeacherID)
	if err != nil {
		return nil, lookupError(err, "teacher not found")
	}

	leave := &models.TeacherLeaveRequest{
		TenantID:  teacher.TenantID,
		TeacherID: teacher.ID,
		FromDate:  req.FromDate,
		ToDate:    req.ToDate,
		Reason:    req.Reason,
	}
	if err := s.repo.CreateTeacherLeave(ctx, leave); err != nil {
		return nil, appErrors.Internal(err, "failed to create leave request")
	}
	return leave, nil
}

// ListTeacherLeaves returns a page of teacher leaves.
func (s *LeaveService) ListTeacherLeaves(ctx context.Context, filter models.LeaveFilter) (*dto.TeacherLeaveList, error) {
	page, size := leavePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, size
	leaves, total, err := s.repo.ListTeacherLeaves(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list leave requests")
	}
	return &dto.TeacherLeaveList{
		Items:      leaves,
		Pagination: models.Pagination{Page: page, PageSize: size, TotalCount: total},
	}, nil
}

// SetStatus overwrites the status of a teacher leave. Concurrent calls are
// last-writer-wins.
func (s *LeaveService) SetStatus(ctx context.Context, requestID, actorID, actorTenantID string, req dto.LeaveDecisionRequest) (*models.TeacherLeaveRequest, error) {
	if err := s.validateDecision(req); err != nil {
		return nil, err
	}
	leave, err := s.repo.FindTeacherLeave(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Internal(err, "failed to load leave request")
	}
	if actorTenantID != "" && leave.TenantID != actorTenantID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
	}

	at := s.now()
	if err := s.repo.SetTeacherLeaveStatus(ctx, requestID, req.Decision, req.Comments, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Internal(err, "failed to update leave status")
	}
	s.recordDecision(ctx, leaveTrackTeacher, leave.TenantID, requestID, actorID, req)

	leave.Status = req.Decision
	leave.Comments = req.Comments
	leave.UpdatedAt = at
	return leave, nil
}

func (s *LeaveService) validateDecision(req dto.LeaveDecisionRequest) error {
	if err := s.validator.Struct(req); err != nil || !req.Decision.Terminal() {
		return appErrors.Validation(err, "decision must be APPROVED or REJECTED")
	}
	return nil
}

func (s *LeaveService) loadStudentLeave(ctx context.Context, id string) (*models.StudentLeaveRequest, error) {
	leave, err := s.repo.FindStudentLeave(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Internal(err, "failed to load leave request")
	}
	return leave, nil
}

func (s *LeaveService) authorizeView(ctx context.Context, leave *models.StudentLeaveRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing identity")
	}
	switch actor.Role {
	case models.RoleSuperAdmin:
		return nil
	case models.RoleCollegeAdmin, models.RoleTeacher:
		if actor.TenantID == leave.TenantID {
			return nil
		}
	case models.RoleStudent:
		if actor.StudentID == leave.StudentID {
			return nil
		}
	case models.RoleParent:
		owner, err := s.repo.FindStudentLeaveGuardian(ctx, leave.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Internal(err, "failed to load leave request")
		}
		if owner != nil && *owner == actor.ParentID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "leave request belongs to another user")
}

func (s *LeaveService) recordDecision(ctx context.Context, track, tenantID, requestID, actorID string, req dto.LeaveDecisionRequest) {
	s.metrics.RecordLeaveDecision(track, req.Decision)
	s.logger.Info("leave decision recorded",
		zap.String("track", track),
		zap.String("request_id", requestID),
		zap.String("decision", string(req.Decision)),
	)
	if s.audit == nil {
		return
	}

	action := models.AuditActionLeaveStatus
	switch track {
	case leaveTrackGuardian:
		action = models.AuditActionLeaveGuardianVote
	case leaveTrackSupervisor:
		action = models.AuditActionLeaveSupervisorVote
	}
	payload, _ := json.Marshal(map[string]interface{}{"track": track, "decision": req.Decision, "actor": actorID})
	entry := &models.AuditLog{
		TenantID:   models.StringRef(tenantID),
		Action:     action,
		Resource:   "leave_requests",
		ResourceID: &requestID,
		RequestID:  requestid.FromContext(ctx),
		Details:    payload,
	}
	if track == leaveTrackGuardian {
		entry.ActorRole = string(models.RoleParent)
	} else {
		entry.ActorID = models.StringRef(actorID)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record leave audit log", zap.Error(err))
	}
}

func leavePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
