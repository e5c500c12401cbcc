package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-identity-api/internal/dto"
	"github.com/noah-isme/sma-identity-api/internal/models"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
	"github.com/noah-isme/sma-identity-api/pkg/response"
)

type leaveService interface {
	CreateStudentLeave(ctx context.Context, req dto.CreateStudentLeaveRequest) (*models.StudentLeaveView, error)
	GetStudentLeave(ctx context.Context, id string, actor *models.JWTClaims) (*models.StudentLeaveView, error)
	ListStudentLeaves(ctx context.Context, filter models.LeaveFilter) (*dto.StudentLeaveList, error)
	SetGuardianApproval(ctx context.Context, requestID, guardianID string, req dto.LeaveDecisionRequest) (*models.StudentLeaveView, error)
	SetSupervisorApproval(ctx context.Context, requestID, actorID, actorTenantID string, req dto.LeaveDecisionRequest) (*models.StudentLeaveView, error)
	CreateTeacherLeave(ctx context.Context, req dto.CreateTeacherLeaveRequest) (*models.TeacherLeaveRequest, error)
	ListTeacherLeaves(ctx context.Context, filter models.LeaveFilter) (*dto.TeacherLeaveList, error)
	SetStatus(ctx context.Context, requestID, actorID, actorTenantID string, req dto.LeaveDecisionRequest) (*models.TeacherLeaveRequest, error)
}

// LeaveHandler exposes the student and teacher leave workflows.
type LeaveHandler struct {
	service leaveService
}

// NewLeaveHandler constructs the handler.
func NewLeaveHandler(service leaveService) *LeaveHandler {
	return &LeaveHandler{service: service}
}

func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func parseLeaveQuery(c *gin.Context) (dto.LeaveQuery, error) {
	q := dto.LeaveQuery{
		StudentID: c.Query("studentId"),
		TeacherID: c.Query("teacherId"),
		Status:    models.LeaveDecision(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "pageSize"),
	}
	switch q.Status {
	case "", models.LeavePending, models.LeaveApproved, models.LeaveRejected:
		return q, nil
	}
	return q, appErrors.Clone(appErrors.ErrValidation, "status must be PENDING, APPROVED or REJECTED")
}

// CreateStudentLeave godoc
// @Summary Submit a student leave request
// @Tags Leaves
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateStudentLeaveRequest true "Leave payload"
// @Success 201 {object} response.Envelope
// @Router /leaves/students [post]
func (h *LeaveHandler) CreateStudentLeave(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateStudentLeaveRequest
	if !bindJSON(c, &req) {
		return
	}
	req.StudentID = claims.StudentID

	view, err := h.service.CreateStudentLeave(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// GetStudentLeave godoc
// @Summary Get a student leave request
// @Tags Leaves
// @Produce json
// @Security BearerAuth
// @Param id path string true "Leave request ID"
// @Success 200 {object} response.Envelope
// @Router /leaves/students/{id} [get]
func (h *LeaveHandler) GetStudentLeave(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	view, err := h.service.GetStudentLeave(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// ListStudentLeaves godoc
// @Summary List student leave requests visible to the caller
// @Tags Leaves
// @Produce json
// @Security BearerAuth
// @Param status query string false "Effective status filter"
// @Param studentId query string false "Student filter for staff"
// @Param tenantId query string false "Tenant filter for platform owners"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /leaves/students [get]
func (h *LeaveHandler) ListStudentLeaves(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	q, err := parseLeaveQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := models.LeaveFilter{EffectiveStatus: q.Status, Page: q.Page, PageSize: q.PageSize}
	switch claims.Role {
	case models.RoleStudent:
		filter.StudentID = claims.StudentID
	case models.RoleParent:
		filter.ParentID = claims.ParentID
	case models.RoleSuperAdmin:
		filter.TenantID = c.Query("tenantId")
		filter.StudentID = q.StudentID
	default:
		filter.TenantID = claims.TenantID
		filter.StudentID = q.StudentID
	}

	list, err := h.service.ListStudentLeaves(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, list.Items, list.Pagination)
}

// GuardianDecision godoc
// @Summary Record the guardian decision on a student leave
// @Tags Leaves
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Leave request ID"
// @Param payload body dto.LeaveDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /leaves/students/{id}/guardian-approval [patch]
func (h *LeaveHandler) GuardianDecision(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.LeaveDecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.service.SetGuardianApproval(c.Request.Context(), c.Param("id"), claims.ParentID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// SupervisorDecision godoc
// @Summary Record the supervisor decision on a student leave
// @Tags Leaves
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Leave request ID"
// @Param payload body dto.LeaveDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /leaves/students/{id}/supervisor-approval [patch]
func (h *LeaveHandler) SupervisorDecision(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.LeaveDecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.service.SetSupervisorApproval(c.Request.Context(), c.Param("id"), claims.UserID, claims.TenantID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// CreateTeacherLeave godoc
// @Summary Submit a teacher leave request
// @Tags Leaves
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateTeacherLeaveRequest true "Leave payload"
// @Success 201 {object} response.Envelope
// @Router /leaves/teachers [post]
func (h *LeaveHandler) CreateTeacherLeave(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateTeacherLeaveRequest
	if !bindJSON(c, &req) {
		return
	}
	req.TeacherID = claims.TeacherID

	leave, err := h.service.CreateTeacherLeave(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, leave)
}

// ListTeacherLeaves godoc
// @Summary List teacher leave requests
// @Tags Leaves
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param teacherId query string false "Teacher filter for administrators"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /leaves/teachers [get]
func (h *LeaveHandler) ListTeacherLeaves(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	q, err := parseLeaveQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := models.LeaveFilter{EffectiveStatus: q.Status, Page: q.Page, PageSize: q.PageSize, TeacherID: q.TeacherID}
	switch claims.Role {
	case models.RoleTeacher:
		filter.TenantID = claims.TenantID
		filter.TeacherID = claims.TeacherID
	case models.RoleSuperAdmin:
		filter.TenantID = c.Query("tenantId")
	default:
		filter.TenantID = claims.TenantID
	}

	list, err := h.service.ListTeacherLeaves(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, list.Items, list.Pagination)
}

// SetTeacherLeaveStatus godoc
// @Summary Decide a teacher leave request
// @Description Overwrites the status; the last decision wins
// @Tags Leaves
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Leave request ID"
// @Param payload body dto.LeaveDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /leaves/teachers/{id}/status [patch]
func (h *LeaveHandler) SetTeacherLeaveStatus(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.LeaveDecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	leave, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.TenantID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, leave)
}
