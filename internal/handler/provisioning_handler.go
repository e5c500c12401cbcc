package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-identity-api/internal/dto"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
	"github.com/noah-isme/sma-identity-api/pkg/response"
)

type provisioningService interface {
	ProvisionSubject(ctx context.Context, tenantID string, req dto.ProvisionSubjectRequest) (*dto.SubjectProvisioning, error)
	ProvisionGuardian(ctx context.Context, tenantID string, req dto.ProvisionGuardianRequest) (*dto.GuardianProvisioning, error)
	ProvisionSupervisor(ctx context.Context, tenantID string, req dto.ProvisionSupervisorRequest) (*dto.SupervisorProvisioning, error)
	ProvisionInstitutionAdmin(ctx context.Context, tenantID string, req dto.ProvisionAdminRequest) (*dto.AdminProvisioning, error)
	ProvisionOwnerAdmin(ctx context.Context, req dto.ProvisionAdminRequest) (*dto.AdminProvisioning, error)
	BulkProvisionSubjects(ctx context.Context, tenantID string, rows []dto.ProvisionSubjectRequest) (*dto.BulkProvisionResult, error)
}

// ProvisioningHandler exposes entity provisioning endpoints.
type ProvisioningHandler struct {
	service provisioningService
}

// NewProvisioningHandler constructs the handler.
func NewProvisioningHandler(service provisioningService) *ProvisioningHandler {
	return &ProvisioningHandler{service: service}
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid payload"))
		return false
	}
	return true
}

// ProvisionStudent godoc
// @Summary Provision a student
// @Description Creates the student, its login identity and, when a guardian with name and e-mail is supplied, the guardian too
// @Tags Provisioning
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantId path string true "Tenant ID"
// @Param payload body dto.ProvisionSubjectRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tenants/{tenantId}/students [post]
func (h *ProvisioningHandler) ProvisionStudent(c *gin.Context) {
	var req dto.ProvisionSubjectRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.service.ProvisionSubject(c.Request.Context(), c.Param("tenantId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// BulkProvisionStudents godoc
// @Summary Provision students in bulk
// @Description Each row is provisioned independently; failed rows are reported with their 1-based row number
// @Tags Provisioning
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantId path string true "Tenant ID"
// @Param payload body dto.BulkProvisionSubjectsRequest true "Rows"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /tenants/{tenantId}/students/bulk [post]
func (h *ProvisioningHandler) BulkProvisionStudents(c *gin.Context) {
	var req dto.BulkProvisionSubjectsRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.service.BulkProvisionSubjects(c.Request.Context(), c.Param("tenantId"), req.Rows)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res, map[string]interface{}{
		"succeeded": len(res.Succeeded),
		"failed":    len(res.Failed),
	})
}

// ProvisionParent godoc
// @Summary Provision a guardian
// @Tags Provisioning
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantId path string true "Tenant ID"
// @Param payload body dto.ProvisionGuardianRequest true "Guardian payload"
// @Success 201 {object} response.Envelope
// @Router /tenants/{tenantId}/parents [post]
func (h *ProvisioningHandler) ProvisionParent(c *gin.Context) {
	var req dto.ProvisionGuardianRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.service.ProvisionGuardian(c.Request.Context(), c.Param("tenantId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// ProvisionTeacher godoc
// @Summary Provision a teacher
// @Tags Provisioning
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantId path string true "Tenant ID"
// @Param payload body dto.ProvisionSupervisorRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Router /tenants/{tenantId}/teachers [post]
func (h *ProvisioningHandler) ProvisionTeacher(c *gin.Context) {
	var req dto.ProvisionSupervisorRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.service.ProvisionSupervisor(c.Request.Context(), c.Param("tenantId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// ProvisionCollegeAdmin godoc
// @Summary Provision a college administrator
// @Tags Provisioning
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantId path string true "Tenant ID"
// @Param payload body dto.ProvisionAdminRequest true "Admin payload"
// @Success 201 {object} response.Envelope
// @Router /tenants/{tenantId}/admins [post]
func (h *ProvisioningHandler) ProvisionCollegeAdmin(c *gin.Context) {
	var req dto.ProvisionAdminRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.service.ProvisionInstitutionAdmin(c.Request.Context(), c.Param("tenantId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// ProvisionOwner godoc
// @Summary Provision a platform owner
// @Tags Provisioning
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ProvisionAdminRequest true "Owner payload"
// @Success 201 {object} response.Envelope
// @Router /owners [post]
func (h *ProvisioningHandler) ProvisionOwner(c *gin.Context) {
	var req dto.ProvisionAdminRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.service.ProvisionOwnerAdmin(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}
