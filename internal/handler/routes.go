package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-identity-api/internal/middleware"
	"github.com/noah-isme/sma-identity-api/internal/models"
)

// Routes bundles the handlers and middleware mounted by RegisterRoutes.
type Routes struct {
	Prefix       string
	Auth         *AuthHandler
	Provisioning *ProvisioningHandler
	Leaves       *LeaveHandler
	Metrics      *MetricsHandler
	// Authenticate validates the bearer token and stores the claims.
	Authenticate gin.HandlerFunc
	// Audit builds a per-route audit recorder. Nil disables auditing.
	Audit func(action, resource string) gin.HandlerFunc
}

func (r Routes) audit(action, resource string) gin.HandlerFunc {
	if r.Audit == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return r.Audit(action, resource)
}

// RegisterRoutes mounts the API on engine.
func RegisterRoutes(engine *gin.Engine, r Routes) {
	if r.Metrics != nil {
		engine.GET("/health", r.Metrics.Health)
		engine.GET("/ready", r.Metrics.Ready)
		engine.GET("/metrics", r.Metrics.Prometheus)
	}

	api := engine.Group(r.Prefix)
	api.POST("/auth/login", r.Auth.Login)

	secured := api.Group("")
	secured.Use(r.Authenticate)
	secured.GET("/auth/me", r.Auth.Me)

	owners := secured.Group("", middleware.RequireRoles(models.RoleSuperAdmin))
	owners.POST("/owners", r.audit(models.AuditActionProvisionAdmin, "users"), r.Provisioning.ProvisionOwner)
	owners.POST("/tenants/:tenantId/admins", r.audit(models.AuditActionProvisionAdmin, "users"), r.Provisioning.ProvisionCollegeAdmin)

	tenant := secured.Group("/tenants/:tenantId",
		middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCollegeAdmin),
		middleware.TenantAccess("tenantId"),
	)
	tenant.POST("/students", r.audit(models.AuditActionProvisionStudent, "students"), r.Provisioning.ProvisionStudent)
	tenant.POST("/students/bulk", r.audit(models.AuditActionProvisionStudent, "students"), r.Provisioning.BulkProvisionStudents)
	tenant.POST("/teachers", r.audit(models.AuditActionProvisionTeacher, "teachers"), r.Provisioning.ProvisionTeacher)
	tenant.POST("/parents", r.audit(models.AuditActionProvisionParent, "parents"), r.Provisioning.ProvisionParent)

	staff := []models.UserRole{models.RoleSuperAdmin, models.RoleCollegeAdmin, models.RoleTeacher}
	admins := []models.UserRole{models.RoleSuperAdmin, models.RoleCollegeAdmin}

	leaves := secured.Group("/leaves")
	leaves.POST("/students", middleware.RequireRoles(models.RoleStudent), r.Leaves.CreateStudentLeave)
	leaves.GET("/students", r.Leaves.ListStudentLeaves)
	leaves.GET("/students/:id", r.Leaves.GetStudentLeave)
	leaves.PATCH("/students/:id/guardian-approval", middleware.RequireRoles(models.RoleParent), r.Leaves.GuardianDecision)
	leaves.PATCH("/students/:id/supervisor-approval", middleware.RequireRoles(staff...), r.Leaves.SupervisorDecision)
	leaves.POST("/teachers", middleware.RequireRoles(models.RoleTeacher), r.Leaves.CreateTeacherLeave)
	leaves.GET("/teachers", middleware.RequireRoles(staff...), r.Leaves.ListTeacherLeaves)
	leaves.PATCH("/teachers/:id/status", middleware.RequireRoles(admins...), r.Leaves.SetTeacherLeaveStatus)
}
