package dto

import "github.com/noah-isme/sma-identity-api/internal/models"

// GuardianInput describes a guardian to provision.
type GuardianInput struct {
	FullName string  `json:"fullName" validate:"required,max=120"`
	Email    string  `json:"email" validate:"required,email,max=160"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Password string  `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
}

// Complete reports whether the guardian carries both a name and a contact address.
func (g *GuardianInput) Complete() bool {
	return g != nil && g.FullName != "" && g.Email != ""
}

// ProvisionSubjectRequest creates a student, its identity and optionally its guardian.
type ProvisionSubjectRequest struct {
	CourseID   string         `json:"courseId" validate:"required"`
	RollNumber string         `json:"rollNumber" validate:"required,alphanum,max=16"`
	FullName   string         `json:"fullName" validate:"required,max=120"`
	Email      string         `json:"email" validate:"required,email,max=160"`
	Phone      *string        `json:"phone,omitempty" validate:"omitempty,max=32"`
	Password   string         `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
	Guardian   *GuardianInput `json:"guardian,omitempty" validate:"-"`
}

// ProvisionGuardianRequest creates a guardian, optionally linking an existing student.
type ProvisionGuardianRequest struct {
	GuardianInput
	StudentID string `json:"studentId,omitempty"`
}

// ProvisionSupervisorRequest creates a teacher and its identity.
type ProvisionSupervisorRequest struct {
	EmployeeID string  `json:"employeeId" validate:"required,alphanum,max=16"`
	FullName   string  `json:"fullName" validate:"required,max=120"`
	Email      string  `json:"email" validate:"required,email,max=160"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Expertise  *string `json:"expertise,omitempty" validate:"omitempty,max=120"`
	Password   string  `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
}

// ProvisionAdminRequest creates an administrative identity.
type ProvisionAdminRequest struct {
	FullName string `json:"fullName" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email,max=160"`
	Password string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
}

// BulkProvisionSubjectsRequest carries rows of a bulk student import.
type BulkProvisionSubjectsRequest struct {
	Rows []ProvisionSubjectRequest `json:"rows"`
}

// ProvisionedIdentity is the identity created for a provisioned entity.
// TemporaryPassword is only set when the password was generated.
type ProvisionedIdentity struct {
	UserID            string          `json:"userId"`
	LoginID           string          `json:"loginId"`
	Email             string          `json:"email"`
	Role              models.UserRole `json:"role"`
	TemporaryPassword string          `json:"temporaryPassword,omitempty"`
}

// GuardianProvisioning is the result of provisioning a guardian.
type GuardianProvisioning struct {
	Parent   *models.Parent      `json:"parent"`
	Identity ProvisionedIdentity `json:"identity"`
}

// SubjectProvisioning is the result of provisioning a student.
type SubjectProvisioning struct {
	Student  *models.Student       `json:"student"`
	Identity ProvisionedIdentity   `json:"identity"`
	Guardian *GuardianProvisioning `json:"guardian,omitempty"`
}

// SupervisorProvisioning is the result of provisioning a teacher.
type SupervisorProvisioning struct {
	Teacher  *models.Teacher     `json:"teacher"`
	Identity ProvisionedIdentity `json:"identity"`
}

// AdminProvisioning is the result of provisioning an administrator.
type AdminProvisioning struct {
	Identity ProvisionedIdentity `json:"identity"`
}

// BulkRowSuccess identifies a provisioned bulk row.
type BulkRowSuccess struct {
	Row       int    `json:"row"`
	StudentID string `json:"studentId"`
	LoginID   string `json:"loginId"`
}

// BulkRowFailure explains why a bulk row was not provisioned. Row is 1-based.
type BulkRowFailure struct {
	Row    int    `json:"row"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// BulkProvisionResult partitions bulk rows into succeeded and failed.
type BulkProvisionResult struct {
	Succeeded []BulkRowSuccess `json:"succeeded"`
	Failed    []BulkRowFailure `json:"failed"`
}
