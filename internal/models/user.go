package models

import "time"

// UserRole represents the closed set of identity roles.
type UserRole string

const (
	RoleSuperAdmin   UserRole = "SUPERADMIN"
	RoleCollegeAdmin UserRole = "COLLEGE_ADMIN"
	RoleTeacher      UserRole = "TEACHER"
	RoleStudent      UserRole = "STUDENT"
	RoleParent       UserRole = "PARENT"
)

// Valid reports whether r belongs to the closed role set.
func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleCollegeAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

// User is the authentication record paired with at most one domain entity.
type User struct {
	ID               string     `db:"id" json:"id"`
	LoginID          string     `db:"login_id" json:"login_id"`
	Email            string     `db:"email" json:"email"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	FullName         string     `db:"full_name" json:"full_name"`
	Role             UserRole   `db:"role" json:"role"`
	TenantID         *string    `db:"tenant_id" json:"tenant_id,omitempty"`
	StudentID        *string    `db:"student_id" json:"student_id,omitempty"`
	TeacherID        *string    `db:"teacher_id" json:"teacher_id,omitempty"`
	ParentID         *string    `db:"parent_id" json:"parent_id,omitempty"`
	TwoFactorEnabled bool       `db:"two_factor_enabled" json:"two_factor_enabled"`
	Active           bool       `db:"active" json:"active"`
	LastLogin        *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// LinkedEntities counts the non-nil back references.
func (u *User) LinkedEntities() int {
	n := 0
	for _, ref := range []*string{u.StudentID, u.TeacherID, u.ParentID} {
		if ref != nil {
			n++
		}
	}
	return n
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
