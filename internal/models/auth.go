package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	LoginID   string `json:"login_id" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse carries the bearer token issued for a login ID.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        UserInfo  `json:"user"`
}

// UserInfo is the public view of an identity. At most one of the entity
// references is set, matching the role.
type UserInfo struct {
	ID        string   `json:"id"`
	LoginID   string   `json:"login_id"`
	Email     string   `json:"email"`
	FullName  string   `json:"full_name"`
	Role      UserRole `json:"role"`
	TenantID  *string  `json:"tenant_id,omitempty"`
	StudentID *string  `json:"student_id,omitempty"`
	TeacherID *string  `json:"teacher_id,omitempty"`
	ParentID  *string  `json:"parent_id,omitempty"`
}

// NewUserInfo projects u without its credential fields.
func NewUserInfo(u *User) UserInfo {
	return UserInfo{
		ID:        u.ID,
		LoginID:   u.LoginID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		TenantID:  u.TenantID,
		StudentID: u.StudentID,
		TeacherID: u.TeacherID,
		ParentID:  u.ParentID,
	}
}

// JWTClaims is the access token payload. Entity IDs are empty unless the
// role links one.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	LoginID   string   `json:"login_id"`
	Role      UserRole `json:"role"`
	TenantID  string   `json:"tenant_id,omitempty"`
	StudentID string   `json:"student_id,omitempty"`
	TeacherID string   `json:"teacher_id,omitempty"`
	ParentID  string   `json:"parent_id,omitempty"`
	jwt.RegisteredClaims
}

// Session is what /auth/me reports about the bearer of a token.
type Session struct {
	UserID    string     `json:"user_id"`
	LoginID   string     `json:"login_id"`
	Role      UserRole   `json:"role"`
	TenantID  string     `json:"tenant_id,omitempty"`
	StudentID string     `json:"student_id,omitempty"`
	TeacherID string     `json:"teacher_id,omitempty"`
	ParentID  string     `json:"parent_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Session drops the registered claims except the expiry.
func (c *JWTClaims) Session() Session {
	s := Session{
		UserID:    c.UserID,
		LoginID:   c.LoginID,
		Role:      c.Role,
		TenantID:  c.TenantID,
		StudentID: c.StudentID,
		TeacherID: c.TeacherID,
		ParentID:  c.ParentID,
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time
		s.ExpiresAt = &exp
	}
	return s
}
