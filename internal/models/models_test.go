package models

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveEffectiveStatus(t *testing.T) {
	cases := []struct {
		guardian   LeaveDecision
		supervisor LeaveDecision
		want       LeaveDecision
	}{
		{LeavePending, LeavePending, LeavePending},
		{LeaveApproved, LeavePending, LeavePending},
		{LeavePending, LeaveApproved, LeavePending},
		{LeaveApproved, LeaveApproved, LeaveApproved},
		{LeaveRejected, LeavePending, LeaveRejected},
		{LeavePending, LeaveRejected, LeaveRejected},
		{LeaveApproved, LeaveRejected, LeaveRejected},
		{LeaveRejected, LeaveApproved, LeaveRejected},
		{LeaveRejected, LeaveRejected, LeaveRejected},
	}
	for _, tc := range cases {
		t.Run(string(tc.guardian)+"_"+string(tc.supervisor), func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveEffectiveStatus(tc.guardian, tc.supervisor))
		})
	}
}

func TestStudentLeaveViewDerivesStatus(t *testing.T) {
	view := NewStudentLeaveView(StudentLeaveRequest{ID: "sl-1", GuardianApproval: LeaveApproved, SupervisorApproval: LeaveApproved})
	assert.Equal(t, LeaveApproved, view.EffectiveStatus)
	assert.Equal(t, "sl-1", view.ID)
}

func TestLeaveDecisionTerminal(t *testing.T) {
	assert.False(t, LeavePending.Terminal())
	assert.True(t, LeaveApproved.Terminal())
	assert.True(t, LeaveRejected.Terminal())
	assert.False(t, LeaveDecision("MAYBE").Terminal())
}

func TestUserRoleValid(t *testing.T) {
	for _, role := range []UserRole{RoleSuperAdmin, RoleCollegeAdmin, RoleTeacher, RoleStudent, RoleParent} {
		assert.True(t, role.Valid(), role)
	}
	assert.False(t, UserRole("JANITOR").Valid())
}

func TestUserLinkedEntities(t *testing.T) {
	id := "stu-1"
	assert.Equal(t, 0, (&User{}).LinkedEntities())
	assert.Equal(t, 1, (&User{StudentID: &id}).LinkedEntities())
}

func TestJWTClaimsSession(t *testing.T) {
	exp := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	claims := &JWTClaims{
		UserID:    "u1",
		LoginID:   "TE0012EMP90125",
		Role:      RoleTeacher,
		TenantID:  "col-1",
		TeacherID: "tch-12",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "sma-identity-api",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	s := claims.Session()
	assert.Equal(t, "TE0012EMP90125", s.LoginID)
	assert.Equal(t, "tch-12", s.TeacherID)
	require.NotNil(t, s.ExpiresAt)
	assert.True(t, exp.Equal(*s.ExpiresAt))

	claims.ExpiresAt = nil
	assert.Nil(t, claims.Session().ExpiresAt)
}
