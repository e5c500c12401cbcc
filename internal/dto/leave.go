package dto

import (
	"time"

	"github.com/noah-isme/sma-identity-api/internal/models"
)

// CreateStudentLeaveRequest submits a student leave. StudentID is taken from
// the caller's identity for students.
type CreateStudentLeaveRequest struct {
	StudentID string    `json:"studentId"`
	FromDate  time.Time `json:"fromDate" validate:"required"`
	ToDate    time.Time `json:"toDate" validate:"required"`
	Reason    string    `json:"reason" validate:"required,max=500"`
	Comments  *string   `json:"comments,omitempty" validate:"omitempty,max=500"`
}

// CreateTeacherLeaveRequest submits a teacher leave.
type CreateTeacherLeaveRequest struct {
	TeacherID string    `json:"teacherId"`
	FromDate  time.Time `json:"fromDate" validate:"required"`
	ToDate    time.Time `json:"toDate" validate:"required"`
	Reason    string    `json:"reason" validate:"required,max=500"`
}

// LeaveDecisionRequest records an approval decision.
type LeaveDecisionRequest struct {
	Decision models.LeaveDecision `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Comments *string              `json:"comments,omitempty" validate:"omitempty,max=500"`
}

// LeaveQuery mirrors supported listing filters.
type LeaveQuery struct {
	StudentID string
	TeacherID string
	Status    models.LeaveDecision
	Page      int
	PageSize  int
}

// StudentLeaveList is a page of student leaves.
type StudentLeaveList struct {
	Items      []models.StudentLeaveView `json:"items"`
	Pagination models.Pagination         `json:"pagination"`
}

// TeacherLeaveList is a page of teacher leaves.
type TeacherLeaveList struct {
	Items      []models.TeacherLeaveRequest `json:"items"`
	Pagination models.Pagination            `json:"pagination"`
}
