package models

import "time"

// LeaveDecision is the state of one approval track.
type LeaveDecision string

const (
	LeavePending  LeaveDecision = "PENDING"
	LeaveApproved LeaveDecision = "APPROVED"
	LeaveRejected LeaveDecision = "REJECTED"
)

// Terminal reports whether the decision can no longer change on a dual-track request.
func (d LeaveDecision) Terminal() bool {
	return d == LeaveApproved || d == LeaveRejected
}

// DeriveEffectiveStatus combines the guardian and supervisor tracks.
// Rejection on either track dominates; approval needs both.
func DeriveEffectiveStatus(guardian, supervisor LeaveDecision) LeaveDecision {
	switch {
	case guardian == LeaveRejected || supervisor == LeaveRejected:
		return LeaveRejected
	case guardian == LeaveApproved && supervisor == LeaveApproved:
		return LeaveApproved
	default:
		return LeavePending
	}
}

// StudentLeaveRequest is a student-initiated leave with independent guardian
// and supervisor approval tracks. Its combined status is never stored.
type StudentLeaveRequest struct {
	ID                 string        `db:"id" json:"id"`
	TenantID           string        `db:"tenant_id" json:"tenant_id"`
	StudentID          string        `db:"student_id" json:"student_id"`
	FromDate           time.Time     `db:"from_date" json:"from_date"`
	ToDate             time.Time     `db:"to_date" json:"to_date"`
	Reason             string        `db:"reason" json:"reason"`
	GuardianApproval   LeaveDecision `db:"guardian_approval" json:"guardian_approval"`
	SupervisorApproval LeaveDecision `db:"supervisor_approval" json:"supervisor_approval"`
	Comments           *string       `db:"comments" json:"comments,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus derives the combined status from the stored tracks.
func (r StudentLeaveRequest) EffectiveStatus() LeaveDecision {
	return DeriveEffectiveStatus(r.GuardianApproval, r.SupervisorApproval)
}

// StudentLeaveView is a leave request enriched for listings.
type StudentLeaveView struct {
	StudentLeaveRequest
	EffectiveStatus LeaveDecision `json:"effective_status"`
}

// NewStudentLeaveView computes the effective status for r.
func NewStudentLeaveView(r StudentLeaveRequest) StudentLeaveView {
	return StudentLeaveView{StudentLeaveRequest: r, EffectiveStatus: r.EffectiveStatus()}
}

// TeacherLeaveRequest is a supervisor-initiated leave with a single status.
type TeacherLeaveRequest struct {
	ID        string        `db:"id" json:"id"`
	TenantID  string        `db:"tenant_id" json:"tenant_id"`
	TeacherID string        `db:"teacher_id" json:"teacher_id"`
	FromDate  time.Time     `db:"from_date" json:"from_date"`
	ToDate    time.Time     `db:"to_date" json:"to_date"`
	Reason    string        `db:"reason" json:"reason"`
	Status    LeaveDecision `db:"status" json:"status"`
	Comments  *string       `db:"comments" json:"comments,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// LeaveFilter constrains leave listings.
type LeaveFilter struct {
	TenantID        string
	StudentID       string
	TeacherID       string
	ParentID        string
	EffectiveStatus LeaveDecision
	Page            int
	PageSize        int
}
