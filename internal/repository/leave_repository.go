package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-identity-api/internal/models"
)

const studentLeaveColumns = `l.id, l.tenant_id, l.student_id, l.from_date, l.to_date, l.reason, l.guardian_approval,
       l.supervisor_approval, l.comments, l.created_at, l.updated_at`

const teacherLeaveColumns = `id, tenant_id, teacher_id, from_date, to_date, reason, status, comments, created_at, updated_at`

// LeaveRepository persists student and teacher leave requests.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs the repository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

// CreateStudentLeave inserts a student leave with both tracks pending.
func (r *LeaveRepository) CreateStudentLeave(ctx context.Context, leave *models.StudentLeaveRequest) error {
	if leave.ID == "" {
		leave.ID = uuid.NewString()
	}
	leave.GuardianApproval = models.LeavePending
	leave.SupervisorApproval = models.LeavePending
	now := time.Now().UTC()
	leave.CreatedAt = now
	leave.UpdatedAt = now

	const query = `INSERT INTO student_leave_requests
	(id, tenant_id, student_id, from_date, to_date, reason, guardian_approval, supervisor_approval, comments, created_at, updated_at)
	VALUES (:id, :tenant_id, :student_id, :from_date, :to_date, :reason, :guardian_approval, :supervisor_approval, :comments, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, leave); err != nil {
		return fmt.Errorf("create student leave: %w", err)
	}
	return nil
}

// FindStudentLeave fetches a student leave by identifier.
func (r *LeaveRepository) FindStudentLeave(ctx context.Context, id string) (*models.StudentLeaveRequest, error) {
	query := `SELECT ` + studentLeaveColumns + ` FROM student_leave_requests l WHERE l.id = $1`
	var leave models.StudentLeaveRequest
	if err := r.db.GetContext(ctx, &leave, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student leave: %w", err)
	}
	return &leave, nil
}

// FindStudentLeaveGuardian returns the guardian currently linked to the
// requesting student. The guardian is nil when the student has none.
func (r *LeaveRepository) FindStudentLeaveGuardian(ctx context.Context, id string) (*string, error) {
	const query = `SELECT s.parent_id FROM student_leave_requests l JOIN students s ON s.id = l.student_id WHERE l.id = $1`
	var parentID sql.NullString
	if err := r.db.GetContext(ctx, &parentID, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student leave guardian: %w", err)
	}
	if !parentID.Valid {
		return nil, nil
	}
	return &parentID.String, nil
}

// SetGuardianApproval records the guardian decision while it is still
// pending. sql.ErrNoRows means no pending guardian track matched.
func (r *LeaveRepository) SetGuardianApproval(ctx context.Context, id string, decision models.LeaveDecision, comments *string, at time.Time) error {
	const query = `UPDATE student_leave_requests SET guardian_approval = $2, comments = COALESCE($3, comments), updated_at = $4
	WHERE id = $1 AND guardian_approval = 'PENDING'`
	return r.execSingle(ctx, "set guardian approval", query, id, decision, comments, at)
}

// SetSupervisorApproval records the supervisor decision while it is still
// pending. sql.ErrNoRows means no pending supervisor track matched.
func (r *LeaveRepository) SetSupervisorApproval(ctx context.Context, id string, decision models.LeaveDecision, comments *string, at time.Time) error {
	const query = `UPDATE student_leave_requests SET supervisor_approval = $2, comments = COALESCE($3, comments), updated_at = $4
	WHERE id = $1 AND supervisor_approval = 'PENDING'`
	return r.execSingle(ctx, "set supervisor approval", query, id, decision, comments, at)
}

// ListStudentLeaves returns every student leave matching the filter, newest
// first. Pagination is left to the caller because effective status is
// derived after loading.
func (r *LeaveRepository) ListStudentLeaves(ctx context.Context, filter models.LeaveFilter) ([]models.StudentLeaveRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT ` + studentLeaveColumns + ` FROM student_leave_requests l`)

	conditions := make([]string, 0, 3)
	if filter.ParentID != "" {
		builder.WriteString(` JOIN students s ON s.id = l.student_id`)
		args = append(args, filter.ParentID)
		conditions = append(conditions, fmt.Sprintf("s.parent_id = $%d", len(args)))
	}
	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		conditions = append(conditions, fmt.Sprintf("l.tenant_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("l.student_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY l.created_at DESC")

	var leaves []models.StudentLeaveRequest
	if err := r.db.SelectContext(ctx, &leaves, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list student leaves: %w", err)
	}
	return leaves, nil
}

// CreateTeacherLeave inserts a teacher leave in pending status.
func (r *LeaveRepository) CreateTeacherLeave(ctx context.Context, leave *models.TeacherLeaveRequest) error {
	if leave.ID == "" {
		leave.ID = uuid.NewString()
	}
	leave.Status = models.LeavePending
	now := time.Now().UTC()
	leave.CreatedAt = now
	leave.UpdatedAt = now

	const query = `INSERT INTO teacher_leave_requests
	(id, tenant_id, teacher_id, from_date, to_date, reason, status, comments, created_at, updated_at)
	VALUES (:id, :tenant_id, :teacher_id, :from_date, :to_date, :reason, :status, :comments, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, leave); err != nil {
		return fmt.Errorf("create teacher leave: %w", err)
	}
	return nil
}

// FindTeacherLeave fetches a teacher leave by identifier.
func (r *LeaveRepository) FindTeacherLeave(ctx context.Context, id string) (*models.TeacherLeaveRequest, error) {
	query := `SELECT ` + teacherLeaveColumns + ` FROM teacher_leave_requests WHERE id = $1`
	var leave models.TeacherLeaveRequest
	if err := r.db.GetContext(ctx, &leave, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher leave: %w", err)
	}
	return &leave, nil
}

// SetTeacherLeaveStatus overwrites the status unconditionally.
func (r *LeaveRepository) SetTeacherLeaveStatus(ctx context.Context, id string, status models.LeaveDecision, comments *string, at time.Time) error {
	const query = `UPDATE teacher_leave_requests SET status = $2, comments = $3, updated_at = $4 WHERE id = $1`
	return r.execSingle(ctx, "set teacher leave status", query, id, status, comments, at)
}

// ListTeacherLeaves returns a page of teacher leaves and the total count.
func (r *LeaveRepository) ListTeacherLeaves(ctx context.Context, filter models.LeaveFilter) ([]models.TeacherLeaveRequest, int, error) {
	args := make([]interface{}, 0, 3)
	conditions := []string{"1=1"}
	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.EffectiveStatus != "" {
		args = append(args, filter.EffectiveStatus)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s FROM teacher_leave_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		teacherLeaveColumns, where, pageSize, (page-1)*pageSize)

	var leaves []models.TeacherLeaveRequest
	if err := r.db.SelectContext(ctx, &leaves, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list teacher leaves: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM teacher_leave_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count teacher leaves: %w", err)
	}
	return leaves, total, nil
}

func (r *LeaveRepository) execSingle(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
