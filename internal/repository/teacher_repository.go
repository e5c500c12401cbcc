package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-identity-api/internal/models"
)

// TeacherRepository handles persistence for teacher records.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

func (r *TeacherRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a teacher by identifier.
func (r *TeacherRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Teacher, error) {
	const query = `SELECT id, tenant_id, seq, employee_id, full_name, email, phone, expertise, active, created_at, updated_at
	FROM teachers WHERE id = $1`
	var teacher models.Teacher
	if err := sqlx.GetContext(ctx, r.exec(exec), &teacher, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher: %w", err)
	}
	return &teacher, nil
}

// ExistsByEmployeeID reports whether the employee id is used inside the tenant.
func (r *TeacherRepository) ExistsByEmployeeID(ctx context.Context, tenantID, employeeID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM teachers WHERE tenant_id = $1 AND employee_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tenantID, employeeID); err != nil {
		return false, fmt.Errorf("check employee id: %w", err)
	}
	return exists, nil
}

// Create inserts a teacher.
func (r *TeacherRepository) Create(ctx context.Context, exec sqlx.ExtContext, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now

	const query = `INSERT INTO teachers (id, tenant_id, seq, employee_id, full_name, email, phone, expertise, active, created_at, updated_at)
	VALUES (:id, :tenant_id, :seq, :employee_id, :full_name, :email, :phone, :expertise, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", classifyUnique(err))
	}
	return nil
}
