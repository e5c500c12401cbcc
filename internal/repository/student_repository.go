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

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error) {
	const query = `SELECT id, tenant_id, course_id, seq, roll_number, full_name, email, phone, parent_id, active, created_at, updated_at
	FROM students WHERE id = $1`
	var student models.Student
	if err := sqlx.GetContext(ctx, r.exec(exec), &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// ExistsByRollNumber reports whether the roll number is used inside the tenant.
func (r *StudentRepository) ExistsByRollNumber(ctx context.Context, tenantID, rollNumber string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM students WHERE tenant_id = $1 AND roll_number = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tenantID, rollNumber); err != nil {
		return false, fmt.Errorf("check roll number: %w", err)
	}
	return exists, nil
}

// Create inserts a student.
func (r *StudentRepository) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, tenant_id, course_id, seq, roll_number, full_name, email, phone, parent_id, active, created_at, updated_at)
	VALUES (:id, :tenant_id, :course_id, :seq, :roll_number, :full_name, :email, :phone, :parent_id, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, student); err != nil {
		return fmt.Errorf("create student: %w", classifyUnique(err))
	}
	return nil
}

// LinkParent sets the guardian of a student.
func (r *StudentRepository) LinkParent(ctx context.Context, exec sqlx.ExtContext, studentID, parentID string) error {
	const query = `UPDATE students SET parent_id = $2, updated_at = $3 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, studentID, parentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("link student parent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link student parent rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
