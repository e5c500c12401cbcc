package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-identity-api/internal/models"
)

// TenantRepository reads colleges and their courses.
type TenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository constructs a TenantRepository.
func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a tenant. sql.ErrNoRows is returned unwrapped when absent.
func (r *TenantRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tenant, error) {
	const query = `SELECT id, short_code, name, active, created_at, updated_at FROM colleges WHERE id = $1`
	var tenant models.Tenant
	if err := sqlx.GetContext(ctx, r.exec(exec), &tenant, query, id); err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindCourse returns a course only when it belongs to the tenant.
func (r *TenantRepository) FindCourse(ctx context.Context, tenantID, courseID string) (*models.Course, error) {
	const query = `SELECT id, tenant_id, code, name FROM courses WHERE id = $1 AND tenant_id = $2`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, courseID, tenantID); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListCourses returns the courses of a tenant ordered by code.
func (r *TenantRepository) ListCourses(ctx context.Context, tenantID string) ([]models.Course, error) {
	const query = `SELECT id, tenant_id, code, name FROM courses WHERE tenant_id = $1 ORDER BY code`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, tenantID); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}
