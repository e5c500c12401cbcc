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

// ParentRepository handles persistence for guardians.
type ParentRepository struct {
	db *sqlx.DB
}

// NewParentRepository constructs a ParentRepository.
func NewParentRepository(db *sqlx.DB) *ParentRepository {
	return &ParentRepository{db: db}
}

func (r *ParentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a parent by identifier.
func (r *ParentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Parent, error) {
	const query = `SELECT id, tenant_id, seq, full_name, email, phone, created_at, updated_at FROM parents WHERE id = $1`
	var parent models.Parent
	if err := sqlx.GetContext(ctx, r.exec(exec), &parent, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find parent: %w", err)
	}
	return &parent, nil
}

// Create inserts a parent.
func (r *ParentRepository) Create(ctx context.Context, exec sqlx.ExtContext, parent *models.Parent) error {
	if parent.ID == "" {
		parent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if parent.CreatedAt.IsZero() {
		parent.CreatedAt = now
	}
	parent.UpdatedAt = now

	const query = `INSERT INTO parents (id, tenant_id, seq, full_name, email, phone, created_at, updated_at)
	VALUES (:id, :tenant_id, :seq, :full_name, :email, :phone, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, parent); err != nil {
		return fmt.Errorf("create parent: %w", classifyUnique(err))
	}
	return nil
}
