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

const userColumns = `id, login_id, email, password_hash, full_name, role, tenant_id, student_id, teacher_id, parent_id,
       two_factor_enabled, active, last_login, created_at, updated_at`

// UserRepository provides database access for identity records.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByLoginID returns a user by login identifier.
func (r *UserRepository) FindByLoginID(ctx context.Context, loginID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE login_id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, loginID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by login id: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ExistsByEmail reports whether any identity already uses email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email); err != nil {
		return false, fmt.Errorf("check user email: %w", err)
	}
	return exists, nil
}

// likeEscaper quotes LIKE metacharacters so base is matched literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// TakenLoginIDs lists stored login IDs equal to base or extending it by
// exactly two digits.
func (r *UserRepository) TakenLoginIDs(ctx context.Context, exec sqlx.ExtContext, base string) ([]string, error) {
	const query = `SELECT login_id FROM users WHERE login_id = $1 OR (login_id LIKE $2 ESCAPE '\' AND RIGHT(login_id, 2) ~ '^[0-9]{2}$') ORDER BY login_id`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, base, likeEscaper.Replace(base)+"__"); err != nil {
		return nil, fmt.Errorf("list taken login ids: %w", err)
	}
	return ids, nil
}

// Create inserts a new identity. Unique violations are translated to
// ErrLoginIDTaken or ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, login_id, email, password_hash, full_name, role, tenant_id, student_id, teacher_id, parent_id,
       two_factor_enabled, active, created_at, updated_at)
	VALUES (:id, :login_id, :email, :password_hash, :full_name, :role, :tenant_id, :student_id, :teacher_id, :parent_id,
       :two_factor_enabled, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, user); err != nil {
		return fmt.Errorf("create user: %w", classifyUnique(err))
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, actor_id, actor_role, tenant_id, action, resource, resource_id, request_id, details, ip_address, user_agent, created_at) VALUES (:id, :actor_id, :actor_role, :tenant_id, :action, :resource, :resource_id, :request_id, :details, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
