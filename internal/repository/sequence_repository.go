package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-identity-api/internal/models"
)

// GlobalSequenceScope is the scope used for identities without a tenant.
const GlobalSequenceScope = "global"

// SequenceRepository hands out per-scope, per-role sequence numbers.
type SequenceRepository struct {
	db *sqlx.DB
}

// NewSequenceRepository constructs a SequenceRepository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Next increments and returns the counter for (scope, role). Inside a
// transaction the counter row stays locked until commit, and a rollback
// returns the number to the pool.
func (r *SequenceRepository) Next(ctx context.Context, exec sqlx.ExtContext, scope string, role models.UserRole) (int64, error) {
	if exec == nil {
		exec = r.db
	}
	const query = `INSERT INTO login_sequences (scope, role, value) VALUES ($1, $2, 1)
ON CONFLICT (scope, role) DO UPDATE SET value = login_sequences.value + 1
RETURNING value`
	var value int64
	if err := sqlx.GetContext(ctx, exec, &value, query, scope, role); err != nil {
		return 0, fmt.Errorf("next %s sequence for %s: %w", role, scope, err)
	}
	return value, nil
}
