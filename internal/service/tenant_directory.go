package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-identity-api/internal/models"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
)

type tenantReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tenant, error)
}

// TenantDirectory resolves tenants through the cache before hitting storage.
// Inactive and unknown tenants are never cached.
type TenantDirectory struct {
	repo  tenantReader
	cache *CacheService
}

// NewTenantDirectory constructs a TenantDirectory. cache may be nil.
func NewTenantDirectory(repo tenantReader, cache *CacheService) *TenantDirectory {
	return &TenantDirectory{repo: repo, cache: cache}
}

func tenantCacheKey(id string) string {
	return Key("tenant", id)
}

// Get returns an active tenant or NotFound.
func (d *TenantDirectory) Get(ctx context.Context, id string) (*models.Tenant, error) {
	return Remember(ctx, d.cache, tenantCacheKey(id), 0, func(ctx context.Context) (*models.Tenant, error) {
		tenant, err := d.repo.FindByID(ctx, nil, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "tenant not found")
			}
			return nil, appErrors.Internal(err, "failed to load tenant")
		}
		if !tenant.Active {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tenant not found")
		}
		return tenant, nil
	})
}
