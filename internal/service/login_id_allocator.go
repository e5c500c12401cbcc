package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/sma-identity-api/internal/models"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
)

// maxLoginIDSuffix bounds the two-digit disambiguator.
const maxLoginIDSuffix = 99

var rolePrefixes = map[models.UserRole]string{
	models.RoleSuperAdmin:   "SA",
	models.RoleCollegeAdmin: "CA",
	models.RoleTeacher:      "TE",
	models.RoleStudent:      "ST",
	models.RoleParent:       "PA",
}

// loginKeyLookup is what a key source may read to build its business key.
type loginKeyLookup interface {
	FindTenant(ctx context.Context, id string) (*models.Tenant, error)
	FindStudent(ctx context.Context, id string) (*models.Student, error)
	FindTeacher(ctx context.Context, id string) (*models.Teacher, error)
	FindParent(ctx context.Context, id string) (*models.Parent, error)
	TakenLoginIDs(ctx context.Context, base string) ([]string, error)
}

type loginKey struct {
	sequence int64
	code     string
}

// LoginKeySource identifies the record a login ID is generated for. Each
// role has its own variant.
type LoginKeySource interface {
	Role() models.UserRole
	resolve(ctx context.Context, lookup loginKeyLookup) (loginKey, error)
}

// OwnerAdminKey keys a platform owner by its global sequence.
type OwnerAdminKey struct {
	Sequence int64
}

// Role implements LoginKeySource.
func (OwnerAdminKey) Role() models.UserRole { return models.RoleSuperAdmin }

func (k OwnerAdminKey) resolve(context.Context, loginKeyLookup) (loginKey, error) {
	return loginKey{sequence: k.Sequence}, nil
}

// InstitutionAdminKey keys a college admin by tenant short code.
type InstitutionAdminKey struct {
	TenantID string
	Sequence int64
}

// Role implements LoginKeySource.
func (InstitutionAdminKey) Role() models.UserRole { return models.RoleCollegeAdmin }

func (k InstitutionAdminKey) resolve(ctx context.Context, lookup loginKeyLookup) (loginKey, error) {
	tenant, err := lookup.FindTenant(ctx, k.TenantID)
	if err != nil {
		return loginKey{}, lookupError(err, "tenant not found")
	}
	return loginKey{sequence: k.Sequence, code: tenant.ShortCode}, nil
}

// SupervisorKey keys a teacher by its sequence and employee id.
type SupervisorKey struct {
	TeacherID string
}

// Role implements LoginKeySource.
func (SupervisorKey) Role() models.UserRole { return models.RoleTeacher }

func (k SupervisorKey) resolve(ctx context.Context, lookup loginKeyLookup) (loginKey, error) {
	teacher, err := lookup.FindTeacher(ctx, k.TeacherID)
	if err != nil {
		return loginKey{}, lookupError(err, "teacher not found")
	}
	return loginKey{sequence: teacher.Seq, code: teacher.EmployeeID}, nil
}

// SubjectKey keys a student by its sequence and roll number.
type SubjectKey struct {
	StudentID string
}

// Role implements LoginKeySource.
func (SubjectKey) Role() models.UserRole { return models.RoleStudent }

func (k SubjectKey) resolve(ctx context.Context, lookup loginKeyLookup) (loginKey, error) {
	student, err := lookup.FindStudent(ctx, k.StudentID)
	if err != nil {
		return loginKey{}, lookupError(err, "student not found")
	}
	return loginKey{sequence: student.Seq, code: student.RollNumber}, nil
}

// GuardianKey keys a parent by its sequence alone.
type GuardianKey struct {
	ParentID string
}

// Role implements LoginKeySource.
func (GuardianKey) Role() models.UserRole { return models.RoleParent }

func (k GuardianKey) resolve(ctx context.Context, lookup loginKeyLookup) (loginKey, error) {
	parent, err := lookup.FindParent(ctx, k.ParentID)
	if err != nil {
		return loginKey{}, lookupError(err, "parent not found")
	}
	return loginKey{sequence: parent.Seq}, nil
}

func lookupError(err error, notFound string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Internal(err, "failed to resolve login key")
}

// BaseLoginID formats prefix, zero-padded sequence, code and the MMYY of ts.
func BaseLoginID(prefix string, sequence int64, code string, ts time.Time) string {
	return fmt.Sprintf("%s%04d%s%02d%02d", prefix, sequence, code, int(ts.Month()), ts.Year()%100)
}

// LoginIDAllocator produces login IDs that do not collide with stored ones.
// The storage unique constraint remains the final arbiter under concurrency.
type LoginIDAllocator struct{}

// NewLoginIDAllocator constructs a LoginIDAllocator.
func NewLoginIDAllocator() *LoginIDAllocator {
	return &LoginIDAllocator{}
}

// Allocate returns the base login ID for source at ts, or the base followed by
// the smallest free two-digit suffix.
func (a *LoginIDAllocator) Allocate(ctx context.Context, lookup loginKeyLookup, source LoginKeySource, ts time.Time) (string, error) {
	if source == nil {
		return "", appErrors.Clone(appErrors.ErrInvalidRole, "login key source is required")
	}
	prefix, ok := rolePrefixes[source.Role()]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrInvalidRole, fmt.Sprintf("unsupported role %q", source.Role()))
	}
	key, err := source.resolve(ctx, lookup)
	if err != nil {
		return "", err
	}

	base := BaseLoginID(prefix, key.sequence, key.code, ts)
	taken, err := lookup.TakenLoginIDs(ctx, base)
	if err != nil {
		return "", appErrors.Internal(err, "failed to read existing login ids")
	}
	used := make(map[string]struct{}, len(taken))
	for _, id := range taken {
		used[id] = struct{}{}
	}
	if _, exists := used[base]; !exists {
		return base, nil
	}
	for suffix := 1; suffix <= maxLoginIDSuffix; suffix++ {
		candidate := fmt.Sprintf("%s%02d", base, suffix)
		if _, exists := used[candidate]; !exists {
			return candidate, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrConflict, "no login id available for "+base)
}
