package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-identity-api/internal/models"
)

// ProvisioningScope is the set of reads and writes available inside one
// provisioning unit of work. Everything done through a scope commits or rolls
// back together.
type ProvisioningScope interface {
	NextSequence(ctx context.Context, scope string, role models.UserRole) (int64, error)
	FindTenant(ctx context.Context, id string) (*models.Tenant, error)
	FindStudent(ctx context.Context, id string) (*models.Student, error)
	FindTeacher(ctx context.Context, id string) (*models.Teacher, error)
	FindParent(ctx context.Context, id string) (*models.Parent, error)
	TakenLoginIDs(ctx context.Context, base string) ([]string, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	CreateTeacher(ctx context.Context, teacher *models.Teacher) error
	CreateParent(ctx context.Context, parent *models.Parent) error
	LinkStudentParent(ctx context.Context, studentID, parentID string) error
	// CreateUser inserts an identity. A login ID collision returns
	// ErrLoginIDTaken and leaves the rest of the scope intact.
	CreateUser(ctx context.Context, user *models.User) error
}

// ProvisioningStore runs provisioning units of work on PostgreSQL.
type ProvisioningStore struct {
	db        *sqlx.DB
	tenants   *TenantRepository
	sequences *SequenceRepository
	users     *UserRepository
	students  *StudentRepository
	teachers  *TeacherRepository
	parents   *ParentRepository
}

// NewProvisioningStore wires the repositories used by a provisioning scope.
func NewProvisioningStore(db *sqlx.DB) *ProvisioningStore {
	return &ProvisioningStore{
		db:        db,
		tenants:   NewTenantRepository(db),
		sequences: NewSequenceRepository(db),
		users:     NewUserRepository(db),
		students:  NewStudentRepository(db),
		teachers:  NewTeacherRepository(db),
		parents:   NewParentRepository(db),
	}
}

// FindCourse returns the course when it belongs to tenantID.
func (s *ProvisioningStore) FindCourse(ctx context.Context, tenantID, courseID string) (*models.Course, error) {
	return s.tenants.FindCourse(ctx, tenantID, courseID)
}

// RollNumberExists reports whether the roll number is taken in the tenant.
func (s *ProvisioningStore) RollNumberExists(ctx context.Context, tenantID, rollNumber string) (bool, error) {
	return s.students.ExistsByRollNumber(ctx, tenantID, rollNumber)
}

// EmployeeIDExists reports whether the employee id is taken in the tenant.
func (s *ProvisioningStore) EmployeeIDExists(ctx context.Context, tenantID, employeeID string) (bool, error) {
	return s.teachers.ExistsByEmployeeID(ctx, tenantID, employeeID)
}

// EmailExists reports whether an identity already uses email.
func (s *ProvisioningStore) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.users.ExistsByEmail(ctx, email)
}

// Atomic runs fn inside a transaction. The transaction commits only when fn
// returns nil.
func (s *ProvisioningStore) Atomic(ctx context.Context, fn func(scope ProvisioningScope) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin provisioning tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&sqlScope{store: s, tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit provisioning tx: %w", err)
	}
	return nil
}

type sqlScope struct {
	store *ProvisioningStore
	tx    *sqlx.Tx
}

func (s *sqlScope) NextSequence(ctx context.Context, scope string, role models.UserRole) (int64, error) {
	return s.store.sequences.Next(ctx, s.tx, scope, role)
}

func (s *sqlScope) FindTenant(ctx context.Context, id string) (*models.Tenant, error) {
	return s.store.tenants.FindByID(ctx, s.tx, id)
}

func (s *sqlScope) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	return s.store.students.FindByID(ctx, s.tx, id)
}

func (s *sqlScope) FindTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	return s.store.teachers.FindByID(ctx, s.tx, id)
}

func (s *sqlScope) FindParent(ctx context.Context, id string) (*models.Parent, error) {
	return s.store.parents.FindByID(ctx, s.tx, id)
}

func (s *sqlScope) TakenLoginIDs(ctx context.Context, base string) ([]string, error) {
	return s.store.users.TakenLoginIDs(ctx, s.tx, base)
}

func (s *sqlScope) CreateStudent(ctx context.Context, student *models.Student) error {
	return s.store.students.Create(ctx, s.tx, student)
}

func (s *sqlScope) CreateTeacher(ctx context.Context, teacher *models.Teacher) error {
	return s.store.teachers.Create(ctx, s.tx, teacher)
}

func (s *sqlScope) CreateParent(ctx context.Context, parent *models.Parent) error {
	return s.store.parents.Create(ctx, s.tx, parent)
}

func (s *sqlScope) LinkStudentParent(ctx context.Context, studentID, parentID string) error {
	return s.store.students.LinkParent(ctx, s.tx, studentID, parentID)
}

// CreateUser isolates the insert behind a savepoint. A failed statement
// aborts a PostgreSQL transaction, so the savepoint is what lets the caller
// retry with another login ID.
func (s *sqlScope) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := s.tx.ExecContext(ctx, `SAVEPOINT create_user`); err != nil {
		return fmt.Errorf("savepoint create_user: %w", err)
	}
	if err := s.store.users.Create(ctx, s.tx, user); err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT create_user`); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint create_user: %w", rbErr))
		}
		return err
	}
	if _, err := s.tx.ExecContext(ctx, `RELEASE SAVEPOINT create_user`); err != nil {
		return fmt.Errorf("release savepoint create_user: %w", err)
	}
	return nil
}
