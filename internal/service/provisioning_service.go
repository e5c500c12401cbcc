package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-identity-api/internal/dto"
	"github.com/noah-isme/sma-identity-api/internal/models"
	"github.com/noah-isme/sma-identity-api/internal/repository"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
)

type provisioningStore interface {
	Atomic(ctx context.Context, fn func(scope repository.ProvisioningScope) error) error
	FindCourse(ctx context.Context, tenantID, courseID string) (*models.Course, error)
	RollNumberExists(ctx context.Context, tenantID, rollNumber string) (bool, error)
	EmployeeIDExists(ctx context.Context, tenantID, employeeID string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type tenantLookup interface {
	Get(ctx context.Context, id string) (*models.Tenant, error)
}

type credentialNotifier interface {
	NotifyCredentials(ctx context.Context, notices ...CredentialNotice)
}

var errLoginIDAttemptsExhausted = errors.New("login id attempts exhausted")

// ProvisioningConfig tunes the provisioning coordinator.
type ProvisioningConfig struct {
	MaxLoginIDAttempts      int
	GeneratedPasswordLength int
	BulkMaxRows             int
	BulkConcurrency         int
	PasswordCost            int
}

// ProvisioningService creates domain entities together with their identity
// records. Each call commits everything it creates or nothing.
type ProvisioningService struct {
	store     provisioningStore
	tenants   tenantLookup
	allocator *LoginIDAllocator
	notifier  credentialNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ProvisioningConfig
	now       func() time.Time
}

// NewProvisioningService constructs a ProvisioningService.
func NewProvisioningService(store provisioningStore, tenants tenantLookup, notifier credentialNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ProvisioningConfig) *ProvisioningService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxLoginIDAttempts <= 0 {
		cfg.MaxLoginIDAttempts = 5
	}
	if cfg.GeneratedPasswordLength <= 0 {
		cfg.GeneratedPasswordLength = 12
	}
	if cfg.BulkMaxRows <= 0 {
		cfg.BulkMaxRows = 500
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 1
	}
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.DefaultCost
	}
	return &ProvisioningService{
		store:     store,
		tenants:   tenants,
		allocator: NewLoginIDAllocator(),
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type pendingIdentity struct {
	user     *models.User
	source   LoginKeySource
	password string
}

func (p pendingIdentity) result() dto.ProvisionedIdentity {
	return dto.ProvisionedIdentity{
		UserID:            p.user.ID,
		LoginID:           p.user.LoginID,
		Email:             p.user.Email,
		Role:              p.user.Role,
		TemporaryPassword: p.password,
	}
}

func (p pendingIdentity) notice() CredentialNotice {
	return CredentialNotice{
		Email:    p.user.Email,
		Name:     p.user.FullName,
		Role:     p.user.Role,
		LoginID:  p.user.LoginID,
		Password: p.password,
	}
}

// ProvisionSubject creates a student and its identity. When the request
// carries a guardian with both a name and an e-mail, the guardian and its
// identity are created in the same unit and linked to the student.
func (s *ProvisioningService) ProvisionSubject(ctx context.Context, tenantID string, req dto.ProvisionSubjectRequest) (result *dto.SubjectProvisioning, err error) {
	defer func() { s.metrics.RecordProvisioning(models.RoleStudent, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid student payload")
	}
	cascade := req.Guardian.Complete()
	if cascade {
		if err := s.validator.Struct(req.Guardian); err != nil {
			return nil, appErrors.Validation(err, "invalid guardian payload")
		}
		if strings.EqualFold(req.Guardian.Email, req.Email) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "guardian e-mail must differ from student e-mail")
		}
	}

	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	if _, err := s.store.FindCourse(ctx, tenantID, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	exists, err := s.store.RollNumberExists(ctx, tenantID, req.RollNumber)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check roll number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate roll number")
	}
	if err := s.ensureEmailFree(ctx, req.Email); err != nil {
		return nil, err
	}
	if cascade {
		if err := s.ensureEmailFree(ctx, req.Guardian.Email); err != nil {
			return nil, err
		}
	}

	hash, generated, err := resolvePassword(req.Password, s.cfg.GeneratedPasswordLength, s.cfg.PasswordCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to prepare password")
	}
	var guardianHash, guardianGenerated string
	if cascade {
		if guardianHash, guardianGenerated, err = resolvePassword(req.Guardian.Password, s.cfg.GeneratedPasswordLength, s.cfg.PasswordCost); err != nil {
			return nil, appErrors.Internal(err, "failed to prepare guardian password")
		}
	}

	ts := s.now()
	var (
		student  *models.Student
		identity pendingIdentity
		guardian *models.Parent
		gIdent   pendingIdentity
	)
	err = s.store.Atomic(ctx, func(scope repository.ProvisioningScope) error {
		seq, err := scope.NextSequence(ctx, tenantID, models.RoleStudent)
		if err != nil {
			return err
		}
		student = &models.Student{
			TenantID:   tenantID,
			CourseID:   req.CourseID,
			Seq:        seq,
			RollNumber: req.RollNumber,
			FullName:   req.FullName,
			Email:      req.Email,
			Phone:      req.Phone,
			Active:     true,
		}
		if err := scope.CreateStudent(ctx, student); err != nil {
			return err
		}
		identity = pendingIdentity{
			user: &models.User{
				Email:        req.Email,
				PasswordHash: hash,
				FullName:     req.FullName,
				Role:         models.RoleStudent,
				TenantID:     &tenantID,
				StudentID:    &student.ID,
				Active:       true,
			},
			source:   SubjectKey{StudentID: student.ID},
			password: generated,
		}
		if err := s.createIdentity(ctx, scope, identity, ts); err != nil {
			return err
		}
		if !cascade {
			return nil
		}

		guardian, gIdent, err = s.createGuardian(ctx, scope, tenantID, *req.Guardian, guardianHash, guardianGenerated, ts)
		if err != nil {
			return err
		}
		if err := scope.LinkStudentParent(ctx, student.ID, guardian.ID); err != nil {
			return err
		}
		student.ParentID = &guardian.ID
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to provision student")
	}

	result = &dto.SubjectProvisioning{Student: student, Identity: identity.result()}
	notices := []CredentialNotice{identity.notice()}
	if guardian != nil {
		result.Guardian = &dto.GuardianProvisioning{Parent: guardian, Identity: gIdent.result()}
		notices = append(notices, gIdent.notice())
	}
	s.notify(ctx, notices...)

	s.logger.Info("student provisioned",
		zap.String("tenant_id", tenantID),
		zap.String("student_id", student.ID),
		zap.String("login_id", identity.user.LoginID),
		zap.Bool("guardian", guardian != nil),
	)
	return result, nil
}

// ProvisionGuardian creates a guardian and its identity. When StudentID is set
// the student must belong to the tenant and is linked to the new guardian.
func (s *ProvisioningService) ProvisionGuardian(ctx context.Context, tenantID string, req dto.ProvisionGuardianRequest) (result *dto.GuardianProvisioning, err error) {
	defer func() { s.metrics.RecordProvisioning(models.RoleParent, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid guardian payload")
	}
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, req.Email); err != nil {
		return nil, err
	}
	hash, generated, err := resolvePassword(req.Password, s.cfg.GeneratedPasswordLength, s.cfg.PasswordCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to prepare password")
	}

	ts := s.now()
	var (
		guardian *models.Parent
		identity pendingIdentity
	)
	err = s.store.Atomic(ctx, func(scope repository.ProvisioningScope) error {
		if req.StudentID != "" {
			student, err := scope.FindStudent(ctx, req.StudentID)
			if err != nil {
				return lookupError(err, "student not found")
			}
			if student.TenantID != tenantID {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
		}
		var err error
		guardian, identity, err = s.createGuardian(ctx, scope, tenantID, req.GuardianInput, hash, generated, ts)
		if err != nil {
			return err
		}
		if req.StudentID != "" {
			return scope.LinkStudentParent(ctx, req.StudentID, guardian.ID)
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to provision guardian")
	}

	s.notify(ctx, identity.notice())
	s.logger.Info("guardian provisioned",
		zap.String("tenant_id", tenantID),
		zap.String("parent_id", guardian.ID),
		zap.String("login_id", identity.user.LoginID),
	)
	return &dto.GuardianProvisioning{Parent: guardian, Identity: identity.result()}, nil
}

// ProvisionSupervisor creates a teacher and its identity.
func (s *ProvisioningService) ProvisionSupervisor(ctx context.Context, tenantID string, req dto.ProvisionSupervisorRequest) (result *dto.SupervisorProvisioning, err error) {
	defer func() { s.metrics.RecordProvisioning(models.RoleTeacher, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid teacher payload")
	}
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	exists, err := s.store.EmployeeIDExists(ctx, tenantID, req.EmployeeID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check employee id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate employee id")
	}
	if err := s.ensureEmailFree(ctx, req.Email); err != nil {
		return nil, err
	}
	hash, generated, err := resolvePassword(req.Password, s.cfg.GeneratedPasswordLength, s.cfg.PasswordCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to prepare password")
	}

	ts := s.now()
	var (
		teacher  *models.Teacher
		identity pendingIdentity
	)
	err = s.store.Atomic(ctx, func(scope repository.ProvisioningScope) error {
		seq, err := scope.NextSequence(ctx, tenantID, models.RoleTeacher)
		if err != nil {
			return err
		}
		teacher = &models.Teacher{
			TenantID:   tenantID,
			Seq:        seq,
			EmployeeID: req.EmployeeID,
			FullName:   req.FullName,
			Email:      req.Email,
			Phone:      req.Phone,
			Expertise:  req.Expertise,
			Active:     true,
		}
		if err := scope.CreateTeacher(ctx, teacher); err != nil {
			return err
		}
		identity = pendingIdentity{
			user: &models.User{
				Email:        req.Email,
				PasswordHash: hash,
				FullName:     req.FullName,
				Role:         models.RoleTeacher,
				TenantID:     &tenantID,
				TeacherID:    &teacher.ID,
				Active:       true,
			},
			source:   SupervisorKey{TeacherID: teacher.ID},
			password: generated,
		}
		return s.createIdentity(ctx, scope, identity, ts)
	})
	if err != nil {
		return nil, s.translate(err, "failed to provision teacher")
	}

	s.notify(ctx, identity.notice())
	s.logger.Info("teacher provisioned",
		zap.String("tenant_id", tenantID),
		zap.String("teacher_id", teacher.ID),
		zap.String("login_id", identity.user.LoginID),
	)
	return &dto.SupervisorProvisioning{Teacher: teacher, Identity: identity.result()}, nil
}

// ProvisionInstitutionAdmin creates a college administrator identity.
func (s *ProvisioningService) ProvisionInstitutionAdmin(ctx context.Context, tenantID string, req dto.ProvisionAdminRequest) (result *dto.AdminProvisioning, err error) {
	defer func() { s.metrics.RecordProvisioning(models.RoleCollegeAdmin, err) }()

	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.provisionAdmin(ctx, req, tenantID, models.RoleCollegeAdmin, func(seq int64) LoginKeySource {
		return InstitutionAdminKey{TenantID: tenantID, Sequence: seq}
	})
}

// ProvisionOwnerAdmin creates a platform owner identity outside any tenant.
func (s *ProvisioningService) ProvisionOwnerAdmin(ctx context.Context, req dto.ProvisionAdminRequest) (result *dto.AdminProvisioning, err error) {
	defer func() { s.metrics.RecordProvisioning(models.RoleSuperAdmin, err) }()

	return s.provisionAdmin(ctx, req, "", models.RoleSuperAdmin, func(seq int64) LoginKeySource {
		return OwnerAdminKey{Sequence: seq}
	})
}

func (s *ProvisioningService) provisionAdmin(ctx context.Context, req dto.ProvisionAdminRequest, tenantID string, role models.UserRole, source func(seq int64) LoginKeySource) (*dto.AdminProvisioning, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid admin payload")
	}
	if err := s.ensureEmailFree(ctx, req.Email); err != nil {
		return nil, err
	}
	hash, generated, err := resolvePassword(req.Password, s.cfg.GeneratedPasswordLength, s.cfg.PasswordCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to prepare password")
	}

	scopeKey := tenantID
	var tenantRef *string
	if tenantID == "" {
		scopeKey = repository.GlobalSequenceScope
	} else {
		tenantRef = &tenantID
	}

	ts := s.now()
	var identity pendingIdentity
	err = s.store.Atomic(ctx, func(scope repository.ProvisioningScope) error {
		seq, err := scope.NextSequence(ctx, scopeKey, role)
		if err != nil {
			return err
		}
		identity = pendingIdentity{
			user: &models.User{
				Email:        req.Email,
				PasswordHash: hash,
				FullName:     req.FullName,
				Role:         role,
				TenantID:     tenantRef,
				Active:       true,
			},
			source:   source(seq),
			password: generated,
		}
		return s.createIdentity(ctx, scope, identity, ts)
	})
	if err != nil {
		return nil, s.translate(err, "failed to provision administrator")
	}

	s.notify(ctx, identity.notice())
	s.logger.Info("administrator provisioned",
		zap.String("role", string(role)),
		zap.String("tenant_id", tenantID),
		zap.String("login_id", identity.user.LoginID),
	)
	return &dto.AdminProvisioning{Identity: identity.result()}, nil
}

// BulkProvisionSubjects provisions each row in its own unit of work. A failing
// row never affects its siblings; failures carry the 1-based row number.
func (s *ProvisioningService) BulkProvisionSubjects(ctx context.Context, tenantID string, rows []dto.ProvisionSubjectRequest) (*dto.BulkProvisionResult, error) {
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one row is required")
	}
	if len(rows) > s.cfg.BulkMaxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d rows are accepted", s.cfg.BulkMaxRows))
	}
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}

	type rowOutcome struct {
		result *dto.SubjectProvisioning
		err    error
	}
	outcomes := make([]rowOutcome, len(rows))

	p := pool.New().WithMaxGoroutines(s.cfg.BulkConcurrency)
	for i := range rows {
		i := i
		p.Go(func() {
			var out rowOutcome
			var catcher panics.Catcher
			catcher.Try(func() {
				out.result, out.err = s.ProvisionSubject(ctx, tenantID, rows[i])
			})
			if recovered := catcher.Recovered(); recovered != nil {
				s.logger.Error("bulk row panicked", zap.Int("row", i+1), zap.String("panic", recovered.String()))
				out = rowOutcome{err: appErrors.Internal(recovered.AsError(), "unexpected failure")}
			}
			outcomes[i] = out
		})
	}
	p.Wait()

	result := &dto.BulkProvisionResult{
		Succeeded: make([]dto.BulkRowSuccess, 0, len(rows)),
		Failed:    make([]dto.BulkRowFailure, 0),
	}
	for i, out := range outcomes {
		s.metrics.RecordBulkRow(out.err)
		if out.err != nil {
			appErr := appErrors.FromError(out.err)
			result.Failed = append(result.Failed, dto.BulkRowFailure{Row: i + 1, Code: appErr.Code, Reason: appErr.Message})
			continue
		}
		result.Succeeded = append(result.Succeeded, dto.BulkRowSuccess{
			Row:       i + 1,
			StudentID: out.result.Student.ID,
			LoginID:   out.result.Identity.LoginID,
		})
	}

	s.logger.Info("bulk provisioning finished",
		zap.String("tenant_id", tenantID),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *ProvisioningService) createGuardian(ctx context.Context, scope repository.ProvisioningScope, tenantID string, in dto.GuardianInput, hash, generated string, ts time.Time) (*models.Parent, pendingIdentity, error) {
	seq, err := scope.NextSequence(ctx, tenantID, models.RoleParent)
	if err != nil {
		return nil, pendingIdentity{}, err
	}
	parent := &models.Parent{
		TenantID: tenantID,
		Seq:      seq,
		FullName: in.FullName,
		Email:    in.Email,
		Phone:    in.Phone,
	}
	if err := scope.CreateParent(ctx, parent); err != nil {
		return nil, pendingIdentity{}, err
	}
	identity := pendingIdentity{
		user: &models.User{
			Email:        in.Email,
			PasswordHash: hash,
			FullName:     in.FullName,
			Role:         models.RoleParent,
			TenantID:     &tenantID,
			ParentID:     &parent.ID,
			Active:       true,
		},
		source:   GuardianKey{ParentID: parent.ID},
		password: generated,
	}
	if err := s.createIdentity(ctx, scope, identity, ts); err != nil {
		return nil, pendingIdentity{}, err
	}
	return parent, identity, nil
}

// createIdentity allocates a login ID and inserts the identity, allocating
// again whenever the insert loses a race for the ID.
func (s *ProvisioningService) createIdentity(ctx context.Context, scope repository.ProvisioningScope, p pendingIdentity, ts time.Time) error {
	for attempt := 1; attempt <= s.cfg.MaxLoginIDAttempts; attempt++ {
		loginID, err := s.allocator.Allocate(ctx, scope, p.source, ts)
		if err != nil {
			return err
		}
		p.user.LoginID = loginID
		err = scope.CreateUser(ctx, p.user)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrLoginIDTaken) {
			return err
		}
		s.metrics.RecordLoginIDCollision(p.source.Role())
		s.logger.Debug("login id taken, allocating again",
			zap.String("login_id", loginID),
			zap.Int("attempt", attempt),
		)
	}
	return appErrors.Internal(errLoginIDAttemptsExhausted, "could not allocate a unique login id")
}

func (s *ProvisioningService) ensureEmailFree(ctx context.Context, email string) error {
	exists, err := s.store.EmailExists(ctx, email)
	if err != nil {
		return appErrors.Internal(err, "failed to check email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	return nil
}

// translate maps storage sentinels onto the error taxonomy.
func (s *ProvisioningService) translate(err error, message string) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrEmailTaken):
		return appErrors.Clone(appErrors.ErrConflict, "email already used")
	case errors.Is(err, repository.ErrDuplicateRollNumber):
		return appErrors.Clone(appErrors.ErrConflict, "duplicate roll number")
	case errors.Is(err, repository.ErrDuplicateEmployeeID):
		return appErrors.Clone(appErrors.ErrConflict, "duplicate employee id")
	}
	s.logger.Error(message, zap.Error(err))
	return appErrors.Internal(err, message)
}

func (s *ProvisioningService) notify(ctx context.Context, notices ...CredentialNotice) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyCredentials(ctx, notices...)
}
