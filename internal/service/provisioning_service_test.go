package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-identity-api/internal/dto"
	"github.com/noah-isme/sma-identity-api/internal/models"
	"github.com/noah-isme/sma-identity-api/internal/repository"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
)

type provisioningFixture struct {
	svc      *ProvisioningService
	store    *memoryStore
	notifier *recordingNotifier
	metrics  *MetricsService
}

func newProvisioningFixture(t *testing.T, cfg ProvisioningConfig) *provisioningFixture {
	t.Helper()
	store := newMemoryStore()
	store.addTenant("col-1", "NITK")
	store.addCourse("col-1", "cse")
	store.addTenant("col-2", "IITB")
	store.addCourse("col-2", "mech")

	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.MinCost
	}
	notifier := &recordingNotifier{}
	metrics := NewMetricsService()
	svc := NewProvisioningService(store, staticTenants{store: store}, notifier, metrics, nil, nil, cfg)
	svc.now = func() time.Time { return january2025 }
	return &provisioningFixture{svc: svc, store: store, notifier: notifier, metrics: metrics}
}

func studentRequest(roll, email string) dto.ProvisionSubjectRequest {
	return dto.ProvisionSubjectRequest{
		CourseID:   "cse",
		RollNumber: roll,
		FullName:   "Student " + roll,
		Email:      email,
	}
}

func TestProvisionSubjectCreatesStudentAndIdentity(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})

	res, err := f.svc.ProvisionSubject(context.Background(), "col-1", studentRequest("A101", "asha@example.com"))
	require.NoError(t, err)

	assert.Equal(t, "ST0001A1010125", res.Identity.LoginID)
	assert.Equal(t, models.RoleStudent, res.Identity.Role)
	assert.NotEmpty(t, res.Identity.TemporaryPassword)
	assert.Nil(t, res.Guardian)
	assert.Equal(t, int64(1), res.Student.Seq)
	assert.Equal(t, 1, f.store.studentCount())

	user := f.store.users[res.Identity.UserID]
	require.NotNil(t, user)
	require.NotNil(t, user.StudentID)
	assert.Equal(t, res.Student.ID, *user.StudentID)
	assert.Equal(t, 1, user.LinkedEntities())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(res.Identity.TemporaryPassword)))

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, "ST0001A1010125", f.notifier.notices[0].LoginID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.provisioningTotal.WithLabelValues("STUDENT", "success")))
}

func TestProvisionSubjectKeepsSuppliedPasswordPrivate(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	req := studentRequest("A101", "asha@example.com")
	req.Password = "Sup3rSecret!"

	res, err := f.svc.ProvisionSubject(context.Background(), "col-1", req)
	require.NoError(t, err)
	assert.Empty(t, res.Identity.TemporaryPassword)

	user := f.store.users[res.Identity.UserID]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Sup3rSecret!")))
	assert.Empty(t, f.notifier.notices[0].Password)
}

func TestProvisionSubjectWithGuardianLinksBoth(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	req := studentRequest("A101", "asha@example.com")
	req.Guardian = &dto.GuardianInput{FullName: "Ravi", Email: "ravi@example.com"}

	res, err := f.svc.ProvisionSubject(context.Background(), "col-1", req)
	require.NoError(t, err)
	require.NotNil(t, res.Guardian)

	assert.Equal(t, "PA00010125", res.Guardian.Identity.LoginID)
	require.NotNil(t, res.Student.ParentID)
	assert.Equal(t, res.Guardian.Parent.ID, *res.Student.ParentID)

	stored := f.store.students[res.Student.ID]
	require.NotNil(t, stored.ParentID)
	assert.Equal(t, res.Guardian.Parent.ID, *stored.ParentID)
	assert.Equal(t, 2, f.store.userCount())
	assert.Equal(t, 2, f.notifier.count())
}

func TestProvisionSubjectSkipsIncompleteGuardian(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	req := studentRequest("A101", "asha@example.com")
	req.Guardian = &dto.GuardianInput{FullName: "Ravi"}

	res, err := f.svc.ProvisionSubject(context.Background(), "col-1", req)
	require.NoError(t, err)
	assert.Nil(t, res.Guardian)
	assert.Equal(t, 0, f.store.parentCount())
}

func TestProvisionSubjectRejectsSharedGuardianEmail(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	req := studentRequest("A101", "asha@example.com")
	req.Guardian = &dto.GuardianInput{FullName: "Ravi", Email: "ASHA@example.com"}

	_, err := f.svc.ProvisionSubject(context.Background(), "col-1", req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 0, f.store.studentCount())
}

func TestProvisionSubjectPreconditions(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	ctx := context.Background()

	_, err := f.svc.ProvisionSubject(ctx, "col-1", dto.ProvisionSubjectRequest{CourseID: "cse"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.ProvisionSubject(ctx, "missing", studentRequest("A101", "a@example.com"))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	req := studentRequest("A101", "a@example.com")
	req.CourseID = "mech"
	_, err = f.svc.ProvisionSubject(ctx, "col-1", req)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.ProvisionSubject(ctx, "col-1", studentRequest("A101", "a@example.com"))
	require.NoError(t, err)

	_, err = f.svc.ProvisionSubject(ctx, "col-1", studentRequest("A101", "b@example.com"))
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = f.svc.ProvisionSubject(ctx, "col-1", studentRequest("A102", "A@example.com"))
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	assert.Equal(t, 1, f.store.studentCount())
}

func TestProvisionSubjectRollsBackWhenGuardianFails(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	f.store.beforeCreateUser = func(_ *memoryStore, user *models.User) error {
		if user.Role == models.RoleParent {
			return errors.New("disk full")
		}
		return nil
	}
	req := studentRequest("A101", "asha@example.com")
	req.Guardian = &dto.GuardianInput{FullName: "Ravi", Email: "ravi@example.com"}

	_, err := f.svc.ProvisionSubject(context.Background(), "col-1", req)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Equal(t, 0, f.store.studentCount())
	assert.Equal(t, 0, f.store.parentCount())
	assert.Equal(t, 0, f.store.userCount())
	assert.Equal(t, 0, f.notifier.count())

	f.store.beforeCreateUser = nil
	_, err = f.svc.ProvisionSubject(context.Background(), "col-1", req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.userCount())
}

func TestProvisionSubjectRetriesAfterLosingLoginIDRace(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	raced := false
	f.store.beforeCreateUser = func(m *memoryStore, user *models.User) error {
		if !raced {
			raced = true
			m.reserveLoginID(user.LoginID)
		}
		return nil
	}

	res, err := f.svc.ProvisionSubject(context.Background(), "col-1", studentRequest("A101", "asha@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "ST0001A101012501", res.Identity.LoginID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.loginIDCollisions.WithLabelValues("STUDENT")))
}

func TestProvisionSubjectGivesUpAfterMaxAttempts(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{MaxLoginIDAttempts: 3})
	f.store.beforeCreateUser = func(*memoryStore, *models.User) error {
		return repository.ErrLoginIDTaken
	}

	_, err := f.svc.ProvisionSubject(context.Background(), "col-1", studentRequest("A101", "asha@example.com"))
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.loginIDCollisions.WithLabelValues("STUDENT")))
	assert.Equal(t, 0, f.store.studentCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.provisioningTotal.WithLabelValues("STUDENT", "failure")))
}

func TestConcurrentProvisioningAcrossTenantsYieldsUniqueLoginIDs(t *testing.T) {
	const tenants = 10
	f := newProvisioningFixture(t, ProvisioningConfig{MaxLoginIDAttempts: 2 * tenants})
	for i := 0; i < tenants; i++ {
		id := fmt.Sprintf("tenant-%d", i)
		f.store.addTenant(id, "")
		f.store.addCourse(id, "course-"+id)
	}

	var wg sync.WaitGroup
	errs := make([]error, tenants)
	for i := 0; i < tenants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("tenant-%d", i)
			req := studentRequest("A101", fmt.Sprintf("student%d@example.com", i))
			req.CourseID = "course-" + id
			_, errs[i] = f.svc.ProvisionSubject(context.Background(), id, req)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	ids := f.store.sortedLoginIDs(models.RoleStudent)
	require.Len(t, ids, tenants)
	want := []string{"ST0001A1010125"}
	for i := 1; i < tenants; i++ {
		want = append(want, fmt.Sprintf("ST0001A1010125%02d", i))
	}
	assert.Equal(t, want, ids)
}

func TestConcurrentProvisioningInOneTenantUsesDistinctSequences(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.ProvisionSubject(context.Background(), "col-1", studentRequest(fmt.Sprintf("R%d", i), fmt.Sprintf("r%d@example.com", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, st := range f.store.students {
		assert.False(t, seen[st.Seq], "sequence %d reused", st.Seq)
		seen[st.Seq] = true
	}
	assert.Len(t, seen, 8)
}

func TestProvisionGuardianLinksExistingStudent(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	ctx := context.Background()
	student, err := f.svc.ProvisionSubject(ctx, "col-1", studentRequest("A101", "asha@example.com"))
	require.NoError(t, err)

	res, err := f.svc.ProvisionGuardian(ctx, "col-1", dto.ProvisionGuardianRequest{
		GuardianInput: dto.GuardianInput{FullName: "Ravi", Email: "ravi@example.com"},
		StudentID:     student.Student.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "PA00010125", res.Identity.LoginID)

	stored := f.store.students[student.Student.ID]
	require.NotNil(t, stored.ParentID)
	assert.Equal(t, res.Parent.ID, *stored.ParentID)
}

func TestProvisionGuardianRejectsForeignStudent(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	ctx := context.Background()
	student, err := f.svc.ProvisionSubject(ctx, "col-1", studentRequest("A101", "asha@example.com"))
	require.NoError(t, err)

	_, err = f.svc.ProvisionGuardian(ctx, "col-2", dto.ProvisionGuardianRequest{
		GuardianInput: dto.GuardianInput{FullName: "Ravi", Email: "ravi@example.com"},
		StudentID:     student.Student.ID,
	})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Equal(t, 0, f.store.parentCount())

	_, err = f.svc.ProvisionGuardian(ctx, "col-1", dto.ProvisionGuardianRequest{
		GuardianInput: dto.GuardianInput{FullName: "Ravi", Email: "ravi@example.com"},
		StudentID:     "missing",
	})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestProvisionSupervisor(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	ctx := context.Background()
	req := dto.ProvisionSupervisorRequest{EmployeeID: "EMP9", FullName: "Meera", Email: "meera@example.com"}

	res, err := f.svc.ProvisionSupervisor(ctx, "col-1", req)
	require.NoError(t, err)
	assert.Equal(t, "TE0001EMP90125", res.Identity.LoginID)
	require.NotNil(t, f.store.users[res.Identity.UserID].TeacherID)

	req.Email = "other@example.com"
	_, err = f.svc.ProvisionSupervisor(ctx, "col-1", req)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = f.svc.ProvisionSupervisor(ctx, "col-2", req)
	assert.NoError(t, err)
}

func TestProvisionAdministrators(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	ctx := context.Background()

	ca, err := f.svc.ProvisionInstitutionAdmin(ctx, "col-1", dto.ProvisionAdminRequest{FullName: "Dean", Email: "dean@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "CA0001NITK0125", ca.Identity.LoginID)
	assert.Equal(t, "col-1", *f.store.users[ca.Identity.UserID].TenantID)

	_, err = f.svc.ProvisionInstitutionAdmin(ctx, "missing", dto.ProvisionAdminRequest{FullName: "Dean", Email: "x@example.com"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	first, err := f.svc.ProvisionOwnerAdmin(ctx, dto.ProvisionAdminRequest{FullName: "Owner", Email: "owner@example.com"})
	require.NoError(t, err)
	second, err := f.svc.ProvisionOwnerAdmin(ctx, dto.ProvisionAdminRequest{FullName: "Owner 2", Email: "owner2@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "SA00010125", first.Identity.LoginID)
	assert.Equal(t, "SA00020125", second.Identity.LoginID)
	assert.Nil(t, f.store.users[first.Identity.UserID].TenantID)
	assert.Equal(t, 0, f.store.users[first.Identity.UserID].LinkedEntities())
}

func TestBulkProvisionReportsFailingRowsOnly(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{})
	rows := []dto.ProvisionSubjectRequest{
		studentRequest("B1", "b1@example.com"),
		studentRequest("B2", "b2@example.com"),
		studentRequest("B1", "b3@example.com"),
		studentRequest("B4", "b4@example.com"),
		studentRequest("B5", "b5@example.com"),
	}

	res, err := f.svc.BulkProvisionSubjects(context.Background(), "col-1", rows)
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, 3, res.Failed[0].Row)
	assert.Equal(t, appErrors.ErrConflict.Code, res.Failed[0].Code)
	assert.Equal(t, "duplicate roll number", res.Failed[0].Reason)

	require.Len(t, res.Succeeded, 4)
	var succeededRows []int
	for _, row := range res.Succeeded {
		succeededRows = append(succeededRows, row.Row)
	}
	assert.Equal(t, []int{1, 2, 4, 5}, succeededRows)
	assert.Equal(t, "ST0001B10125", res.Succeeded[0].LoginID)
	assert.Equal(t, 4, f.store.studentCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.bulkRows.WithLabelValues("failure")))
}

func TestBulkProvisionMapsEachRowToItsOwnResult(t *testing.T) {
	for _, workers := range []int{1, 4} {
		for attempt := 0; attempt < 10; attempt++ {
			f := newProvisioningFixture(t, ProvisioningConfig{BulkConcurrency: workers})
			rows := make([]dto.ProvisionSubjectRequest, 6)
			for i := range rows {
				rows[i] = studentRequest(fmt.Sprintf("R%d", i+1), fmt.Sprintf("r%d@example.com", i+1))
			}
			rows[2] = studentRequest("R1", "dup@example.com")

			res, err := f.svc.BulkProvisionSubjects(context.Background(), "col-1", rows)
			require.NoError(t, err)
			require.Len(t, res.Succeeded, 5, "workers=%d", workers)
			require.Len(t, res.Failed, 1)
			if workers == 1 {
				assert.Equal(t, 3, res.Failed[0].Row)
			} else {
				assert.Contains(t, []int{1, 3}, res.Failed[0].Row)
			}

			for _, row := range res.Succeeded {
				stored := f.store.students[row.StudentID]
				require.NotNil(t, stored)
				assert.Equal(t, rows[row.Row-1].RollNumber, stored.RollNumber, "row %d", row.Row)
			}
		}
	}
}

func TestBulkProvisionRecoversFromRowPanic(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{BulkConcurrency: 3})
	f.store.panicOnRoll = "B2"
	rows := []dto.ProvisionSubjectRequest{
		studentRequest("B1", "b1@example.com"),
		studentRequest("B2", "b2@example.com"),
		studentRequest("B3", "b3@example.com"),
	}

	res, err := f.svc.BulkProvisionSubjects(context.Background(), "col-1", rows)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 2, res.Failed[0].Row)
	assert.Equal(t, appErrors.ErrInternal.Code, res.Failed[0].Code)
	assert.Len(t, res.Succeeded, 2)
}

func TestBulkProvisionRejectsBadBatches(t *testing.T) {
	f := newProvisioningFixture(t, ProvisioningConfig{BulkMaxRows: 2})
	ctx := context.Background()

	_, err := f.svc.BulkProvisionSubjects(ctx, "col-1", nil)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	rows := []dto.ProvisionSubjectRequest{
		studentRequest("B1", "b1@example.com"),
		studentRequest("B2", "b2@example.com"),
		studentRequest("B3", "b3@example.com"),
	}
	_, err = f.svc.BulkProvisionSubjects(ctx, "col-1", rows)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.BulkProvisionSubjects(ctx, "missing", rows[:1])
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Equal(t, 0, f.store.studentCount())
}
