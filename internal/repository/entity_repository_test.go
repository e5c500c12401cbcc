package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-identity-api/internal/models"
)

func TestStudentRepositoryCreateDuplicateRollNumber(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").WillReturnError(uniqueViolation(constraintStudentRollNumber))

	err := repo.Create(context.Background(), nil, &models.Student{TenantID: "t1", CourseID: "c1", RollNumber: "A101"})
	assert.ErrorIs(t, err, ErrDuplicateRollNumber)
}

func TestStudentRepositoryLinkParent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET parent_id = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("s1", "p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE students SET parent_id").
		WithArgs("missing", "p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LinkParent(context.Background(), nil, "s1", "p1"))
	assert.ErrorIs(t, repo.LinkParent(context.Background(), nil, "missing", "p1"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByRollNumber(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM students WHERE tenant_id = $1 AND roll_number = $2)")).
		WithArgs("t1", "A101").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.ExistsByRollNumber(context.Background(), "t1", "A101")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTeacherRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "seq", "employee_id", "full_name", "email", "phone", "expertise", "active", "created_at", "updated_at"}).
		AddRow("te1", "t1", 3, "MATH", "Teacher", "t@example.com", nil, "Algebra", true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE id = $1")).WithArgs("te1").WillReturnRows(rows)

	teacher, err := repo.FindByID(context.Background(), nil, "te1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), teacher.Seq)
	assert.Equal(t, "MATH", teacher.EmployeeID)
	require.NotNil(t, teacher.Expertise)
}

func TestTeacherRepositoryCreateDuplicateEmployeeID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectExec("INSERT INTO teachers").WillReturnError(uniqueViolation(constraintTeacherEmployeeID))

	err := repo.Create(context.Background(), nil, &models.Teacher{TenantID: "t1", EmployeeID: "MATH"})
	assert.ErrorIs(t, err, ErrDuplicateEmployeeID)
}

func TestParentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewParentRepository(db)

	mock.ExpectExec("INSERT INTO parents").WillReturnResult(sqlmock.NewResult(1, 1))

	parent := &models.Parent{TenantID: "t1", Seq: 4, FullName: "Guardian", Email: "g@example.com"}
	require.NoError(t, repo.Create(context.Background(), nil, parent))
	assert.NotEmpty(t, parent.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepositoryFindCourseScopedToTenant(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTenantRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tenant_id, code, name FROM courses WHERE id = $1 AND tenant_id = $2")).
		WithArgs("c1", "t2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindCourse(context.Background(), "t2", "c1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceRepositoryNext(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSequenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO login_sequences (scope, role, value) VALUES ($1, $2, 1)")).
		WithArgs("t1", models.RoleStudent).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))

	value, err := repo.Next(context.Background(), nil, "t1", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, int64(7), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}
