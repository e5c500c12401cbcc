package repository

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-identity-api/internal/models"
)

func TestProvisioningStoreCommitsOnSuccess(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewProvisioningStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("SAVEPOINT create_user").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("RELEASE SAVEPOINT create_user").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.Atomic(context.Background(), func(scope ProvisioningScope) error {
		student := &models.Student{TenantID: "t1", CourseID: "c1", RollNumber: "A101"}
		if err := scope.CreateStudent(context.Background(), student); err != nil {
			return err
		}
		return scope.CreateUser(context.Background(), &models.User{LoginID: "ST0001A1010125", Role: models.RoleStudent, StudentID: &student.ID})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisioningStoreRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewProvisioningStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO teachers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	boom := errors.New("identity insert failed")
	err := store.Atomic(context.Background(), func(scope ProvisioningScope) error {
		if err := scope.CreateTeacher(context.Background(), &models.Teacher{TenantID: "t1", EmployeeID: "MATH"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisioningScopeCreateUserRollsBackToSavepointOnCollision(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewProvisioningStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT create_user").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO users").WillReturnError(uniqueViolation(constraintUserLoginID))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT create_user").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT create_user").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("RELEASE SAVEPOINT create_user").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.Atomic(context.Background(), func(scope ProvisioningScope) error {
		user := &models.User{LoginID: "TE0001MATH0125", Role: models.RoleTeacher}
		err := scope.CreateUser(context.Background(), user)
		if !errors.Is(err, ErrLoginIDTaken) {
			return err
		}
		user.LoginID = "TE0001MATH012501"
		return scope.CreateUser(context.Background(), user)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisioningScopeReadsUseTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewProvisioningStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO login_sequences").
		WithArgs("t1", models.RoleParent).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(12))
	mock.ExpectQuery("SELECT login_id FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"login_id"}))
	mock.ExpectCommit()

	err := store.Atomic(context.Background(), func(scope ProvisioningScope) error {
		seq, err := scope.NextSequence(context.Background(), "t1", models.RoleParent)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(12), seq)
		taken, err := scope.TakenLoginIDs(context.Background(), "PA00120125")
		assert.Empty(t, taken)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
