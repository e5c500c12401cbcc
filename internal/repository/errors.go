package repository

import (
	"errors"

	"github.com/noah-isme/sma-identity-api/pkg/database"
)

// Unique constraint names from the schema.
const (
	constraintUserLoginID       = "users_login_id_key"
	constraintUserEmail         = "users_email_key"
	constraintStudentRollNumber = "students_tenant_id_roll_number_key"
	constraintTeacherEmployeeID = "teachers_tenant_id_employee_id_key"
)

// Conflict sentinels translated from storage unique violations.
var (
	ErrLoginIDTaken        = errors.New("login id already taken")
	ErrEmailTaken          = errors.New("email already taken")
	ErrDuplicateRollNumber = errors.New("roll number already used in tenant")
	ErrDuplicateEmployeeID = errors.New("employee id already used in tenant")
)

// classifyUnique maps a unique violation onto its sentinel, joined with the
// driver error so callers can still inspect it. Other errors pass through.
func classifyUnique(err error) error {
	constraint, ok := database.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case constraintUserLoginID:
		return errors.Join(ErrLoginIDTaken, err)
	case constraintUserEmail:
		return errors.Join(ErrEmailTaken, err)
	case constraintStudentRollNumber:
		return errors.Join(ErrDuplicateRollNumber, err)
	case constraintTeacherEmployeeID:
		return errors.Join(ErrDuplicateEmployeeID, err)
	}
	return err
}
