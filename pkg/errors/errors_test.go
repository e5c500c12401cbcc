package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	typed := Clone(ErrConflict, "duplicate roll number")
	wrapped := fmt.Errorf("provision: %w", typed)

	got := FromError(wrapped)
	assert.Equal(t, ErrConflict.Code, got.Code)
	assert.Equal(t, "duplicate roll number", got.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.ErrorIs(t, got, sql.ErrConnDone)
}

func TestClonesMatchTemplateWithErrorsIs(t *testing.T) {
	err := Clone(ErrNotFound, "student not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.True(t, errors.Is(fmt.Errorf("ctx: %w", err), ErrNotFound))
}

func TestInternalWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Internal(cause, "failed to commit")
	assert.Equal(t, "failed to commit: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestValidationListsFieldRules(t *testing.T) {
	type payload struct {
		RollNumber string `validate:"required,max=4"`
		Email      string `validate:"required,email"`
	}
	err := validator.New().Struct(payload{RollNumber: "A10199", Email: "nope"})

	got := Validation(err, "invalid student payload")
	assert.Equal(t, ErrValidation.Code, got.Code)
	assert.Equal(t, http.StatusBadRequest, got.Status)
	assert.Equal(t, map[string]string{"rollNumber": "max=4", "email": "email"}, got.Fields)
}

func TestValidationWithoutFieldErrors(t *testing.T) {
	got := Validation(errors.New("unexpected EOF"), "invalid payload")
	assert.Nil(t, got.Fields)
	assert.Equal(t, "invalid payload: unexpected EOF", got.Error())
}

func TestUseJSONNames(t *testing.T) {
	type payload struct {
		RollNumber string `json:"roll_number" validate:"required"`
	}
	v := validator.New()
	UseJSONNames(v)

	got := Validation(v.Struct(payload{}), "invalid payload")
	assert.Equal(t, map[string]string{"roll_number": "required"}, got.Fields)
}
