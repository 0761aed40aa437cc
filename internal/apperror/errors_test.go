package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationMessage(t *testing.T) {
	msg, ok := ValidationMessage(NewValidation("Passwords need to match."))
	assert.True(t, ok)
	assert.Equal(t, "Passwords need to match.", msg)

	wrapped := fmt.Errorf("register: %w", NewValidation("Username is already in use."))
	msg, ok = ValidationMessage(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "Username is already in use.", msg)

	_, ok = ValidationMessage(NewInternal(errors.New("db down")))
	assert.False(t, ok)

	_, ok = ValidationMessage(errors.New("plain"))
	assert.False(t, ok)
}

func TestSafeCode(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, SafeCode(NewValidation("x")))
	assert.Equal(t, http.StatusNotFound, SafeCode(NewNotFound("x")))
	assert.Equal(t, http.StatusInternalServerError, SafeCode(errors.New("boom")))
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:3306: connection refused")
	err := NewInternal(cause)

	assert.NotContains(t, err.Message, "10.0.0.5")
	assert.ErrorIs(t, err, cause)
}
