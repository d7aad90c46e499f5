package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NotFound("job missing")
	assert.Equal(t, "job missing", err.Error())

	wrapped := Wrap(stderrors.New("row not found"), ErrCodeNotFound, "lookup failed")
	assert.Equal(t, "lookup failed: row not found", wrapped.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeInternal, "query failed")

	assert.ErrorIs(t, err, cause)

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, ErrCodeInternal, appErr.Code)
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "ignored %d", 1))
}

func TestCodePredicates(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundf("job %q missing", "x")))
	assert.True(t, IsConflict(Conflictf("job %q exists", "x")))
	assert.True(t, IsValidation(Validationf("bad cron %q", "x")))
	assert.True(t, IsInternal(Internal("boom")))

	assert.False(t, IsNotFound(Conflict("nope")))
	assert.False(t, IsConflict(nil))
	assert.False(t, IsValidation(stderrors.New("plain")))
}

func TestCodePredicates_ThroughWrapping(t *testing.T) {
	inner := Validation("invalid cron expression")
	outer := fmt.Errorf("register job: %w", inner)

	assert.True(t, IsValidation(outer))
	assert.Equal(t, ErrCodeValidation, GetCode(outer))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, GetCode(&AppError{Code: ErrCodeTimeout, Message: "slow"}))
	assert.Equal(t, ErrorCode(""), GetCode(stderrors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetCode(nil))
}
