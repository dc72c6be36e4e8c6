package auth_test

import (
	"errors"
	"fmt"
	"testing"

	auth "github.com/felapi/fel-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrValidation, 422},
		{auth.ErrEmailAlreadyRegistered, 409},
		{auth.ErrInvalidCredentials, 401},
		{auth.ErrPendingVerification, 403},
		{auth.ErrAccountNotActive, 403},
		{auth.ErrInvalidOrExpiredCode, 400},
		{auth.ErrUserNotFound, 404},
		{auth.ErrForbidden, 403},
		{auth.ErrInvalidRole, 422},
		{auth.ErrEmailDelivery, 500},
		{errors.New("boom"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, auth.StatusCode(tt.err))
		})
	}
}

func TestIsErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", auth.ErrUserNotFound)

	assert.True(t, auth.IsErrorCode(auth.ErrUserNotFound, auth.TextCodeUserNotFound))
	assert.False(t, auth.IsErrorCode(auth.ErrUserNotFound, auth.TextCodeForbidden))
	assert.False(t, auth.IsErrorCode(errors.New("plain"), auth.TextCodeUserNotFound))
	assert.True(t, auth.IsErrorCode(wrapped, auth.TextCodeUserNotFound))
	assert.Equal(t, 404, auth.StatusCode(wrapped))
}

func TestValidationError(t *testing.T) {
	err := auth.ValidationError(map[string][]string{"email": {"cannot be blank"}})

	assert.True(t, auth.IsErrorCode(err, auth.TextCodeValidationFailed))
	assert.Equal(t, 422, auth.StatusCode(err))

	fields, ok := err.Metadata["errors"].(map[string][]string)
	require.True(t, ok)
	assert.Equal(t, []string{"cannot be blank"}, fields["email"])

	// the shared sentinel stays untouched
	assert.Empty(t, auth.ErrValidation.Metadata)
}
