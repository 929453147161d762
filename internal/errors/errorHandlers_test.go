package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		kind   ErrorType
	}{
		{"authentication", NewAuthenticationError(CodeTokenExpired, "token expired"), http.StatusUnauthorized, ErrorTypeAuthentication},
		{"access denied", NewAccessDeniedError("not a participant"), http.StatusForbidden, ErrorTypeAccessDenied},
		{"not found", NewNotFoundError("conversation not found"), http.StatusNotFound, ErrorTypeNotFound},
		{"validation", NewValidationError("content is required"), http.StatusBadRequest, ErrorTypeValidation},
		{"capacity", NewCapacityError("partner is at capacity"), http.StatusTooManyRequests, ErrorTypeCapacity},
		{"credits", NewInsufficientCreditsError("insufficient credits"), http.StatusPaymentRequired, ErrorTypeInsufficientCredits},
		{"conflict", NewConflictError("already ended"), http.StatusConflict, ErrorTypeConflict},
		{"wrapped", fmt.Errorf("accept: %w", NewCapacityError("full")), http.StatusTooManyRequests, ErrorTypeCapacity},
		{"plain", fmt.Errorf("database unavailable"), http.StatusInternalServerError, ErrorTypeInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)

			HandleError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var body struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
				Error   struct {
					Type ErrorType `json:"type"`
					Code string    `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Message)
			assert.Equal(t, tc.kind, body.Error.Type)
		})
	}
}

func TestAuthenticationCodeIsKept(t *testing.T) {
	err := NewAuthenticationError(CodeMissingToken, "Authorization header is required")
	assert.Equal(t, CodeMissingToken, err.Code)
	assert.True(t, IsType(err, ErrorTypeAuthentication))
	assert.False(t, IsType(err, ErrorTypeConflict))
}

func TestPlainErrorsBecomeInternal(t *testing.T) {
	customErr := AsCustomError(assert.AnError)
	assert.Equal(t, ErrorTypeInternalServerError, customErr.Type)
	assert.ErrorIs(t, customErr, assert.AnError)
	assert.Equal(t, "An unexpected error occurred", customErr.Message)
}
