package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeAuthentication      ErrorType = "AUTHENTICATION_ERROR"
	ErrorTypeAccessDenied        ErrorType = "ACCESS_DENIED"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeValidation          ErrorType = "VALIDATION_ERROR"
	ErrorTypeCapacity            ErrorType = "CAPACITY_EXCEEDED"
	ErrorTypeInsufficientCredits ErrorType = "INSUFFICIENT_CREDITS"
	ErrorTypeConflict            ErrorType = "CONFLICT"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// Authentication failure codes.
const (
	CodeMissingToken     = "MISSING_TOKEN"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeIdentityNotFound = "IDENTITY_NOT_FOUND"
)

// CodePeerOffline is reported by the signaling relay when the other participant has no connection.
const CodePeerOffline = "PEER_OFFLINE"

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Code       string
	Message    string
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Code:       string(errType),
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewAuthenticationError creates an unauthorized error carrying one of the Code* reasons
func NewAuthenticationError(code, message string) *CustomError {
	e := newError(ErrorTypeAuthentication, message, http.StatusUnauthorized, nil)
	e.Code = code
	return e
}

// NewAccessDeniedError creates a forbidden error
func NewAccessDeniedError(message string) *CustomError {
	return newError(ErrorTypeAccessDenied, message, http.StatusForbidden, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

// NewValidationError creates a bad request error
func NewValidationError(message string) *CustomError {
	return newError(ErrorTypeValidation, message, http.StatusBadRequest, nil)
}

func NewCapacityError(message string) *CustomError {
	return newError(ErrorTypeCapacity, message, http.StatusTooManyRequests, nil)
}

func NewInsufficientCreditsError(message string) *CustomError {
	return newError(ErrorTypeInsufficientCredits, message, http.StatusPaymentRequired, nil)
}

func NewConflictError(message string) *CustomError {
	return newError(ErrorTypeConflict, message, http.StatusConflict, nil)
}

func NewPeerOfflineError() *CustomError {
	e := newError(ErrorTypeNotFound, "Peer is offline", http.StatusNotFound, nil)
	e.Code = CodePeerOffline
	return e
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// AsCustomError unwraps err into a CustomError, treating anything else as internal.
func AsCustomError(err error) *CustomError {
	var customErr *CustomError
	if stderrors.As(err, &customErr) {
		return customErr
	}
	return New500Error(err)
}

// IsType reports whether err is a CustomError of the given type.
func IsType(err error, t ErrorType) bool {
	var customErr *CustomError
	return stderrors.As(err, &customErr) && customErr.Type == t
}

// Body is the JSON shape returned for every failed request.
func Body(customErr *CustomError) gin.H {
	return gin.H{
		"success": false,
		"message": customErr.Message,
		"error": gin.H{
			"type":    customErr.Type,
			"code":    customErr.Code,
			"message": customErr.Message,
		},
	}
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	customErr := AsCustomError(err)

	if customErr.Type == ErrorTypeInternalServerError {
		log.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Internal Server Error")
	}

	c.AbortWithStatusJSON(customErr.StatusCode, Body(customErr))
}

// LogAndReturn500 logs an internal error and returns a 500 error
func LogAndReturn500(internal error) *CustomError {
	log.Error().Err(internal).Msg("Internal Server Error")
	return New500Error(internal)
}
