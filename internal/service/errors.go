package service

import "fmt"

// ErrorCode identifica cada entrada de la taxonomia de errores de negocio.
type ErrorCode string

const (
	CodeInvalidInput          ErrorCode = "INVALID_INPUT"
	CodeConflict              ErrorCode = "CONFLICT"
	CodeInvalidCredentials    ErrorCode = "INVALID_CREDENTIALS"
	CodeAccountLocked         ErrorCode = "ACCOUNT_LOCKED"
	CodeRateLimited           ErrorCode = "RATE_LIMITED"
	CodeInvalidToken          ErrorCode = "INVALID_TOKEN"
	CodeNoTokenProvided       ErrorCode = "NO_TOKEN_PROVIDED"
	CodeInvalidOrExpiredToken ErrorCode = "INVALID_OR_EXPIRED_TOKEN"
	CodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	CodeNotFound              ErrorCode = "NOT_FOUND"
)

// Error es el unico tipo de error de negocio. errors.Is compara por Code.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// InvalidInput construye un error de validacion con detalles opcionales por campo.
func InvalidInput(message string, details map[string]string) *Error {
	return &Error{Code: CodeInvalidInput, Message: message, Details: details}
}

var (
	ErrInvalidInput          = newError(CodeInvalidInput, "Invalid input")
	ErrEmailRegistered       = newError(CodeConflict, "Email already registered")
	ErrInvalidCredentials    = newError(CodeInvalidCredentials, "Invalid credentials")
	ErrAccountLocked         = newError(CodeAccountLocked, "Account temporarily locked. Please try again later")
	ErrRateLimited           = newError(CodeRateLimited, "Too many requests, please try again later")
	ErrInvalidToken          = newError(CodeInvalidToken, "Invalid token")
	ErrInvalidRefreshToken   = newError(CodeInvalidToken, "Invalid refresh token")
	ErrNoTokenProvided       = newError(CodeNoTokenProvided, "No token provided")
	ErrInvalidOrExpiredToken = newError(CodeInvalidOrExpiredToken, "Invalid or expired reset token")
	ErrUserNotFound          = newError(CodeNotFound, "User not found")
	ErrInactiveUser          = newError(CodeUnauthorized, "User not found or inactive")
	ErrWrongCurrentPassword  = newError(CodeUnauthorized, "Current password is incorrect")
	ErrWrongPassword         = newError(CodeUnauthorized, "Password is incorrect")
)
