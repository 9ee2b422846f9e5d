package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
)

type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeDecodeFailure    ErrorCode = "DECODE_FAILURE"
	CodeEngineFailure    ErrorCode = "ENGINE_FAILURE"
	CodePolicyRejected   ErrorCode = "POLICY_REJECTED"
	CodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewNotFound(entity, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s with ID %s not found", entity, id))
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternalError when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

const (
	maxVisibleLen  = 200
	genericMessage = "An error occurred"
)

// Sanitize renders err for display outside the daemon. Only the first line
// survives, user directories are masked and anything mentioning credentials
// is replaced wholesale.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		msg = appErr.Message
		if appErr.Err != nil {
			msg += ": " + appErr.Err.Error()
		}
	}
	return SanitizeMessage(msg)
}

func SanitizeMessage(msg string) string {
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}

	for _, p := range []struct{ env, placeholder string }{
		{"HOME", "~"},
		{"USERPROFILE", "%USERPROFILE%"},
		{"APPDATA", "%APPDATA%"},
	} {
		if dir := os.Getenv(p.env); dir != "" {
			msg = strings.ReplaceAll(msg, dir, p.placeholder)
		}
	}

	lower := strings.ToLower(msg)
	if strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
		return genericMessage
	}

	if runes := []rune(msg); len(runes) > maxVisibleLen {
		msg = string(runes[:maxVisibleLen]) + "..."
	}
	return msg
}
