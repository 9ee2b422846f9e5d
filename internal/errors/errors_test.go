package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"AppError", New(CodeNotFound, "missing"), CodeNotFound},
		{"Wrapped AppError", fmt.Errorf("ctx: %w", New(CodePolicyRejected, "blocked")), CodePolicyRejected},
		{"Plain error", fmt.Errorf("boom"), CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("disk full")
	err := Wrap(inner, CodeEngineFailure, "engine add failed")

	assert.ErrorIs(t, err, inner)
	assert.True(t, Is(err, CodeEngineFailure))
	assert.False(t, Is(nil, CodeEngineFailure))
}

func TestSanitizeMessage(t *testing.T) {
	t.Setenv("HOME", "/home/alice")
	t.Setenv("USERPROFILE", "")
	t.Setenv("APPDATA", "")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"First line only", "first\nsecond", "first"},
		{"Home masked", "open /home/alice/Downloads/x: denied", "open ~/Downloads/x: denied"},
		{"Token redacted", "bad admin token abc", genericMessage},
		{"Secret redacted", "Client SECRET leaked", genericMessage},
		{"Short untouched", "torrent not found", "torrent not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeMessage(tt.in))
		})
	}
}

func TestSanitizeMessage_Truncates(t *testing.T) {
	got := SanitizeMessage(strings.Repeat("x", 500))
	assert.Len(t, got, maxVisibleLen+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSanitize_AppError(t *testing.T) {
	err := Wrap(fmt.Errorf("connection reset\nstack"), CodeEngineFailure, "engine action failed")
	assert.Equal(t, "engine action failed: connection reset", Sanitize(err))
	assert.Equal(t, "", Sanitize(nil))
}
