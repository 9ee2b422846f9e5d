package engine

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFileExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"Nil", nil, false},
		{"Plain", errors.New("file exists"), true},
		{"Windows", errors.New("Cannot create a file when that file already exists."), true},
		{"Errno", errors.New("EEXIST: open /tmp/x"), true},
		{"Wrapped os error", fmt.Errorf("add: %w", os.ErrExist), true},
		{"Unrelated", errors.New("permission denied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFileExists(tt.err))
		})
	}
}
