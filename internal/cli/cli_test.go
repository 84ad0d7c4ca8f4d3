package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestProjectDir(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no args defaults to cwd", nil, "."},
		{"explicit dir", []string{"/tmp/project"}, "/tmp/project"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := projectDir(tt.args); got != tt.want {
				t.Errorf("projectDir(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestStartupErrorWrapping(t *testing.T) {
	cause := errors.New("config.yaml: permission denied")
	err := fmt.Errorf("command failed: %w", &startupError{err: cause})

	var sErr *startupError
	if !errors.As(err, &sErr) {
		t.Fatal("startupError not found in wrapped chain")
	}
	if !errors.Is(err, cause) {
		t.Error("startupError does not unwrap to its cause")
	}
}
