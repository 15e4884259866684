package util

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"ENOSPC", &os.PathError{Op: "write", Path: "/out/x", Err: syscall.ENOSPC}, true},
		{"EROFS", &os.PathError{Op: "mkdir", Path: "/out", Err: syscall.EROFS}, true},
		{"EACCES", syscall.EACCES, true},
		{"wrapped ErrFatal", fmt.Errorf("write index: %w", ErrFatal), true},
		{"ErrDiskFull", ErrDiskFull, true},
		{"ENOENT", syscall.ENOENT, false},
		{"extraction failure", fmt.Errorf("ffprobe: %w", ErrExtraction), false},
		{"path collision", ErrPathCollision, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.expected {
				t.Errorf("IsFatal(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClassifyFSError(t *testing.T) {
	full := ClassifyFSError(&os.PathError{Op: "write", Path: "/out/a", Err: syscall.ENOSPC})
	if !errors.Is(full, ErrDiskFull) {
		t.Errorf("Expected ErrDiskFull, got: %v", full)
	}
	if !errors.Is(full, syscall.ENOSPC) {
		t.Errorf("Expected original errno to be preserved, got: %v", full)
	}

	denied := ClassifyFSError(syscall.EACCES)
	if !errors.Is(denied, ErrPermission) {
		t.Errorf("Expected ErrPermission, got: %v", denied)
	}

	other := errors.New("something else")
	if ClassifyFSError(other) != other {
		t.Error("Expected unrelated error to be returned unchanged")
	}

	if ClassifyFSError(nil) != nil {
		t.Error("Expected nil for nil input")
	}
}
