package util

import (
	"errors"
	"fmt"
	"syscall"
)

// Sentinel errors for common failure modes
var (
	// ErrUnsupported indicates a file format or operation is not supported
	ErrUnsupported = errors.New("unsupported")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrExtraction marks a metadata source that failed for one video.
	// The video is still processed with the fields that other sources produced.
	ErrExtraction = errors.New("metadata extraction failed")

	// ErrExportSkip marks a record excluded from the fact table
	ErrExportSkip = errors.New("record excluded from export")

	// ErrPathCollision marks two sources resolving to the same output file
	ErrPathCollision = errors.New("output path collision")

	// ErrFatal aborts the whole batch
	ErrFatal = errors.New("fatal output error")

	// ErrPermission indicates the output location is not writable
	ErrPermission = errors.New("permission denied")

	// ErrDiskFull indicates insufficient disk space
	ErrDiskFull = errors.New("disk full")
)

// IsFatal reports whether err is a filesystem-level failure that must stop
// the batch: no space, quota, read-only filesystem or missing permission.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFatal) || errors.Is(err, ErrDiskFull) || errors.Is(err, ErrPermission) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS, syscall.EACCES, syscall.EPERM:
			return true
		}
	}
	return false
}

// ClassifyFSError tags an output error with ErrDiskFull or ErrPermission so
// callers can test it with errors.Is. Other errors are returned unchanged.
func ClassifyFSError(err error) error {
	if err == nil {
		return nil
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return err
	}

	switch errno {
	case syscall.ENOSPC, syscall.EDQUOT:
		return fmt.Errorf("%w: %w", ErrDiskFull, err)
	case syscall.EROFS, syscall.EACCES, syscall.EPERM:
		return fmt.Errorf("%w: %w", ErrPermission, err)
	}
	return err
}
