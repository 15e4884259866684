package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DetectFilesystemCaseSensitivity probes dir by creating a mixed-case file
// and checking whether its lowercase name resolves to the same file.
func DetectFilesystemCaseSensitivity(dir string) (bool, error) {
	probe, err := os.CreateTemp(dir, ".dcat-CaseProbe-*")
	if err != nil {
		return true, fmt.Errorf("failed to create probe file: %w", err)
	}
	name := probe.Name()
	probe.Close()
	defer os.Remove(name)

	lower := filepath.Join(filepath.Dir(name), strings.ToLower(filepath.Base(name)))
	if lower == name {
		return true, nil
	}

	if _, err := os.Stat(lower); err == nil {
		return false, nil
	}
	return true, nil
}

// NormalizePath cleans path and lowercases it on case-insensitive filesystems
// so it can be used as a map key for collision detection.
func NormalizePath(path string, caseSensitive bool) string {
	cleaned := filepath.Clean(path)
	if caseSensitive {
		return cleaned
	}
	return strings.ToLower(cleaned)
}

// PathsEqual compares two paths under the given case sensitivity
func PathsEqual(path1, path2 string, caseSensitive bool) bool {
	return NormalizePath(path1, caseSensitive) == NormalizePath(path2, caseSensitive)
}

// CheckWritable verifies that dir exists (creating it if needed) and accepts
// new files. Failures are returned as fatal errors.
func CheckWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: output root %s: %w", ErrFatal, dir, ClassifyFSError(err))
	}

	probe, err := os.CreateTemp(dir, ".dcat-write-probe-*")
	if err != nil {
		return fmt.Errorf("%w: output root %s not writable: %w", ErrFatal, dir, ClassifyFSError(err))
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return nil
}

// SanitizePathComponent replaces characters that are illegal or awkward in
// file names on common filesystems. An input that sanitizes to nothing
// yields "unnamed"; an empty input stays empty.
func SanitizePathComponent(s string) string {
	if s == "" {
		return ""
	}

	illegal := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "\x00"}
	for _, char := range illegal {
		s = strings.ReplaceAll(s, char, "_")
	}
	s = strings.ReplaceAll(s, "#", "_")

	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}

	// Leading/trailing spaces and dots break Windows shares
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".")
	s = strings.Trim(s, "_")

	if s == "" {
		return "unnamed"
	}

	if len(s) > 200 {
		s = s[:200]
		s = strings.TrimRight(s, " _.")
	}

	return s
}
