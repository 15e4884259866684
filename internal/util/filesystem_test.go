package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestDetectFilesystemCaseSensitivity(t *testing.T) {
	// Create a temp directory for testing
	tempDir, err := os.MkdirTemp("", "dcat-fs-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	caseSensitive, err := DetectFilesystemCaseSensitivity(tempDir)
	if err != nil {
		t.Fatalf("DetectFilesystemCaseSensitivity failed: %v", err)
	}

	t.Logf("Detected filesystem case sensitivity: %v (OS: %s)", caseSensitive, runtime.GOOS)

	// Verify the detection by actually testing
	testFile1 := filepath.Join(tempDir, "TestCase.txt")
	testFile2 := filepath.Join(tempDir, "testcase.txt")

	// Create first file
	f, err := os.Create(testFile1)
	if err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	f.Close()

	// Check if second file (different case) exists
	_, err = os.Stat(testFile2)
	fileExists := (err == nil)

	if caseSensitive {
		// On case-sensitive FS, different case = different file
		if fileExists {
			t.Error("Case-sensitive FS detected, but files with different cases collide")
		}
	} else {
		// On case-insensitive FS, different case = same file
		if !fileExists {
			t.Error("Case-insensitive FS detected, but files with different cases don't collide")
		}
	}
}

func TestNormalizePath(t *testing.T) {
	testCases := []struct {
		name          string
		path          string
		caseSensitive bool
		expected      string
	}{
		{
			name:          "case-sensitive: no change",
			path:          "/Data/Flights/Bay8D",
			caseSensitive: true,
			expected:      "/Data/Flights/Bay8D",
		},
		{
			name:          "case-insensitive: lowercase",
			path:          "/Data/Flights/Bay8D",
			caseSensitive: false,
			expected:      "/data/flights/bay8d",
		},
		{
			name:          "case-insensitive: mixed case",
			path:          "/Site North/8B-7F",
			caseSensitive: false,
			expected:      "/site north/8b-7f",
		},
		{
			name:          "case-sensitive: preserve case",
			path:          "/Site North/8B-7F",
			caseSensitive: true,
			expected:      "/Site North/8B-7F",
		},
		{
			name:          "case-insensitive: with spaces",
			path:          "/Batch 01/Box/metadata/DJI_0593.MP4.md",
			caseSensitive: false,
			expected:      "/batch 01/box/metadata/dji_0593.mp4.md",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := NormalizePath(tc.path, tc.caseSensitive)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestPathsEqual(t *testing.T) {
	testCases := []struct {
		name          string
		path1         string
		path2         string
		caseSensitive bool
		expected      bool
	}{
		{
			name:          "case-sensitive: exact match",
			path1:         "/Data/Flights/Bay8D",
			path2:         "/Data/Flights/Bay8D",
			caseSensitive: true,
			expected:      true,
		},
		{
			name:          "case-sensitive: different case",
			path1:         "/Data/Flights/Bay8D",
			path2:         "/data/flights/bay8d",
			caseSensitive: true,
			expected:      false,
		},
		{
			name:          "case-insensitive: different case",
			path1:         "/Data/Flights/Bay8D",
			path2:         "/data/flights/bay8d",
			caseSensitive: false,
			expected:      true,
		},
		{
			name:          "case-insensitive: exact match",
			path1:         "/Data/Flights/Bay8D",
			path2:         "/Data/Flights/Bay8D",
			caseSensitive: false,
			expected:      true,
		},
		{
			name:          "case-insensitive: bay folders",
			path1:         "/Site North/8B-7F",
			path2:         "/site north/8b-7f",
			caseSensitive: false,
			expected:      true,
		},
		{
			name:          "case-sensitive: bay folders",
			path1:         "/Site North/8B-7F",
			path2:         "/site north/8b-7f",
			caseSensitive: true,
			expected:      false,
		},
		{
			name:          "case-insensitive: completely different paths",
			path1:         "/Batch1/box",
			path2:         "/Batch2/safety",
			caseSensitive: false,
			expected:      false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := PathsEqual(tc.path1, tc.path2, tc.caseSensitive)
			if result != tc.expected {
				t.Errorf("PathsEqual(%q, %q, caseSensitive=%v): expected %v, got %v",
					tc.path1, tc.path2, tc.caseSensitive, tc.expected, result)
			}
		})
	}
}

func TestNormalizePathCleanup(t *testing.T) {
	// Test that filepath.Clean is applied in both cases
	testCases := []struct {
		name          string
		path          string
		caseSensitive bool
	}{
		{
			name:          "case-sensitive: removes trailing slash",
			path:          "/path/to/dir/",
			caseSensitive: true,
		},
		{
			name:          "case-insensitive: removes trailing slash",
			path:          "/path/to/dir/",
			caseSensitive: false,
		},
		{
			name:          "case-sensitive: resolves ..",
			path:          "/path/to/../other",
			caseSensitive: true,
		},
		{
			name:          "case-insensitive: resolves ..",
			path:          "/path/to/../other",
			caseSensitive: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := NormalizePath(tc.path, tc.caseSensitive)
			cleaned := filepath.Clean(tc.path)
			if tc.caseSensitive {
				if result != cleaned {
					t.Errorf("Case-sensitive path should be cleaned: expected %q, got %q", cleaned, result)
				}
			} else {
				// Case-insensitive should also be cleaned AND lowercased
				expected := NormalizePath(cleaned, false)
				if result != expected {
					t.Errorf("Case-insensitive path should be cleaned and lowercased: expected %q, got %q", expected, result)
				}
			}
		})
	}
}

func TestCheckWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	if err := CheckWritable(dir); err != nil {
		t.Fatalf("CheckWritable failed on fresh dir: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected probe file to be removed, found %d entries", len(entries))
	}
}

func TestCheckWritable_ReadOnly(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	dir := t.TempDir()
	if err := os.Chmod(dir, 0555); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	defer os.Chmod(dir, 0755)

	err := CheckWritable(dir)
	if err == nil {
		t.Fatal("Expected error for read-only directory")
	}
	if !IsFatal(err) {
		t.Errorf("Expected fatal error, got: %v", err)
	}
}

func TestSanitizePathComponent(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"DJI_0593", "DJI_0593"},
		{"Site Survey 2024", "Site Survey 2024"},
		{"Bay/8D", "Bay_8D"},
		{"Bay\\8D", "Bay_8D"},
		{"flight:01", "flight_01"},
		{"what*?", "what"},
		{"<batch>", "batch"},
		{"pipe|name", "pipe_name"},
		{"  padded  ", "padded"},
		{"...dots...", "dots"},
		{"many___underscores", "many_underscores"},
		{"#hash", "hash"},
		{"???", "unnamed"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			result := SanitizePathComponent(tc.input)

			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestSanitizePathComponentLength(t *testing.T) {
	longString := strings.Repeat("a", 250)
	result := SanitizePathComponent(longString)

	if len(result) > 200 {
		t.Errorf("Expected length <= 200, got %d", len(result))
	}
}
