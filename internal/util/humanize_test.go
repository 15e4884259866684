package util

import "testing"

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in       int64
		expected string
	}{
		{0, "0 B"},
		{-5, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in       float64
		expected string
	}{
		{0, "0:00"},
		{25, "0:25"},
		{25.4, "0:25"},
		{125, "2:05"},
		{3725, "1:02:05"},
	}

	for _, tt := range tests {
		if got := FormatSeconds(tt.in); got != tt.expected {
			t.Errorf("FormatSeconds(%v) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}

func TestStableSuffix(t *testing.T) {
	a := StableSuffix("/data/north/clip.mp4")
	b := StableSuffix("/data/north/clip.mp4")
	c := StableSuffix("/data/south/clip.mp4")

	if a != b {
		t.Errorf("Expected stable suffix, got %q and %q", a, b)
	}
	if a == c {
		t.Errorf("Expected different suffixes for different paths, both %q", a)
	}
	if len(a) != 8 {
		t.Errorf("Expected 8 hex digits, got %q", a)
	}
}
