package meta

import (
	"encoding/json"
	"testing"
)

func TestIntOrStringUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "integer value",
			input:    `{"value": 16}`,
			expected: 16,
		},
		{
			name:     "string integer",
			input:    `{"value": "24"}`,
			expected: 24,
		},
		{
			name:     "N/A string",
			input:    `{"value": "N/A"}`,
			expected: 0,
		},
		{
			name:     "empty string",
			input:    `{"value": ""}`,
			expected: 0,
		},
		{
			name:     "zero",
			input:    `{"value": 0}`,
			expected: 0,
		},
		{
			name:     "invalid string",
			input:    `{"value": "invalid"}`,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result struct {
				Value IntOrString `json:"value"`
			}

			err := json.Unmarshal([]byte(tt.input), &result)
			if err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if result.Value.Value != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, result.Value.Value)
			}
		})
	}
}

func TestFFprobeStreamUnmarshal(t *testing.T) {
	// nb_frames and bit_rate arrive as strings from ffprobe
	jsonData := `{
		"index": 0,
		"codec_name": "h264",
		"codec_type": "video",
		"width": 3840,
		"height": 2160,
		"r_frame_rate": "30000/1001",
		"avg_frame_rate": "30000/1001",
		"nb_frames": "5394",
		"duration": "180.013000",
		"bit_rate": "N/A",
		"tags": {"handler_name": "DJI.AVC"}
	}`

	var stream FFprobeStream
	if err := json.Unmarshal([]byte(jsonData), &stream); err != nil {
		t.Fatalf("Failed to unmarshal FFprobeStream: %v", err)
	}

	if stream.CodecName != "h264" {
		t.Errorf("Expected codec_name 'h264', got '%s'", stream.CodecName)
	}
	if stream.Width != 3840 || stream.Height != 2160 {
		t.Errorf("Expected 3840x2160, got %dx%d", stream.Width, stream.Height)
	}
	if stream.NbFrames.Value != 5394 {
		t.Errorf("Expected nb_frames 5394, got %d", stream.NbFrames.Value)
	}
	if stream.BitRate.Value != 0 {
		t.Errorf("Expected bit_rate 0 (from N/A), got %d", stream.BitRate.Value)
	}
	if stream.Tags["handler_name"] != "DJI.AVC" {
		t.Errorf("Expected handler_name tag, got %v", stream.Tags)
	}
}

func TestParseFFprobe_VideoStream(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"index": 0, "codec_name": "mjpeg", "codec_type": "video", "width": 160, "height": 120},
			{"index": 1, "codec_name": "hevc", "codec_type": "video", "width": 1920, "height": 1080, "avg_frame_rate": "25/1"},
			{"index": 2, "codec_name": "aac", "codec_type": "audio"}
		],
		"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.5", "bit_rate": "45000000"}
	}`)

	info, err := ParseFFprobe(data)
	if err != nil {
		t.Fatalf("ParseFFprobe failed: %v", err)
	}

	vs := info.VideoStream()
	if vs == nil {
		t.Fatal("VideoStream returned nil")
	}
	if vs.CodecName != "hevc" {
		t.Errorf("Expected cover art to be skipped, got codec %s", vs.CodecName)
	}
	if info.Format.Duration != "12.5" {
		t.Errorf("Expected format duration 12.5, got %s", info.Format.Duration)
	}
}

func TestParseFFprobe_Invalid(t *testing.T) {
	if _, err := ParseFFprobe([]byte("not json")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"59.94", 59.94},
		{"0/0", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseFrameRate(tt.input); got != tt.want {
				t.Errorf("parseFrameRate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
