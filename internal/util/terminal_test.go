package util

import "testing"

func TestBarWidth(t *testing.T) {
	tests := []struct {
		cols, want int
	}{
		{0, 20},
		{45, 20},
		{80, 26},
		{120, 40},
		{300, 60},
	}
	for _, tt := range tests {
		if got := barWidth(tt.cols); got != tt.want {
			t.Errorf("barWidth(%d) = %d, want %d", tt.cols, got, tt.want)
		}
	}
}

func TestProgressBarWidth(t *testing.T) {
	if w := ProgressBarWidth(); w < 20 || w > 60 {
		t.Errorf("ProgressBarWidth() = %d, want 20..60", w)
	}
}
