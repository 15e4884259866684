package semantic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAltitudeBand(t *testing.T) {
	tests := map[float64]string{0: "low", 49.9: "low", 50: "medium", 149.9: "medium", 150: "high", 400: "high", -5: "low"}
	for v, want := range tests {
		assert.Equal(t, want, AltitudeBand(v), "altitude %v", v)
	}
}

func TestAngleBand(t *testing.T) {
	assert.Equal(t, "nadir", AngleBand(-90))
	assert.Equal(t, "oblique", AngleBand(-45))
	assert.Equal(t, "oblique", AngleBand(-60))
	assert.Equal(t, "horizontal", AngleBand(0))
	assert.Equal(t, "upward", AngleBand(20))
}

func TestQualityLabel(t *testing.T) {
	assert.Equal(t, "4K", QualityLabel(3840))
	assert.Equal(t, "4K", QualityLabel(4096))
	assert.Equal(t, "QHD", QualityLabel(2720))
	assert.Equal(t, "Full HD", QualityLabel(1920))
	assert.Equal(t, "HD", QualityLabel(1280))
	assert.Equal(t, "SD", QualityLabel(640))
}

func TestAspectRatio(t *testing.T) {
	assert.Equal(t, "16:9", AspectRatio(1920, 1080))
	assert.Equal(t, "4:3", AspectRatio(4000, 3000))
	assert.Equal(t, "", AspectRatio(0, 1080))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "3", FormatValue(3.0))
	assert.Equal(t, "0.92", FormatValue(0.92))
	assert.Equal(t, "42", FormatValue(42))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "measured", FormatValue(Measured))
	assert.Equal(t, "2024-03-15T12:00:00Z", FormatValue(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)))
}
