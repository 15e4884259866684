package semantic

import "fmt"

// band is a half-open numeric range [min, max). A nil bound is open.
type band struct {
	name        string
	min, max    *float64
	description string
}

func bound(v float64) *float64 { return &v }

func (b band) contains(v float64) bool {
	if b.min != nil && v < *b.min {
		return false
	}
	if b.max != nil && v >= *b.max {
		return false
	}
	return true
}

func (b band) row(minCol, maxCol string) Row {
	r := Row{minCol: nil, maxCol: nil, "description": b.description}
	if b.min != nil {
		r[minCol] = *b.min
	}
	if b.max != nil {
		r[maxCol] = *b.max
	}
	return r
}

func findBand(bands []band, v float64) band {
	for _, b := range bands {
		if b.contains(v) {
			return b
		}
	}
	return bands[len(bands)-1]
}

// BandUnknown is used when no value, measured or estimated, exists
const BandUnknown = "unknown"

var altitudeBands = []band{
	{name: "low", max: bound(50), description: "below 50 m"},
	{name: "medium", min: bound(50), max: bound(150), description: "50 m to 150 m"},
	{name: "high", min: bound(150), description: "150 m and above"},
}

var speedBands = []band{
	{name: "hover", max: bound(0.5), description: "stationary or hovering"},
	{name: "slow", min: bound(0.5), max: bound(3), description: "below 3 m/s"},
	{name: "moderate", min: bound(3), max: bound(8), description: "3 m/s to 8 m/s"},
	{name: "fast", min: bound(8), description: "8 m/s and above"},
}

var distanceBands = []band{
	{name: "short", max: bound(100), description: "below 100 m"},
	{name: "medium", min: bound(100), max: bound(500), description: "100 m to 500 m"},
	{name: "long", min: bound(500), max: bound(2000), description: "500 m to 2 km"},
	{name: "extended", min: bound(2000), description: "2 km and above"},
}

// angleBands cover gimbal pitch; -90 looks straight down
var angleBands = []band{
	{name: "nadir", max: bound(-75), description: "camera pointing down"},
	{name: "oblique", min: bound(-75), max: bound(-15), description: "angled toward the structure"},
	{name: "horizontal", min: bound(-15), max: bound(15), description: "level with the horizon"},
	{name: "upward", min: bound(15), description: "camera pointing up"},
}

// AltitudeBand classifies an altitude in metres
func AltitudeBand(m float64) string { return findBand(altitudeBands, m).name }

// SpeedBand classifies a ground speed in m/s
func SpeedBand(ms float64) string { return findBand(speedBands, ms).name }

// DistanceBand classifies a flown distance in metres
func DistanceBand(m float64) string { return findBand(distanceBands, m).name }

// AngleBand classifies a gimbal pitch in degrees
func AngleBand(deg float64) string { return findBand(angleBands, deg).name }

// ResolutionID is the natural key of the resolution dimension
func ResolutionID(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}

// QualityLabel names a resolution by its width
func QualityLabel(w int) string {
	switch {
	case w >= 3840:
		return "4K"
	case w >= 2560:
		return "QHD"
	case w >= 1920:
		return "Full HD"
	case w >= 1280:
		return "HD"
	}
	return "SD"
}

// AspectRatio reduces w:h, e.g. 3840x2160 -> "16:9"
func AspectRatio(w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	a, b := w, h
	for b != 0 {
		a, b = b, a%b
	}
	return fmt.Sprintf("%d:%d", w/a, h/a)
}
