package meta

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// StillExtensions are the sidecar still-image extensions looked up next to a video
var StillExtensions = []string{".JPG", ".jpg", ".jpeg", ".JPEG", ".DNG", ".dng"}

// EXIFData is the subset of a sidecar still's EXIF block used by the normalizer
type EXIFData struct {
	Path     string
	Make     string
	Model    string
	Taken    *time.Time
	GPS      *GPS
	Software string
}

// FindSidecar returns the first existing file that shares the video's stem
// and has one of the given extensions, or "" when there is none.
func FindSidecar(videoPath string, exts []string) string {
	stem := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	for _, ext := range exts {
		candidate := stem + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// ReadEXIF decodes the EXIF block of a still image
func ReadEXIF(path string) (*EXIFData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open still: %w", err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("no EXIF data found: %w", err)
	}

	data := &EXIFData{
		Path:     path,
		Make:     exifString(x, exif.Make),
		Model:    exifString(x, exif.Model),
		Software: exifString(x, exif.Software),
	}

	if t, err := x.DateTime(); err == nil {
		data.Taken = &t
	}

	if lat, long, err := x.LatLong(); err == nil {
		gps := &GPS{Latitude: lat, Longitude: long}
		if alt, err := x.Get(exif.GPSAltitude); err == nil {
			if v, ok := ratFloat(alt); ok {
				if ref, err := x.Get(exif.GPSAltitudeRef); err == nil && ref.String() == "1" {
					v = -v
				}
				gps.Altitude = &v
			}
		}
		data.GPS = gps
	}

	return data, nil
}

func exifString(x *exif.Exif, field exif.FieldName) string {
	t, err := x.Get(field)
	if err != nil {
		return ""
	}
	s, err := t.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

func ratFloat(t *tiff.Tag) (float64, bool) {
	r, err := t.Rat(0)
	if err != nil || r.Denom().Sign() == 0 {
		return 0, false
	}
	f, _ := r.Float64()
	return f, true
}
