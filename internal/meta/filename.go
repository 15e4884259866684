package meta

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FilenameMeta holds what a camera-generated filename says about a clip
type FilenameMeta struct {
	Vendor     string
	Recorded   *time.Time
	Sequence   int
	Suffix     string
	Confidence float64 // 0.0-1.0 how confident we are in the parse
}

var filenamePatterns = []struct {
	vendor     string
	re         *regexp.Regexp
	layout     string
	confidence float64
}{
	{
		// DJI_20240315142233_0007_D.MP4
		vendor:     "DJI",
		re:         regexp.MustCompile(`^DJI_(\d{14})_(\d{4})(?:_([A-Z]))?$`),
		layout:     "20060102150405",
		confidence: 0.9,
	},
	{
		// DJI_0007.MP4 (older firmware, no timestamp)
		vendor:     "DJI",
		re:         regexp.MustCompile(`^DJI_(\d{4})$`),
		confidence: 0.6,
	},
	{
		// GH010042.MP4 / GX010042.MP4
		vendor:     "GoPro",
		re:         regexp.MustCompile(`^G[HXOP](\d{2})(\d{4})$`),
		confidence: 0.6,
	},
	{
		// VID_20240315_142233.mp4 (phones and controllers)
		vendor:     "",
		re:         regexp.MustCompile(`^VID_(\d{8}_\d{6})$`),
		layout:     "20060102_150405",
		confidence: 0.5,
	},
}

// ParseFilename recognizes camera naming schemes. Unknown names return nil.
func ParseFilename(path string) *FilenameMeta {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	for _, p := range filenamePatterns {
		m := p.re.FindStringSubmatch(name)
		if m == nil {
			continue
		}

		meta := &FilenameMeta{Vendor: p.vendor, Confidence: p.confidence}
		switch {
		case p.layout != "":
			if t, err := time.ParseInLocation(p.layout, m[1], time.Local); err == nil {
				meta.Recorded = &t
			}
			if len(m) > 2 {
				meta.Sequence, _ = strconv.Atoi(m[2])
			}
			if len(m) > 3 {
				meta.Suffix = m[3]
			}
		case p.vendor == "GoPro":
			meta.Sequence, _ = strconv.Atoi(m[2])
		default:
			meta.Sequence, _ = strconv.Atoi(m[1])
		}
		return meta
	}

	return nil
}
