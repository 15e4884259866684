package meta

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	srtTimingPattern    = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)
	srtFieldPattern     = regexp.MustCompile(`([a-z_]+)\s*:\s*([^\s\[\]]+)`)
	srtTimestampPattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})[,.](\d{3})`)
)

// SRTExtensions are the telemetry sidecar extensions DJI writes next to a clip
var SRTExtensions = []string{".SRT", ".srt"}

const earthRadiusM = 6371000.0

// SRTFrame is one subtitle block of a DJI telemetry sidecar
type SRTFrame struct {
	Index  int
	Start  time.Duration
	End    time.Duration
	Time   *time.Time
	Fields map[string]string
	GPS    *GPS
}

// SRTSummary condenses the per-frame telemetry of one clip
type SRTSummary struct {
	Frames      int
	DurationSec float64
	StartTime   *time.Time
	FirstFix    *GPS
	MaxAltitude *float64
	DistanceM   float64
	AvgSpeedMS  *float64
	Camera      map[string]string
}

// ReadSRT parses a DJI SRT sidecar file and summarizes it
func ReadSRT(path string) (*SRTSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sidecar: %w", err)
	}
	defer f.Close()

	frames, err := ParseSRT(f)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no telemetry frames in %s", path)
	}
	return SummarizeSRT(frames), nil
}

// ParseSRT reads subtitle blocks. Blocks that do not parse are skipped.
func ParseSRT(r io.Reader) ([]SRTFrame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var frames []SRTFrame
	var block []string

	flush := func() {
		if frame, ok := parseSRTBlock(block); ok {
			frames = append(frames, frame)
		}
		block = block[:0]
	}

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return frames, fmt.Errorf("failed to read sidecar: %w", err)
	}
	return frames, nil
}

func parseSRTBlock(lines []string) (SRTFrame, bool) {
	if len(lines) < 3 {
		return SRTFrame{}, false
	}

	idx, err := strconv.Atoi(lines[0])
	if err != nil {
		return SRTFrame{}, false
	}

	m := srtTimingPattern.FindStringSubmatch(lines[1])
	if m == nil {
		return SRTFrame{}, false
	}

	frame := SRTFrame{
		Index:  idx,
		Start:  srtOffset(m[1:5]),
		End:    srtOffset(m[5:9]),
		Fields: make(map[string]string),
	}

	content := strings.Join(lines[2:], " ")
	content = strings.NewReplacer("<font size=\"28\">", "", "</font>", "").Replace(content)

	if ts := srtTimestampPattern.FindStringSubmatch(content); ts != nil {
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", ts[1], time.Local); err == nil {
			ms, _ := strconv.Atoi(ts[2])
			t = t.Add(time.Duration(ms) * time.Millisecond)
			frame.Time = &t
		}
	}

	for _, fm := range srtFieldPattern.FindAllStringSubmatch(content, -1) {
		frame.Fields[fm[1]] = fm[2]
	}

	lat, okLat := srtFloat(frame.Fields, "latitude")
	lon, okLon := srtFloat(frame.Fields, "longitude", "longtitude")
	if okLat && okLon && !(lat == 0 && lon == 0) {
		gps := &GPS{Latitude: lat, Longitude: lon}
		if alt, ok := srtFloat(frame.Fields, "rel_alt", "altitude", "abs_alt"); ok {
			gps.Altitude = &alt
		}
		frame.GPS = gps
	}

	return frame, true
}

// SummarizeSRT computes distance flown, average speed and altitude range
func SummarizeSRT(frames []SRTFrame) *SRTSummary {
	s := &SRTSummary{Frames: len(frames), Camera: make(map[string]string)}
	if len(frames) == 0 {
		return s
	}

	s.DurationSec = (frames[len(frames)-1].End - frames[0].Start).Seconds()
	s.StartTime = frames[0].Time

	for _, key := range []string{"iso", "shutter", "fnum", "ev", "ct", "color_md", "focal_len"} {
		if v, ok := frames[0].Fields[key]; ok {
			s.Camera[key] = v
		}
	}

	var prev *GPS
	for i := range frames {
		gps := frames[i].GPS
		if gps == nil {
			continue
		}
		if s.FirstFix == nil {
			s.FirstFix = gps
		}
		if gps.Altitude != nil && (s.MaxAltitude == nil || *gps.Altitude > *s.MaxAltitude) {
			alt := *gps.Altitude
			s.MaxAltitude = &alt
		}
		if prev != nil {
			s.DistanceM += haversine(prev.Latitude, prev.Longitude, gps.Latitude, gps.Longitude)
		}
		prev = gps
	}

	if s.FirstFix != nil && s.DurationSec > 0 {
		speed := s.DistanceM / s.DurationSec
		s.AvgSpeedMS = &speed
	}

	return s
}

func srtOffset(parts []string) time.Duration {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	sec, _ := strconv.Atoi(parts[2])
	ms, _ := strconv.Atoi(parts[3])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(ms)*time.Millisecond
}

func srtFloat(fields map[string]string, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// haversine returns the great-circle distance in metres
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}
