package meta

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Raw bundles whatever each extraction source returned for one video.
// A nil field with an entry in Errors means that source failed; a nil field
// without an entry means it was not attempted.
type Raw struct {
	Path      string
	FileKey   string
	SizeBytes int64

	FFprobe *FFprobeInfo
	Tags    map[string]string
	XMP     *XMPData
	EXIF    *EXIFData
	SRT     *SRTSummary

	Attempted map[Source]bool
	Errors    map[Source]error
}

// iso6709Pattern matches the "©xyz"/"location" tag: +37.7749-122.4194+010.000/
var iso6709Pattern = regexp.MustCompile(`^([+-]\d+(?:\.\d+)?)([+-]\d+(?:\.\d+)?)([+-]\d+(?:\.\d+)?)?`)

// Normalize merges raw per-source output into one VideoRecord.
// Precedence: ffprobe for stream properties, aircraft telemetry (XMP, SRT)
// over container tags over still EXIF for position.
func Normalize(raw *Raw) *VideoRecord {
	rec := &VideoRecord{
		Path:        raw.Path,
		Filename:    filepath.Base(raw.Path),
		FileKey:     raw.FileKey,
		SizeBytes:   raw.SizeBytes,
		Tags:        make(map[string]string),
		Extraction:  make(map[Source]bool),
		ExtractedAt: time.Now().UTC(),
	}

	for src, tried := range raw.Attempted {
		if tried {
			rec.Extraction[src] = raw.Errors[src] == nil
		}
	}
	for src, err := range raw.Errors {
		if err == nil {
			continue
		}
		if rec.Errors == nil {
			rec.Errors = make(map[Source]string)
		}
		rec.Errors[src] = err.Error()
		rec.Extraction[src] = false
	}

	if raw.FFprobe != nil {
		applyFFprobe(rec, raw.FFprobe)
	}

	for k, v := range raw.Tags {
		rec.Tags[k] = v
	}
	if rec.GPS == nil {
		rec.GPS = parseISO6709(getTag(rec.Tags, "location", "xyz", "location-eng", "com.apple.quicktime.location.iso6709"))
	}
	if rec.Make == "" {
		rec.Make = getTag(rec.Tags, "make", "com.apple.quicktime.make", "manufacturer")
	}
	if rec.Model == "" {
		rec.Model = getTag(rec.Tags, "model", "com.apple.quicktime.model")
	}
	if rec.CreatedAt == nil {
		rec.CreatedAt = parseTagTime(getTag(rec.Tags, "creation_time", "date"))
	}

	if raw.XMP != nil {
		applyXMP(rec, raw.XMP)
	}
	if raw.SRT != nil {
		applySRT(rec, raw.SRT)
	}
	if raw.EXIF != nil {
		applyEXIF(rec, raw.EXIF)
	}
	if fm := ParseFilename(raw.Path); fm != nil {
		if rec.CreatedAt == nil {
			rec.CreatedAt = fm.Recorded
		}
		if rec.Make == "" {
			rec.Make = fm.Vendor
		}
	}

	if rec.Telemetry != nil && rec.Telemetry.Empty() {
		rec.Telemetry = nil
	}
	if len(rec.Tags) == 0 {
		rec.Tags = nil
	}

	return rec
}

func applyFFprobe(rec *VideoRecord, info *FFprobeInfo) {
	if info.Format != nil {
		rec.Container = info.Format.FormatName
		if d, err := strconv.ParseFloat(info.Format.Duration, 64); err == nil && d > 0 {
			rec.DurationSec = &d
		}
		if br, err := strconv.Atoi(info.Format.BitRate); err == nil && br > 0 {
			kbps := br / 1000
			rec.BitrateKbps = &kbps
		}
		for k, v := range info.Format.Tags {
			rec.Tags[strings.ToLower(k)] = v
		}
	}

	vs := info.VideoStream()
	if vs == nil {
		return
	}
	rec.Codec = vs.CodecName
	rec.Width = vs.Width
	rec.Height = vs.Height
	rec.FrameRate = parseFrameRate(vs.AvgFrameRate)
	if rec.FrameRate == 0 {
		rec.FrameRate = parseFrameRate(vs.RFrameRate)
	}
	if rec.DurationSec == nil {
		if d, err := strconv.ParseFloat(vs.Duration, 64); err == nil && d > 0 {
			rec.DurationSec = &d
		}
	}
	if rec.BitrateKbps == nil && vs.BitRate.Value > 0 {
		kbps := vs.BitRate.Value / 1000
		rec.BitrateKbps = &kbps
	}
	for k, v := range vs.Tags {
		key := strings.ToLower(k)
		if _, exists := rec.Tags[key]; !exists {
			rec.Tags[key] = v
		}
	}
}

func applyXMP(rec *VideoRecord, x *XMPData) {
	for k, v := range x.Fields {
		rec.Tags["dji:"+k] = v
	}
	if rec.Make == "" {
		rec.Make = x.Fields["make"]
	}
	if rec.Model == "" {
		rec.Model = x.Fields["model"]
	}

	t := ensureTelemetry(rec)
	if v, ok := x.Float("relativealtitude"); ok {
		t.RelativeAltitude = &v
	}
	if v, ok := x.Float("gimbalpitchdegree", "gimbalpitch"); ok {
		t.GimbalPitchDeg = &v
	}
	if v, ok := x.Speed(); ok {
		t.SpeedMS = &v
	}

	lat, okLat := x.Float("gpslatitude", "latitude")
	lon, okLon := x.Float("gpslongitude", "gpslongtitude", "longitude")
	if okLat && okLon && !(lat == 0 && lon == 0) {
		gps := &GPS{Latitude: lat, Longitude: lon}
		if alt, ok := x.Float("absolutealtitude"); ok {
			gps.Altitude = &alt
		}
		rec.GPS = gps
	}
}

func applySRT(rec *VideoRecord, s *SRTSummary) {
	t := ensureTelemetry(rec)
	t.Frames = s.Frames
	if s.FirstFix != nil {
		d := s.DistanceM
		t.DistanceM = &d
		if rec.GPS == nil {
			rec.GPS = s.FirstFix
		}
	}
	if s.AvgSpeedMS != nil && t.SpeedMS == nil {
		t.SpeedMS = s.AvgSpeedMS
	}
	if s.MaxAltitude != nil {
		t.MaxAltitude = s.MaxAltitude
	}
	if rec.CreatedAt == nil && s.StartTime != nil {
		rec.CreatedAt = s.StartTime
	}
	if rec.DurationSec == nil && s.DurationSec > 0 {
		d := s.DurationSec
		rec.DurationSec = &d
	}
	for k, v := range s.Camera {
		rec.Tags["srt:"+k] = v
	}
}

func applyEXIF(rec *VideoRecord, e *EXIFData) {
	if rec.Make == "" {
		rec.Make = e.Make
	}
	if rec.Model == "" {
		rec.Model = e.Model
	}
	if rec.GPS == nil && e.GPS != nil {
		rec.GPS = e.GPS
	}
	if rec.CreatedAt == nil && e.Taken != nil {
		rec.CreatedAt = e.Taken
	}
}

func ensureTelemetry(rec *VideoRecord) *Telemetry {
	if rec.Telemetry == nil {
		rec.Telemetry = &Telemetry{}
	}
	return rec.Telemetry
}

func parseISO6709(s string) *GPS {
	m := iso6709Pattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lon, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	gps := &GPS{Latitude: lat, Longitude: lon}
	if m[3] != "" {
		if alt, err := strconv.ParseFloat(m[3], 64); err == nil {
			gps.Altitude = &alt
		}
	}
	return gps
}

func parseTagTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000000Z", "2006-01-02 15:04:05", "2006:01:02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
