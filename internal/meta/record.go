package meta

import (
	"sort"
	"time"
)

// Source identifies one metadata extraction collaborator
type Source string

const (
	SourceFFprobe Source = "ffprobe"
	SourceTags    Source = "tags"
	SourceEXIF    Source = "exif"
	SourceXMP     Source = "xmp"
	SourceSRT     Source = "srt"
)

// AllSources lists sources in the order the extractor runs them
var AllSources = []Source{SourceFFprobe, SourceTags, SourceXMP, SourceEXIF, SourceSRT}

// GPS is a single position fix. Altitude is optional.
type GPS struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// Telemetry holds flight values measured by the aircraft itself
// (DJI XMP packet or SRT sidecar). Nil fields were not reported.
type Telemetry struct {
	SpeedMS          *float64 `json:"speed_ms,omitempty"`
	DistanceM        *float64 `json:"distance_m,omitempty"`
	GimbalPitchDeg   *float64 `json:"gimbal_pitch_deg,omitempty"`
	RelativeAltitude *float64 `json:"relative_altitude_m,omitempty"`
	MaxAltitude      *float64 `json:"max_altitude_m,omitempty"`
	Frames           int      `json:"frames,omitempty"`
}

// Empty reports whether no telemetry value is present
func (t *Telemetry) Empty() bool {
	return t == nil || (t.SpeedMS == nil && t.DistanceM == nil && t.GimbalPitchDeg == nil &&
		t.RelativeAltitude == nil && t.MaxAltitude == nil)
}

// VideoRecord is the normalized metadata of one video.
// It is built once by Normalize and not modified afterwards.
type VideoRecord struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	FileKey   string `json:"file_key,omitempty"`
	SizeBytes int64  `json:"size_bytes"`

	DurationSec *float64   `json:"duration_sec,omitempty"`
	Width       int        `json:"width,omitempty"`
	Height      int        `json:"height,omitempty"`
	Codec       string     `json:"codec,omitempty"`
	Container   string     `json:"container,omitempty"`
	FrameRate   float64    `json:"frame_rate,omitempty"`
	BitrateKbps *int       `json:"bitrate_kbps,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	Make        string     `json:"make,omitempty"`
	Model       string     `json:"model,omitempty"`

	GPS       *GPS       `json:"gps,omitempty"`
	Telemetry *Telemetry `json:"telemetry,omitempty"`

	// Tags are manufacturer/container tags keyed by lowercase name
	Tags map[string]string `json:"tags,omitempty"`

	// Extraction records which sources were attempted and whether they succeeded
	Extraction map[Source]bool `json:"extraction"`
	// Errors holds the failure text per failed source
	Errors map[Source]string `json:"errors,omitempty"`

	ExtractedAt time.Time `json:"extracted_at"`
}

// HasResolution reports whether both frame dimensions are known
func (r *VideoRecord) HasResolution() bool {
	return r != nil && r.Width > 0 && r.Height > 0
}

// HasDuration reports whether a positive duration is known
func (r *VideoRecord) HasDuration() bool {
	return r != nil && r.DurationSec != nil && *r.DurationSec > 0
}

// Succeeded reports whether at least one source produced data
func (r *VideoRecord) Succeeded() bool {
	for _, ok := range r.Extraction {
		if ok {
			return true
		}
	}
	return false
}

// FailedSources returns the failed sources in stable order
func (r *VideoRecord) FailedSources() []Source {
	var failed []Source
	for _, s := range AllSources {
		if ok, tried := r.Extraction[s]; tried && !ok {
			failed = append(failed, s)
		}
	}
	return failed
}

// MissingFields lists the core fields that extraction could not fill
func (r *VideoRecord) MissingFields() []string {
	var missing []string
	if !r.HasDuration() {
		missing = append(missing, "duration")
	}
	if !r.HasResolution() {
		missing = append(missing, "resolution")
	}
	if r.Codec == "" {
		missing = append(missing, "codec")
	}
	if r.GPS == nil {
		missing = append(missing, "gps")
	}
	return missing
}

// Altitude returns the best known altitude in metres: relative altitude
// reported by the aircraft first, then the GPS altitude.
func (r *VideoRecord) Altitude() (float64, bool) {
	if r == nil {
		return 0, false
	}
	if r.Telemetry != nil {
		if r.Telemetry.RelativeAltitude != nil {
			return *r.Telemetry.RelativeAltitude, true
		}
		if r.Telemetry.MaxAltitude != nil {
			return *r.Telemetry.MaxAltitude, true
		}
	}
	if r.GPS != nil && r.GPS.Altitude != nil {
		return *r.GPS.Altitude, true
	}
	return 0, false
}

// TagKeys returns the manufacturer tag names sorted
func (r *VideoRecord) TagKeys() []string {
	keys := make([]string, 0, len(r.Tags))
	for k := range r.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
