package semantic

import (
	"fmt"
	"maps"
	"math"
	"strings"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/meta"
	"github.com/franz/drone-catalog/internal/report"
	"github.com/franz/drone-catalog/internal/util"
)

// Item is one classified video of a batch
type Item struct {
	Record     *meta.VideoRecord
	Assignment classify.Assignment
}

// Skip records a video left out of the fact table
type Skip struct {
	Path string
	Err  error
}

// Tables is the result of one export
type Tables struct {
	Facts      *Table
	Altitude   *Table
	Bay        *Table
	Resolution *Table
	Speed      *Table
	Distance   *Table
	Angle      *Table

	Skipped []Skip
}

// All returns the tables in output order
func (t *Tables) All() []*Table {
	return []*Table{t.Facts, t.Altitude, t.Bay, t.Resolution, t.Speed, t.Distance, t.Angle}
}

// Get returns a table by name, or nil
func (t *Tables) Get(name string) *Table {
	for _, tbl := range t.All() {
		if tbl.Name == name {
			return tbl
		}
	}
	return nil
}

// ForMission narrows the tables to the facts of one mission. Flight ids are
// those of the full export, so a video keeps its id in both sets. Dimension
// rows follow first sight in the kept facts, and a bay's first_flight is
// its first kept flight.
func (t *Tables) ForMission(m classify.Mission) *Tables {
	facts := newTable(t.Facts.Name, t.Facts.Columns...)
	for _, r := range t.Facts.Rows {
		if r["mission_type"] == string(m) {
			facts.Rows = append(facts.Rows, r)
		}
	}

	out := &Tables{
		Facts:      facts,
		Altitude:   narrow(t.Altitude, "altitude_band", facts),
		Bay:        narrow(t.Bay, "bay_id", facts),
		Resolution: narrow(t.Resolution, "resolution_id", facts),
		Speed:      narrow(t.Speed, "speed_band", facts),
		Distance:   narrow(t.Distance, "distance_band", facts),
		Angle:      narrow(t.Angle, "angle_band", facts),
	}

	first := make(map[any]any)
	for _, r := range facts.Rows {
		if bay := r["bay_id"]; bay != nil {
			if _, ok := first[bay]; !ok {
				first[bay] = r["flight_id"]
			}
		}
	}
	for i, r := range out.Bay.Rows {
		row := maps.Clone(r)
		row["first_flight"] = first[r["bay_id"]]
		out.Bay.Rows[i] = row
	}
	return out
}

// narrow keeps the rows of dim referenced by facts through the key column
func narrow(dim *Table, key string, facts *Table) *Table {
	byKey := make(map[any]Row, len(dim.Rows))
	for _, r := range dim.Rows {
		byKey[r[key]] = r
	}
	out := newTable(dim.Name, dim.Columns...)
	seen := make(map[any]bool)
	for _, f := range facts.Rows {
		k := f[key]
		if k == nil || seen[k] {
			continue
		}
		seen[k] = true
		if r, ok := byKey[k]; ok {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

var factColumns = []string{
	"flight_id", "video_filename", "source_path",
	"duration_seconds", "file_size_mb",
	"resolution_width", "resolution_height", "resolution_id",
	"video_codec", "frame_rate", "bitrate_kbps",
	"gps_latitude", "gps_longitude",
	"altitude_m", "altitude_provenance", "altitude_band",
	"speed_ms", "speed_provenance", "speed_band",
	"distance_m", "distance_provenance", "distance_band",
	"gimbal_angle_deg", "angle_provenance", "angle_band",
	"mission_type", "mission_confidence", "classification_method", "bay_id",
	"recorded_at", "extraction_timestamp", "processing_success",
}

// Exporter turns a classified batch into a fact table and its dimensions.
// Export is not safe for concurrent use; run it once after classification.
type Exporter struct {
	cfg    Config
	logger *report.EventLogger
}

// New creates an exporter with a validated copy of cfg
func New(cfg Config, logger *report.EventLogger) (*Exporter, error) {
	cfg = cfg.clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Exporter{cfg: cfg, logger: logger}, nil
}

// Export builds all tables. Records without duration or resolution are
// reported in Skipped and do not stop the export.
func (e *Exporter) Export(items []Item) *Tables {
	t := &Tables{
		Facts:      newTable(TableFacts, factColumns...),
		Altitude:   newTable(TableAltitude, "altitude_band", "min_m", "max_m", "description"),
		Bay:        newTable(TableBay, "bay_id", "bay_name", "bay_type", "first_flight"),
		Resolution: newTable(TableResolution, "resolution_id", "width", "height", "quality_category", "aspect_ratio", "megapixels"),
		Speed:      newTable(TableSpeed, "speed_band", "min_ms", "max_ms", "description"),
		Distance:   newTable(TableDistance, "distance_band", "min_m", "max_m", "description"),
		Angle:      newTable(TableAngle, "angle_band", "min_deg", "max_deg", "description"),
	}

	altitudeDim := newDimension(t.Altitude, "altitude_band")
	bayDim := newDimension(t.Bay, "bay_id")
	resolutionDim := newDimension(t.Resolution, "resolution_id")
	speedDim := newDimension(t.Speed, "speed_band")
	distanceDim := newDimension(t.Distance, "distance_band")
	angleDim := newDimension(t.Angle, "angle_band")

	for _, it := range items {
		rec := it.Record
		if err := checkRequired(rec); err != nil {
			path := ""
			if rec != nil {
				path = rec.Path
			}
			util.WarnLog("Skipping %s in semantic export: %v", path, err)
			e.logger.LogExportSkip(path, err.Error())
			t.Skipped = append(t.Skipped, Skip{Path: path, Err: err})
			continue
		}

		flightID := fmt.Sprintf("flight_%03d", len(t.Facts.Rows)+1)
		row := e.factRow(flightID, rec, it.Assignment)
		t.Facts.Rows = append(t.Facts.Rows, row)

		altBand := row["altitude_band"].(string)
		altitudeDim.add(altBand, func() Row {
			if altBand == BandUnknown {
				return Row{"min_m": nil, "max_m": nil, "description": "no measured or estimated altitude"}
			}
			return findBandByName(altitudeBands, altBand).row("min_m", "max_m")
		})

		if bay := it.Assignment.Bay; bay != "" {
			bayDim.add(bay, func() Row {
				return Row{"bay_name": bay, "bay_type": bayType(bay), "first_flight": flightID}
			})
		}

		resolutionDim.add(row["resolution_id"].(string), func() Row {
			return Row{
				"width":            rec.Width,
				"height":           rec.Height,
				"quality_category": QualityLabel(rec.Width),
				"aspect_ratio":     AspectRatio(rec.Width, rec.Height),
				"megapixels":       round(float64(rec.Width*rec.Height)/1e6, 2),
			}
		})

		speedDim.add(row["speed_band"].(string), func() Row {
			return findBandByName(speedBands, row["speed_band"].(string)).row("min_ms", "max_ms")
		})
		distanceDim.add(row["distance_band"].(string), func() Row {
			return findBandByName(distanceBands, row["distance_band"].(string)).row("min_m", "max_m")
		})
		angleDim.add(row["angle_band"].(string), func() Row {
			return findBandByName(angleBands, row["angle_band"].(string)).row("min_deg", "max_deg")
		})
	}

	return t
}

func checkRequired(rec *meta.VideoRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: no record", util.ErrExportSkip)
	}
	var missing []string
	if !rec.HasDuration() {
		missing = append(missing, "duration")
	}
	if !rec.HasResolution() {
		missing = append(missing, "resolution")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", util.ErrExportSkip, strings.Join(missing, " and "))
	}
	return nil
}

func (e *Exporter) factRow(flightID string, rec *meta.VideoRecord, a classify.Assignment) Row {
	est := e.cfg.Estimates[a.Mission]
	duration := *rec.DurationSec

	row := Row{
		"flight_id":             flightID,
		"video_filename":        rec.Filename,
		"source_path":           rec.Path,
		"duration_seconds":      round(duration, 3),
		"file_size_mb":          round(float64(rec.SizeBytes)/(1024*1024), 2),
		"resolution_width":      rec.Width,
		"resolution_height":     rec.Height,
		"resolution_id":         ResolutionID(rec.Width, rec.Height),
		"video_codec":           orNil(rec.Codec),
		"frame_rate":            nil,
		"bitrate_kbps":          nil,
		"gps_latitude":          nil,
		"gps_longitude":         nil,
		"mission_type":          string(a.Mission),
		"mission_confidence":    a.Confidence,
		"classification_method": string(a.Method),
		"bay_id":                orNil(a.Bay),
		"recorded_at":           nil,
		"extraction_timestamp":  rec.ExtractedAt,
		"processing_success":    rec.Succeeded(),
	}
	if rec.FrameRate > 0 {
		row["frame_rate"] = round(rec.FrameRate, 3)
	}
	if rec.BitrateKbps != nil {
		row["bitrate_kbps"] = *rec.BitrateKbps
	}
	if rec.GPS != nil {
		row["gps_latitude"] = rec.GPS.Latitude
		row["gps_longitude"] = rec.GPS.Longitude
	}
	if rec.CreatedAt != nil {
		row["recorded_at"] = *rec.CreatedAt
	}

	// Altitude
	if alt, ok := rec.Altitude(); ok {
		setMeasure(row, "altitude_m", "altitude_provenance", "altitude_band", round(alt, 1), Measured, AltitudeBand(alt))
	} else if est.AltitudeM != nil {
		setMeasure(row, "altitude_m", "altitude_provenance", "altitude_band", *est.AltitudeM, Estimated, AltitudeBand(*est.AltitudeM))
	} else {
		setMeasure(row, "altitude_m", "altitude_provenance", "altitude_band", nil, nil, BandUnknown)
	}

	t := rec.Telemetry
	if t == nil {
		t = &meta.Telemetry{}
	}

	// Speed
	speed, speedProv := est.SpeedMS, Estimated
	if t.SpeedMS != nil {
		speed, speedProv = *t.SpeedMS, Measured
	}
	setMeasure(row, "speed_ms", "speed_provenance", "speed_band", round(speed, 2), speedProv, SpeedBand(speed))

	// Distance
	if t.DistanceM != nil {
		setMeasure(row, "distance_m", "distance_provenance", "distance_band", round(*t.DistanceM, 1), Measured, DistanceBand(*t.DistanceM))
	} else {
		d := speed * duration
		setMeasure(row, "distance_m", "distance_provenance", "distance_band", round(d, 1), Estimated, DistanceBand(d))
	}

	// Gimbal angle
	angle, angleProv := est.GimbalPitchDeg, Estimated
	if t.GimbalPitchDeg != nil {
		angle, angleProv = *t.GimbalPitchDeg, Measured
	}
	setMeasure(row, "gimbal_angle_deg", "angle_provenance", "angle_band", round(angle, 1), angleProv, AngleBand(angle))

	return row
}

func setMeasure(row Row, valueCol, provCol, bandCol string, value, prov any, band string) {
	row[valueCol] = value
	if p, ok := prov.(Provenance); ok {
		row[provCol] = string(p)
	} else {
		row[provCol] = nil
	}
	row[bandCol] = band
}

func findBandByName(bands []band, name string) band {
	for _, b := range bands {
		if b.name == name {
			return b
		}
	}
	return band{name: name}
}

// bayType distinguishes single bays from spans such as "8B-7F"
func bayType(bay string) string {
	if strings.Contains(bay, "-") {
		return "bay_span"
	}
	return "inspection_bay"
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
