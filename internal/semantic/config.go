package semantic

import (
	"fmt"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/util"
)

// Provenance marks a value as measured by the aircraft or estimated from
// the mission type.
type Provenance string

const (
	Measured  Provenance = "measured"
	Estimated Provenance = "estimated"
)

// Estimate holds the assumed flight profile of one mission type.
// A nil AltitudeM means no altitude is assumed.
type Estimate struct {
	SpeedMS        float64  `mapstructure:"speed_ms" yaml:"speed_ms"`
	GimbalPitchDeg float64  `mapstructure:"gimbal_pitch_deg" yaml:"gimbal_pitch_deg"`
	AltitudeM      *float64 `mapstructure:"altitude_m" yaml:"altitude_m"`
}

// Config is the exporter's immutable configuration
type Config struct {
	Estimates map[classify.Mission]Estimate
}

// DefaultConfig returns the built-in estimation table
func DefaultConfig() Config {
	return Config{
		Estimates: map[classify.Mission]Estimate{
			classify.MissionBox:     {SpeedMS: 3.0, GimbalPitchDeg: -90, AltitudeM: bound(30)},
			classify.MissionSafety:  {SpeedMS: 5.0, GimbalPitchDeg: -45, AltitudeM: bound(20)},
			classify.MissionUnknown: {SpeedMS: 4.0, GimbalPitchDeg: -60},
		},
	}
}

// Validate checks that every mission has a sane estimate
func (c Config) Validate() error {
	for _, m := range classify.Missions {
		e, ok := c.Estimates[m]
		if !ok {
			return fmt.Errorf("%w: no estimate for mission %s", util.ErrInvalidConfig, m)
		}
		if e.SpeedMS < 0 {
			return fmt.Errorf("%w: negative speed estimate for mission %s", util.ErrInvalidConfig, m)
		}
		if e.GimbalPitchDeg < -90 || e.GimbalPitchDeg > 90 {
			return fmt.Errorf("%w: gimbal pitch %.1f out of range for mission %s", util.ErrInvalidConfig, e.GimbalPitchDeg, m)
		}
	}
	return nil
}

func (c Config) clone() Config {
	out := Config{Estimates: make(map[classify.Mission]Estimate, len(c.Estimates))}
	for m, e := range c.Estimates {
		if e.AltitudeM != nil {
			e.AltitudeM = bound(*e.AltitudeM)
		}
		out.Estimates[m] = e
	}
	return out
}
