package classify

import (
	"fmt"
	"strings"

	"github.com/franz/drone-catalog/internal/util"
)

// Mission is the coarse purpose of a flight
type Mission string

const (
	MissionBox     Mission = "BOX"
	MissionSafety  Mission = "SAFETY"
	MissionUnknown Mission = "UNKNOWN"
)

// Missions lists every mission in report order
var Missions = []Mission{MissionBox, MissionSafety, MissionUnknown}

// ParseMission accepts a mission name in any case
func ParseMission(s string) (Mission, error) {
	switch Mission(strings.ToUpper(strings.TrimSpace(s))) {
	case MissionBox:
		return MissionBox, nil
	case MissionSafety:
		return MissionSafety, nil
	case MissionUnknown, "":
		return MissionUnknown, nil
	}
	return MissionUnknown, fmt.Errorf("%w: unknown mission %q", util.ErrInvalidConfig, s)
}

// Folder is the directory name used for the mission in the output tree.
// UNKNOWN goes to its own folder so it is never merged into BOX or SAFETY.
func (m Mission) Folder() string {
	if m == MissionUnknown || m == "" {
		return "unclassified"
	}
	return strings.ToLower(string(m))
}

// Method names the rule that produced an assignment
type Method string

const (
	MethodOverride      Method = "manual_override"
	MethodBayPattern    Method = "bay_pattern"
	MethodSafetyKeyword Method = "safety_keyword"
	MethodMetadataTag   Method = "metadata_tag"
	MethodFallback      Method = "fallback"
)

// Fixed rule confidences
const (
	OverrideConfidence = 1.0
	BayConfidence      = 0.92
	KeywordConfidence  = 0.8
	MetadataConfidence = 0.6

	// HighConfidence is the threshold Stats counts as high confidence
	HighConfidence = 0.7
)

// Assignment is the classification result for one video.
// UNKNOWN always carries confidence 0 and no bay.
type Assignment struct {
	Mission    Mission `json:"mission"`
	Confidence float64 `json:"confidence"`
	Bay        string  `json:"bay,omitempty"`
	Method     Method  `json:"method"`
	Note       string  `json:"note,omitempty"`
}

// HasBay reports whether a bay designation was extracted
func (a Assignment) HasBay() bool {
	return a.Bay != ""
}

// Unknown is the fallback assignment
func Unknown() Assignment {
	return Assignment{Mission: MissionUnknown, Confidence: 0, Method: MethodFallback}
}

func newAssignment(m Mission, confidence float64, bay string, method Method) Assignment {
	if m == MissionUnknown {
		return Assignment{Mission: MissionUnknown, Method: method}
	}
	confidence = min(max(confidence, 0), 1)
	return Assignment{Mission: m, Confidence: confidence, Bay: bay, Method: method}
}
