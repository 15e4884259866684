package classify

// Stats summarizes the assignments of one batch
type Stats struct {
	Total          int             `json:"total"`
	ByMission      map[Mission]int `json:"by_mission"`
	ByMethod       map[Method]int  `json:"by_method"`
	AvgConfidence  float64         `json:"avg_confidence"`
	HighConfidence int             `json:"high_confidence"`
}

// ComputeStats tallies assignments
func ComputeStats(assignments []Assignment) Stats {
	s := Stats{
		ByMission: make(map[Mission]int),
		ByMethod:  make(map[Method]int),
	}
	var sum float64
	for _, a := range assignments {
		s.Total++
		s.ByMission[a.Mission]++
		s.ByMethod[a.Method]++
		sum += a.Confidence
		if a.Confidence >= HighConfidence {
			s.HighConfidence++
		}
	}
	if s.Total > 0 {
		s.AvgConfidence = sum / float64(s.Total)
	}
	return s
}

// Classified is the number of videos that did not end up UNKNOWN
func (s Stats) Classified() int {
	return s.Total - s.ByMission[MissionUnknown]
}

// ClassifiedShare is Classified as a fraction of Total
func (s Stats) ClassifiedShare() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Classified()) / float64(s.Total)
}

// HighConfidenceShare is the fraction of assignments at or above HighConfidence
func (s Stats) HighConfidenceShare() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.HighConfidence) / float64(s.Total)
}
