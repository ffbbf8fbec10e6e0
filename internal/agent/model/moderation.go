package model

import "strings"

// Detection is one finding of a content detector.
type Detection struct {
	Detection     string  `json:"detection"`
	DetectionType string  `json:"detection_type"`
	Score         float64 `json:"score"`
}

// Positive reports whether the detector flagged the text.
func (d Detection) Positive() bool {
	return strings.EqualFold(strings.TrimSpace(d.Detection), "yes")
}

// DetectionList is the structured reply of the moderation model.
type DetectionList struct {
	Detections []Detection `json:"detections"`
}
