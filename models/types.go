package models

import "time"

// Candidate is one raw model output. Box holds x1, y1, x2, y2 in pixel
// coordinates of the original image.
type Candidate struct {
	Box        [4]float32
	Confidence float32
}

// Face is the rectangle returned to callers.
type Face struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	QueueWait   time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}
