package detections

import "github.com/Tutortoise/face-detection-service/models"

// FilterCandidates keeps candidates at or above ConfThreshold in their
// original order.
func FilterCandidates(candidates []models.Candidate) []models.Candidate {
	kept := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= ConfThreshold {
			kept = append(kept, c)
		}
	}
	return kept
}

// ToFaces converts candidates to integer rectangles. Values are truncated
// toward zero; boxes are not clamped or validated.
func ToFaces(candidates []models.Candidate) []models.Face {
	faces := make([]models.Face, 0, len(candidates))
	for _, c := range candidates {
		x1, y1, x2, y2 := c.Box[0], c.Box[1], c.Box[2], c.Box[3]
		faces = append(faces, models.Face{
			X:      int(x1),
			Y:      int(y1),
			Width:  int(x2 - x1),
			Height: int(y2 - y1),
		})
	}
	return faces
}
