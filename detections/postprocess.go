package detections

import (
	"fmt"
	"sort"

	"github.com/Tutortoise/face-detection-service/models"
)

// outputLayout describes a YOLO detection head output of shape
// [1, 4+numClasses, numAnchors]: rows cx, cy, w, h (input pixels) followed by
// one score row per class.
type outputLayout struct {
	inputSize     int
	numClasses    int
	numAnchors    int
	confThreshold float32
	iouThreshold  float32
}

// anchorCount returns the number of predictions a stride 8/16/32 head emits
// for a square input.
func anchorCount(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := inputSize / stride
		n += side * side
	}
	return n
}

func processPredictions(predictions []float32, layout outputLayout, originalWidth, originalHeight int) ([]models.Candidate, error) {
	numAnchors := layout.numAnchors
	expectedSize := (4 + layout.numClasses) * numAnchors
	if len(predictions) != expectedSize {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(predictions), expectedSize)
	}

	geom := newLetterboxGeometry(originalWidth, originalHeight, layout.inputSize)
	candidates := make([]models.Candidate, 0, 100)
	for i := 0; i < numAnchors; i++ {
		var confidence float32
		for c := 0; c < layout.numClasses; c++ {
			if score := predictions[(4+c)*numAnchors+i]; score > confidence {
				confidence = score
			}
		}
		if confidence < layout.confThreshold {
			continue
		}

		box := calculateBBox(
			[4]float32{
				predictions[i],
				predictions[numAnchors+i],
				predictions[2*numAnchors+i],
				predictions[3*numAnchors+i],
			},
			geom,
			float32(originalWidth),
			float32(originalHeight),
		)
		candidates = append(candidates, models.Candidate{Box: box, Confidence: confidence})
	}

	sortCandidatesByConfidence(candidates)
	return nonMaxSuppression(candidates, layout.iouThreshold), nil
}

// calculateBBox converts a centre-format box in letterboxed input pixels to
// corner format in original pixels, clipped to the image.
func calculateBBox(coords [4]float32, geom letterboxGeometry, origWidth, origHeight float32) [4]float32 {
	padX, padY := float32(geom.padX), float32(geom.padY)

	centerX, centerY := coords[0], coords[1]
	width, height := coords[2], coords[3]

	x1 := (centerX - width/2 - padX) / geom.gain
	y1 := (centerY - height/2 - padY) / geom.gain
	x2 := (centerX + width/2 - padX) / geom.gain
	y2 := (centerY + height/2 - padY) / geom.gain

	return [4]float32{
		clamp(x1, 0, origWidth),
		clamp(y1, 0, origHeight),
		clamp(x2, 0, origWidth),
		clamp(y2, 0, origHeight),
	}
}

func sortCandidatesByConfidence(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
}

// nonMaxSuppression expects candidates sorted by descending confidence and
// keeps that order.
func nonMaxSuppression(candidates []models.Candidate, iouThreshold float32) []models.Candidate {
	kept := make([]models.Candidate, 0, len(candidates))
	suppressed := make([]bool, len(candidates))

	for i := range candidates {
		if suppressed[i] {
			continue
		}
		kept = append(kept, candidates[i])
		for j := i + 1; j < len(candidates); j++ {
			if !suppressed[j] && calculateIOU(candidates[i].Box, candidates[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func calculateIOU(box1, box2 [4]float32) float32 {
	x1 := max(box1[0], box2[0])
	y1 := max(box1[1], box2[1])
	x2 := min(box1[2], box2[2])
	y2 := min(box1[3], box2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := (box1[2] - box1[0]) * (box1[3] - box1[1])
	area2 := (box2[2] - box2[0]) * (box2[3] - box2[1])
	union := area1 + area2 - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}
