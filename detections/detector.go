package detections

import (
	"context"
	"image"

	"github.com/Tutortoise/face-detection-service/models"
)

// Detector runs a pretrained model over a decoded image. Implementations
// need not be safe for concurrent use; WorkerPool gives each worker its own.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Candidate, error)
	Close() error
}

// DetectorFactory builds one Detector per pool worker.
type DetectorFactory func() (Detector, error)
