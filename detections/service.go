package detections

import (
	"context"
	"image"
	"time"

	"github.com/Tutortoise/face-detection-service/models"
)

// Inferer runs the model over a decoded image. *WorkerPool implements it.
type Inferer interface {
	Submit(ctx context.Context, img image.Image) (InferenceResult, error)
}

// Service turns encoded image bytes into face rectangles:
// decode, infer, filter by ConfThreshold, convert.
type Service struct {
	inferer Inferer
}

func NewService(inferer Inferer) *Service {
	return &Service{inferer: inferer}
}

// DetectFaces never returns a nil slice on success. timings may be nil.
func (s *Service) DetectFaces(ctx context.Context, data []byte, timings *models.ProcessingTimings) ([]models.Face, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	decodeStart := time.Now()
	img, err := DecodeImage(data)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		return nil, err
	}

	result, err := s.inferer.Submit(ctx, img)
	if err != nil {
		return nil, err
	}
	timings.QueueWait = result.QueueWait
	timings.Inference = result.Inference

	postStart := time.Now()
	faces := ToFaces(FilterCandidates(result.Candidates))
	timings.Postprocess = time.Since(postStart)

	return faces, nil
}
