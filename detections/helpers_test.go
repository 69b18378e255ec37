package detections

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Tutortoise/face-detection-service/models"
)

type fakeDetector struct {
	candidates []models.Candidate
	err        error
	delay      time.Duration
	release    chan struct{}

	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
	closed atomic.Bool
}

func (d *fakeDetector) Detect(ctx context.Context, _ image.Image) ([]models.Candidate, error) {
	d.calls.Add(1)
	n := d.active.Add(1)
	defer d.active.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if d.release != nil {
		<-d.release
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return nil, d.err
	}
	out := make([]models.Candidate, len(d.candidates))
	copy(out, d.candidates)
	return out, nil
}

func (d *fakeDetector) Close() error {
	d.closed.Store(true)
	return nil
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func candidate(x1, y1, x2, y2, conf float32) models.Candidate {
	return models.Candidate{Box: [4]float32{x1, y1, x2, y2}, Confidence: conf}
}
