package detections

import (
	"context"
	"fmt"
	"image"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Tutortoise/face-detection-service/models"
)

// SessionConfig describes the ONNX model artifact and its output head.
type SessionConfig struct {
	ModelPath      string
	InputName      string
	OutputName     string
	InputSize      int
	NumClasses     int
	ConfThreshold  float32
	IOUThreshold   float32
	IntraOpThreads int
}

// ModelSession is an onnxruntime session with its bound input and output
// tensors. Run mutates the tensors, so a session must not be shared between
// goroutines.
type ModelSession struct {
	Session      *ort.AdvancedSession
	Input        *ort.Tensor[float32]
	Output       *ort.Tensor[float32]
	layout       outputLayout
	preprocessor *Preprocessor
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.InputName == "" {
		c.InputName = DefaultInputName
	}
	if c.OutputName == "" {
		c.OutputName = DefaultOutputName
	}
	if c.InputSize <= 0 {
		c.InputSize = DefaultInputSize
	}
	if c.NumClasses <= 0 {
		c.NumClasses = DefaultNumClasses
	}
	if c.ConfThreshold <= 0 {
		c.ConfThreshold = DefaultModelThreshold
	}
	if c.IOUThreshold <= 0 {
		c.IOUThreshold = DefaultIOUThreshold
	}
	return c
}

func NewModelSession(cfg SessionConfig) (*ModelSession, error) {
	cfg = cfg.withDefaults()
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("error setting intra-op threads: %w", err)
		}
		if err := options.SetInterOpNumThreads(1); err != nil {
			return nil, fmt.Errorf("error setting inter-op threads: %w", err)
		}
	}

	layout := outputLayout{
		inputSize:     cfg.InputSize,
		numClasses:    cfg.NumClasses,
		numAnchors:    anchorCount(cfg.InputSize),
		confThreshold: cfg.ConfThreshold,
		iouThreshold:  cfg.IOUThreshold,
	}

	size := int64(cfg.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(4+layout.numClasses), int64(layout.numAnchors))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session:      session,
		Input:        inputTensor,
		Output:       outputTensor,
		layout:       layout,
		preprocessor: NewPreprocessor(cfg.InputSize),
	}, nil
}

// Detect returns candidates clipped to the image, sorted by descending
// confidence after non-maximum suppression.
func (m *ModelSession) Detect(ctx context.Context, img image.Image) ([]models.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, _ := letterbox(img, m.layout.inputSize)
	m.preprocessor.Process(input, m.Input.GetData())

	if err := m.Session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	bounds := img.Bounds()
	candidates, err := processPredictions(m.Output.GetData(), m.layout, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("process predictions: %w", err)
	}
	return candidates, nil
}

// Close releases the tensors even when destroying the session fails.
func (m *ModelSession) Close() error {
	var err error
	if m.Session != nil {
		err = m.Session.Destroy()
		m.Session = nil
	}
	if m.Input != nil {
		m.Input.Destroy()
		m.Input = nil
	}
	if m.Output != nil {
		m.Output.Destroy()
		m.Output = nil
	}
	return err
}
