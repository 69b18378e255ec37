package detections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"github.com/Tutortoise/face-detection-service/models"
)

// RemoteConfig points RemoteDetector at an external inference service.
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
}

// RemoteDetector delegates inference to a service that accepts a multipart
// "file" upload and answers with [{"box":[x1,y1,x2,y2],"confidence":c}].
// It is safe for concurrent use.
type RemoteDetector struct {
	httpClient *http.Client
	url        string
}

type remoteCandidate struct {
	Box        [4]float32 `json:"box"`
	Confidence float32    `json:"confidence"`
}

func NewRemoteDetector(cfg RemoteConfig) *RemoteDetector {
	return &RemoteDetector{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        cfg.URL,
	}
}

func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]models.Candidate, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := imaging.Encode(part, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result []remoteCandidate
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(result))
	for _, r := range result {
		candidates = append(candidates, models.Candidate{Box: r.Box, Confidence: r.Confidence})
	}
	return candidates, nil
}

func (d *RemoteDetector) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}
