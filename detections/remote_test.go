package detections

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tutortoise/face-detection-service/models"
)

func TestRemoteDetector_Detect(t *testing.T) {
	tests := []struct {
		name           string
		serverStatus   int
		serverResponse interface{}
		want           []models.Candidate
		wantErrContain string
	}{
		{
			name:         "candidates returned in order",
			serverStatus: http.StatusOK,
			serverResponse: []map[string]interface{}{
				{"box": []float32{10.5, 20, 110, 220}, "confidence": 0.71},
				{"box": []float32{1, 2, 3, 4}, "confidence": 0.99},
			},
			want: []models.Candidate{
				candidate(10.5, 20, 110, 220, 0.71),
				candidate(1, 2, 3, 4, 0.99),
			},
		},
		{
			name:           "no candidates",
			serverStatus:   http.StatusOK,
			serverResponse: []interface{}{},
			want:           []models.Candidate{},
		},
		{
			name:         "non-200 success status",
			serverStatus: http.StatusCreated,
			serverResponse: []map[string]interface{}{
				{"box": []float32{4, 5, 6, 7}, "confidence": 0.8},
			},
			want: []models.Candidate{candidate(4, 5, 6, 7, 0.8)},
		},
		{
			name:           "redirect status is an error",
			serverStatus:   http.StatusNotModified,
			serverResponse: []interface{}{},
			wantErrContain: "status 304",
		},
		{
			name:           "server error",
			serverStatus:   http.StatusInternalServerError,
			serverResponse: map[string]string{"error": "model crashed"},
			wantErrContain: "status 500",
		},
		{
			name:           "invalid json",
			serverStatus:   http.StatusOK,
			serverResponse: "not a list",
			wantErrContain: "decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)

				file, _, err := r.FormFile("file")
				if assert.NoError(t, err) {
					img, err := imaging.Decode(file)
					assert.NoError(t, err)
					assert.Equal(t, 12, img.Bounds().Dx())
					file.Close()
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.serverStatus)
				json.NewEncoder(w).Encode(tt.serverResponse)
			}))
			defer server.Close()

			detector := NewRemoteDetector(RemoteConfig{URL: server.URL, Timeout: 5 * time.Second})
			defer detector.Close()

			got, err := detector.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 12, 9)))

			if tt.wantErrContain != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrContain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteDetector_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	detector := NewRemoteDetector(RemoteConfig{URL: server.URL, Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := detector.Detect(ctx, image.NewNRGBA(image.Rect(0, 0, 4, 4)))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
