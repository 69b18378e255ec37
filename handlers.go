package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/face-detection-service/detections"
	"github.com/Tutortoise/face-detection-service/models"
)

type AppState struct {
	Service        *detections.Service
	Pool           *detections.WorkerPool
	Logger         *logrus.Logger
	MaxUploadBytes int64
	CPUFeatures    []string
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

var errMissingImage = errors.New("no image data in request")

type contextKey int

const requestIDKey contextKey = iota

func newRouter(state *AppState) *mux.Router {
	r := mux.NewRouter()
	r.Use(state.requestLogger)
	r.HandleFunc("/faces", handleDetectFaces(state)).Methods(http.MethodPost)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	state.addMonitoringRoutes(r)
	return r
}

func handleDetectFaces(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTotal := time.Now()
		requestID := requestIDFromContext(r.Context())
		timings := &models.ProcessingTimings{RequestID: requestID}
		log := state.Logger.WithField("request_id", requestID)

		// Buffer the capped body first so the size limit is reported the same
		// way for every content type.
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, state.MaxUploadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				sendErrorResponse(w, "request_too_large", MsgRequestTooLarge, http.StatusRequestEntityTooLarge)
				return
			}
			log.WithError(err).Debug("failed to read request body")
			sendErrorResponse(w, "invalid_request", MsgInvalidRequest, http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		imgBytes, err := readImage(r, state.MaxUploadBytes)
		if err != nil {
			log.WithError(err).Debug("invalid request body")
			sendErrorResponse(w, "invalid_request", MsgInvalidRequest, http.StatusBadRequest)
			return
		}

		faces, err := state.Service.DetectFaces(r.Context(), imgBytes, timings)
		if err != nil {
			sendDetectionError(w, log, err)
			return
		}

		timings.Total = time.Since(startTotal)
		logTimings(log, timings)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(faces); err != nil {
			log.WithError(err).Error("failed to encode response")
		}
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"pool":         s.Pool.Stats(),
		"cpu_features": s.CPUFeatures,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// readImage accepts multipart uploads (field "file"), JSON with a base64
// "image" field, or the raw request body.
func readImage(r *http.Request, maxBytes int64) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		data, err = handleJSONRequest(r)
	case "multipart/form-data":
		data, err = handleMultipartRequest(r, maxBytes)
	default:
		data, err = handleRawRequest(r)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errMissingImage
	}
	return data, nil
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func handleMultipartRequest(r *http.Request, maxBytes int64) ([]byte, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

func sendDetectionError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	switch {
	case errors.Is(err, detections.ErrDecode):
		log.WithError(err).Debug("image decode failed")
		sendErrorResponse(w, "invalid_image", MsgInvalidImage, http.StatusBadRequest)
	case errors.Is(err, detections.ErrUnavailable):
		log.WithError(err).Warn("inference unavailable")
		sendErrorResponse(w, "service_unavailable", MsgUnavailable, http.StatusServiceUnavailable)
	default:
		log.WithError(err).Error("inference failed")
		sendErrorResponse(w, "inference_error", MsgInferenceFailed, http.StatusInternalServerError)
	}
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func logTimings(log *logrus.Entry, t *models.ProcessingTimings) {
	if !log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	log.WithFields(logrus.Fields{
		"decode":      t.ImageDecode.String(),
		"queue_wait":  t.QueueWait.String(),
		"inference":   t.Inference.String(),
		"postprocess": t.Postprocess.String(),
		"total":       t.Total.String(),
	}).Debug("processing times")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger tags each request with an ID and writes one access log line.
func (s *AppState) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.Logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   fmt.Sprintf("%.2fms", float64(time.Since(start))/float64(time.Millisecond)),
		}).Info("request")
	})
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
