package detections

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/face-detection-service/models"
)

// PoolConfig configures a WorkerPool. Zero values fall back to defaults.
type PoolConfig struct {
	Size         int
	QueueTimeout time.Duration
	// WarmupSize is the side of the blank image each worker runs once before
	// accepting jobs. Zero disables warm-up.
	WarmupSize int
	Logger     logrus.FieldLogger
}

// InferenceResult carries the candidates of one job with its timings.
type InferenceResult struct {
	Candidates []models.Candidate
	QueueWait  time.Duration
	Inference  time.Duration
}

type inferenceJob struct {
	ctx      context.Context
	img      image.Image
	enqueued time.Time
	result   chan jobResult
}

type jobResult struct {
	candidates []models.Candidate
	inference  time.Duration
	err        error
}

// WorkerPool runs inference on a fixed set of workers, each owning one
// Detector. Callers hand jobs over an unbuffered channel and wait for the
// answer on a per-job channel.
type WorkerPool struct {
	jobs         chan inferenceJob
	quit         chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
	size         int
	queueTimeout time.Duration
	detectors    []Detector
	metrics      *PoolMetrics
	logger       logrus.FieldLogger
}

type PoolMetrics struct {
	mu            sync.RWMutex
	inUse         int
	totalSubmit   int64
	totalComplete int64
	totalFailed   int64
	queueTimeouts int64
	waitTime      time.Duration
}

// PoolStats is a point-in-time copy of the pool counters.
type PoolStats struct {
	Size           int     `json:"pool_size"`
	InUse          int     `json:"workers_in_use"`
	TotalSubmitted int64   `json:"total_submitted"`
	TotalCompleted int64   `json:"total_completed"`
	TotalFailed    int64   `json:"total_failed"`
	QueueTimeouts  int64   `json:"queue_timeouts"`
	TotalWaitMs    float64 `json:"total_wait_ms"`
}

func NewWorkerPool(cfg PoolConfig, factory DetectorFactory) (*WorkerPool, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultPoolSize
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultQueueTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	pool := &WorkerPool{
		jobs:         make(chan inferenceJob),
		quit:         make(chan struct{}),
		size:         cfg.Size,
		queueTimeout: cfg.QueueTimeout,
		detectors:    make([]Detector, 0, cfg.Size),
		metrics:      &PoolMetrics{},
		logger:       cfg.Logger,
	}

	for i := 0; i < cfg.Size; i++ {
		detector, err := factory()
		if err != nil {
			pool.closeDetectors()
			return nil, newError(ErrModelLoad, fmt.Sprintf("initialize detector %d", i), err)
		}
		pool.detectors = append(pool.detectors, detector)
	}

	for i, detector := range pool.detectors {
		pool.wg.Add(1)
		go pool.worker(i, detector, cfg.WarmupSize)
	}

	return pool, nil
}

// Submit blocks until a worker has run the detector over img. It gives up
// waiting for a free worker after the queue timeout.
func (p *WorkerPool) Submit(ctx context.Context, img image.Image) (InferenceResult, error) {
	select {
	case <-p.quit:
		return InferenceResult{}, newError(ErrUnavailable, "submit inference", ErrPoolClosed)
	default:
	}

	job := inferenceJob{
		ctx:      ctx,
		img:      img,
		enqueued: time.Now(),
		result:   make(chan jobResult, 1),
	}

	timer := time.NewTimer(p.queueTimeout)
	defer timer.Stop()

	select {
	case p.jobs <- job:
	case <-timer.C:
		p.recordWait(time.Since(job.enqueued), true)
		return InferenceResult{}, newError(ErrUnavailable, "submit inference", ErrQueueTimeout)
	case <-p.quit:
		return InferenceResult{}, newError(ErrUnavailable, "submit inference", ErrPoolClosed)
	case <-ctx.Done():
		return InferenceResult{}, newError(ErrUnavailable, "inference canceled", ctx.Err())
	}

	wait := time.Since(job.enqueued)
	p.recordWait(wait, false)

	select {
	case res := <-job.result:
		if res.err != nil {
			if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
				return InferenceResult{}, newError(ErrUnavailable, "inference canceled", res.err)
			}
			return InferenceResult{}, newError(ErrInference, "model inference", res.err)
		}
		return InferenceResult{Candidates: res.candidates, QueueWait: wait, Inference: res.inference}, nil
	case <-ctx.Done():
		// The worker still finishes the job; result is buffered and dropped.
		return InferenceResult{}, newError(ErrUnavailable, "inference canceled", ctx.Err())
	}
}

func (p *WorkerPool) worker(id int, detector Detector, warmupSize int) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer p.wg.Done()

	log := p.logger.WithField("worker", id)
	if warmupSize > 0 {
		start := time.Now()
		blank := image.NewNRGBA(image.Rect(0, 0, warmupSize, warmupSize))
		if _, err := detector.Detect(context.Background(), blank); err != nil {
			log.WithError(err).Warn("warm-up inference failed")
		} else {
			log.WithField("duration", time.Since(start)).Debug("warm-up inference done")
		}
	}

	for {
		select {
		case <-p.quit:
			return
		case job := <-p.jobs:
			p.run(detector, job)
		}
	}
}

func (p *WorkerPool) run(detector Detector, job inferenceJob) {
	p.metrics.mu.Lock()
	p.metrics.inUse++
	p.metrics.mu.Unlock()

	start := time.Now()
	candidates, err := detector.Detect(job.ctx, job.img)
	elapsed := time.Since(start)

	p.metrics.mu.Lock()
	p.metrics.inUse--
	if err != nil {
		p.metrics.totalFailed++
	} else {
		p.metrics.totalComplete++
	}
	p.metrics.mu.Unlock()

	job.result <- jobResult{candidates: candidates, inference: elapsed, err: err}
}

func (p *WorkerPool) recordWait(wait time.Duration, timedOut bool) {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	p.metrics.waitTime += wait
	if timedOut {
		p.metrics.queueTimeouts++
		return
	}
	p.metrics.totalSubmit++
}

// Close stops the workers once their current job is done and releases the
// detectors. Safe to call more than once.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
		p.closeDetectors()
	})
}

func (p *WorkerPool) closeDetectors() {
	for i, detector := range p.detectors {
		if err := detector.Close(); err != nil {
			p.logger.WithError(err).WithField("worker", i).Warn("failed to close detector")
		}
	}
	p.detectors = nil
}

func (p *WorkerPool) Stats() PoolStats {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()

	return PoolStats{
		Size:           p.size,
		InUse:          p.metrics.inUse,
		TotalSubmitted: p.metrics.totalSubmit,
		TotalCompleted: p.metrics.totalComplete,
		TotalFailed:    p.metrics.totalFailed,
		QueueTimeouts:  p.metrics.queueTimeouts,
		TotalWaitMs:    float64(p.metrics.waitTime) / float64(time.Millisecond),
	}
}
