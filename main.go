package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Tutortoise/face-detection-service/config"
	"github.com/Tutortoise/face-detection-service/detections"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := config.NewLogger(cfg)
	cpuFeatures := detections.CPUFeatures()
	logger.WithFields(logrus.Fields{
		"environment":  cfg.Environment,
		"backend":      cfg.Backend,
		"pool_size":    cfg.PoolSize,
		"cpu_features": cpuFeatures,
	}).Info("starting face detection service")

	factory, cleanup, err := newDetectorFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	poolCfg := detections.PoolConfig{
		Size:         cfg.PoolSize,
		QueueTimeout: cfg.QueueTimeout,
		Logger:       logger,
	}
	if cfg.Warmup {
		poolCfg.WarmupSize = cfg.InputSize
	}
	pool, err := detections.NewWorkerPool(poolCfg, factory)
	if err != nil {
		return fmt.Errorf("failed to create inference pool: %w", err)
	}
	defer pool.Close()

	state := &AppState{
		Service:        detections.NewService(pool),
		Pool:           pool,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		CPUFeatures:    cpuFeatures,
	}

	srv := &http.Server{
		Handler:      newRouter(state),
		Addr:         cfg.Addr(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// newDetectorFactory prepares the configured backend. For ONNX it initializes
// the runtime environment; cleanup tears it down after the pool is closed.
func newDetectorFactory(cfg *config.Config, logger *logrus.Logger) (detections.DetectorFactory, func(), error) {
	switch cfg.Backend {
	case config.BackendRemote:
		logger.WithField("url", cfg.InferenceURL).Info("using remote inference backend")
		factory := func() (detections.Detector, error) {
			return detections.NewRemoteDetector(detections.RemoteConfig{
				URL:     cfg.InferenceURL,
				Timeout: cfg.InferenceTimeout,
			}), nil
		}
		return factory, func() {}, nil
	default:
		libPath := cfg.LibraryPath
		if libPath == "" {
			libPath = detections.DefaultLibraryPath()
		}
		destroy, err := detections.InitRuntime(libPath)
		if err != nil {
			return nil, nil, err
		}
		logger.WithFields(logrus.Fields{
			"library": libPath,
			"model":   cfg.ModelPath,
		}).Info("onnxruntime initialized")

		threads := runtime.NumCPU() / cfg.PoolSize
		if threads < 1 {
			threads = 1
		}
		sessionCfg := detections.SessionConfig{
			ModelPath:      cfg.ModelPath,
			InputName:      cfg.InputName,
			OutputName:     cfg.OutputName,
			InputSize:      cfg.InputSize,
			NumClasses:     cfg.NumClasses,
			ConfThreshold:  cfg.ModelConfThreshold,
			IOUThreshold:   cfg.ModelIOUThreshold,
			IntraOpThreads: threads,
		}
		factory := func() (detections.Detector, error) {
			session, err := detections.NewModelSession(sessionCfg)
			if err != nil {
				return nil, err
			}
			return session, nil
		}
		cleanup := func() {
			if err := destroy(); err != nil {
				logger.WithError(err).Warn("failed to destroy onnxruntime environment")
			}
		}
		return factory, cleanup, nil
	}
}
