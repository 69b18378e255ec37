package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

type Config struct {
	// Server
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"PORT" default:"9331"`
	Environment     string        `envconfig:"ENV" default:"development"`
	Debug           bool          `envconfig:"DEBUG" default:"false"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"60s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Backend
	Backend          string        `envconfig:"DETECTOR_BACKEND" default:"onnx"`
	InferenceURL     string        `envconfig:"INFERENCE_URL" default:"http://localhost:5000/predict"`
	InferenceTimeout time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"30s"`

	// Model
	ModelPath          string  `envconfig:"MODEL_PATH" default:"models/best.onnx"`
	LibraryPath        string  `envconfig:"ONNXRUNTIME_LIB"`
	InputSize          int     `envconfig:"MODEL_INPUT_SIZE" default:"640"`
	NumClasses         int     `envconfig:"MODEL_CLASSES" default:"1"`
	InputName          string  `envconfig:"MODEL_INPUT_NAME" default:"images"`
	OutputName         string  `envconfig:"MODEL_OUTPUT_NAME" default:"output0"`
	ModelConfThreshold float32 `envconfig:"MODEL_CONF_THRESHOLD" default:"0.25"`
	ModelIOUThreshold  float32 `envconfig:"MODEL_IOU_THRESHOLD" default:"0.7"`

	// Worker pool
	PoolSize     int           `envconfig:"POOL_SIZE" default:"4"`
	QueueTimeout time.Duration `envconfig:"QUEUE_TIMEOUT" default:"5s"`
	Warmup       bool          `envconfig:"WARMUP" default:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendONNX, BackendRemote:
	default:
		return fmt.Errorf("unknown detector backend %q", c.Backend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return fmt.Errorf("model input size must be a positive multiple of 32, got %d", c.InputSize)
	}
	if c.NumClasses <= 0 {
		return fmt.Errorf("model classes must be positive, got %d", c.NumClasses)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", c.PoolSize)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
