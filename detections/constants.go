package detections

import "time"

const (
	// ConfThreshold is the minimum confidence a candidate needs to be
	// reported. Inclusive.
	ConfThreshold = 0.70

	DefaultInputSize      = 640
	DefaultNumClasses     = 1
	DefaultModelThreshold = 0.25
	DefaultIOUThreshold   = 0.7
	DefaultInputName      = "images"
	DefaultOutputName     = "output0"

	DefaultPoolSize     = 4
	DefaultQueueTimeout = 5 * time.Second
)
