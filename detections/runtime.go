package detections

import (
	"os"
	"path/filepath"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

const libraryDir = "lib"

// DefaultLibraryPath returns where the onnxruntime shared library is expected
// when ONNXRUNTIME_LIB is not set.
func DefaultLibraryPath() string {
	libName := "libonnxruntime.so.1.20.0"
	switch runtime.GOOS {
	case "darwin":
		libName = "libonnxruntime.1.20.0.dylib"
	case "windows":
		libName = "onnxruntime.dll"
	}
	return filepath.Join(libraryDir, libName)
}

// InitRuntime loads the onnxruntime shared library and initializes the
// process-wide environment. The returned func tears it down.
func InitRuntime(libPath string) (func() error, error) {
	if _, err := os.Stat(libPath); err != nil {
		return nil, newError(ErrModelLoad, "onnxruntime library not found", err)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, newError(ErrModelLoad, "initialize onnxruntime environment", err)
	}

	return ort.DestroyEnvironment, nil
}
