package detections

import (
	"image"
	"image/color"
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// CPUFeatures lists the SIMD extensions onnxruntime can take advantage of on
// this host.
func CPUFeatures() []string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAVX512F {
			features = append(features, "avx512f")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasFMA {
			features = append(features, "fma")
		}
		if cpu.X86.HasSSE41 {
			features = append(features, "sse4.1")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			features = append(features, "fp16")
		}
	}
	return features
}

// Preprocessor writes a size x size image into a planar RGB float32 buffer
// scaled to [0, 1], the layout the YOLO input tensor expects.
type Preprocessor struct {
	size       int
	numWorkers int
}

func NewPreprocessor(size int) *Preprocessor {
	workers := runtime.GOMAXPROCS(0)
	if workers > size {
		workers = size
	}
	if workers < 1 {
		workers = 1
	}
	return &Preprocessor{size: size, numWorkers: workers}
}

// Process fills dst, which must hold 3*size*size values.
func (p *Preprocessor) Process(img image.Image, dst []float32) {
	rowsPerWorker := p.size / p.numWorkers

	var wg sync.WaitGroup
	wg.Add(p.numWorkers)

	for w := 0; w < p.numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if w == p.numWorkers-1 {
			endRow = p.size
		}

		go func(start, end int) {
			defer wg.Done()
			if nrgba, ok := img.(*image.NRGBA); ok {
				p.processRowsNRGBA(nrgba, dst, start, end)
				return
			}
			p.processRowsGeneric(img, dst, start, end)
		}(startRow, endRow)
	}

	wg.Wait()
}

func (p *Preprocessor) processRowsNRGBA(img *image.NRGBA, dst []float32, start, end int) {
	channelSize := p.size * p.size
	for y := start; y < end; y++ {
		rowStart := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		row := img.Pix[rowStart : rowStart+p.size*4]
		offset := y * p.size
		for x := 0; x < p.size; x++ {
			i := offset + x
			dst[i] = float32(row[x*4]) / 255.0
			dst[channelSize+i] = float32(row[x*4+1]) / 255.0
			dst[channelSize*2+i] = float32(row[x*4+2]) / 255.0
		}
	}
}

func (p *Preprocessor) processRowsGeneric(img image.Image, dst []float32, start, end int) {
	channelSize := p.size * p.size
	bounds := img.Bounds()
	for y := start; y < end; y++ {
		offset := y * p.size
		for x := 0; x < p.size; x++ {
			i := offset + x
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			dst[i] = float32(c.R) / 255.0
			dst[channelSize+i] = float32(c.G) / 255.0
			dst[channelSize*2+i] = float32(c.B) / 255.0
		}
	}
}
