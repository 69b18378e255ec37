package detections

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// letterboxFill is the gray the YOLO tooling pads letterboxed inputs with.
var letterboxFill = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterboxGeometry describes how an original image is placed inside the
// square model input: scaled by gain, keeping the aspect ratio, then offset by
// padX, padY.
type letterboxGeometry struct {
	gain          float32
	padX, padY    int
	width, height int
}

func newLetterboxGeometry(srcWidth, srcHeight, size int) letterboxGeometry {
	gain := math.Min(float64(size)/float64(srcWidth), float64(size)/float64(srcHeight))

	width := int(math.Round(float64(srcWidth) * gain))
	height := int(math.Round(float64(srcHeight) * gain))
	width = min(max(width, 1), size)
	height = min(max(height, 1), size)

	dw := float64(size-width) / 2
	dh := float64(size-height) / 2

	return letterboxGeometry{
		gain:   float32(gain),
		padX:   int(math.Round(dw - 0.1)),
		padY:   int(math.Round(dh - 0.1)),
		width:  width,
		height: height,
	}
}

// letterbox resizes img into a size x size canvas without distorting it.
func letterbox(img image.Image, size int) (*image.NRGBA, letterboxGeometry) {
	bounds := img.Bounds()
	geom := newLetterboxGeometry(bounds.Dx(), bounds.Dy(), size)

	resized := imaging.Resize(img, geom.width, geom.height, imaging.Linear)
	canvas := imaging.New(size, size, letterboxFill)
	return imaging.Paste(canvas, resized, image.Pt(geom.padX, geom.padY)), geom
}
