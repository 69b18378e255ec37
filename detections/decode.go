package detections

import (
	"bytes"
	"errors"
	"image"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var errEmptyImage = errors.New("empty image data")

// DecodeImage decodes any registered format (JPEG, PNG, GIF, BMP, TIFF, WebP)
// and applies the EXIF orientation so boxes match what the client sees.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, newError(ErrDecode, "decode image", errEmptyImage)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, newError(ErrDecode, "decode image", err)
	}

	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, newError(ErrDecode, "decode image", errEmptyImage)
	}
	return img, nil
}
