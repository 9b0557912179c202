// Package raster decodes image bytes into straight-alpha NRGBA rasters.
//
// Every pipeline stage downstream of decode (compositing, flattening,
// encoding) assumes straight, non-premultiplied alpha. image.NRGBA is Go's
// straight-alpha RGBA8 representation, so all inputs are normalized to it
// here regardless of source format.
package raster

import (
	"bytes"
	"fmt"
	"image"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/rs/zerolog/log"
)

// DecodeError reports that an input buffer could not be decoded as a
// supported image format (PNG, JPEG, WebP).
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "failed to decode image: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode sniffs the format of data, decodes it, and converts the result to a
// freshly allocated NRGBA raster. It returns the raster, the detected format
// name ("png", "jpeg", "webp"), or a *DecodeError.
func Decode(data []byte) (*image.NRGBA, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}

	nrgba := toNRGBA(img)

	log.Debug().
		Str("format", format).
		Int("width", nrgba.Bounds().Dx()).
		Int("height", nrgba.Bounds().Dy()).
		Int("input_bytes", len(data)).
		Msg("Decoded image")

	return nrgba, format, nil
}

// MIMEType maps a decoded format name to its MIME type.
func MIMEType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return fmt.Sprintf("image/%s", format)
	}
}

// toNRGBA copies img into a zero-origin NRGBA raster. The copy keeps decoded
// images immutable: callers own the returned raster exclusively.
func toNRGBA(img image.Image) *image.NRGBA {
	if src, ok := img.(*image.NRGBA); ok && src.Bounds().Min == (image.Point{}) {
		out := image.NewNRGBA(src.Bounds())
		copy(out.Pix, src.Pix)
		return out
	}

	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return out
}
