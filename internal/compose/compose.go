// Package compose implements the export pipeline: aspect-fit background
// placement, alpha flattening, passport cropping, and PNG/JPEG encoding.
//
// All canvases are freshly allocated NRGBA (straight, non-premultiplied
// alpha); input rasters are read-only and never mutated in place.
package compose

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// OutputMode selects the export format and compositing behavior.
type OutputMode int

const (
	// TransparentPNG exports a lossless PNG. With no background the
	// foreground raster passes through untouched.
	TransparentPNG OutputMode = iota

	// FlattenedJPEG exports a fully opaque JPEG. With no background the
	// foreground is flattened onto white before encoding.
	FlattenedJPEG

	// PassportJPEG exports a 600x600 identity photo: centered square crop
	// of the foreground on white. Any background image is ignored.
	PassportJPEG
)

// PassportSize is the fixed edge length of passport output in pixels.
const PassportSize = 600

// jpegQuality matches the ~0.95 quality the export formats standardize on.
const jpegQuality = 95

// String returns the CLI/API name of the mode.
func (m OutputMode) String() string {
	switch m {
	case TransparentPNG:
		return "png"
	case FlattenedJPEG:
		return "jpeg"
	case PassportJPEG:
		return "passport"
	default:
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
}

// ParseOutputMode maps a mode name ("png", "jpeg", "passport") to its OutputMode.
func ParseOutputMode(s string) (OutputMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png", "transparent":
		return TransparentPNG, nil
	case "jpeg", "jpg", "flattened":
		return FlattenedJPEG, nil
	case "passport":
		return PassportJPEG, nil
	default:
		return 0, fmt.Errorf("unknown output mode %q (want png, jpeg, or passport)", s)
	}
}

// Request describes one export: the background-free foreground raster, an
// optional replacement background, the output mode, and the original subject
// filename used to derive the suggested output name.
type Request struct {
	Foreground *image.NRGBA
	Background *image.NRGBA // nil when no background was selected
	Mode       OutputMode
	SourceName string
}

// Output is the terminal export artifact.
type Output struct {
	Bytes    []byte
	MIMEType string
	FileName string
}

// ErrRenderTarget reports that an output canvas could not be established,
// e.g. a foreground raster with zero-area bounds.
var ErrRenderTarget = errors.New("render target unavailable")

// Compose runs the export pipeline for one request. It never returns partial
// output: either a complete encoded artifact or an error naming the failed
// stage.
func Compose(req Request) (*Output, error) {
	if req.Foreground == nil {
		return nil, fmt.Errorf("compose: no foreground raster: %w", ErrRenderTarget)
	}
	fgBounds := req.Foreground.Bounds()
	if fgBounds.Dx() <= 0 || fgBounds.Dy() <= 0 {
		return nil, fmt.Errorf("compose: foreground has empty bounds %v: %w", fgBounds, ErrRenderTarget)
	}

	hasBackground := req.Background != nil && req.Mode != PassportJPEG

	log.Debug().
		Int("fg_width", fgBounds.Dx()).
		Int("fg_height", fgBounds.Dy()).
		Bool("has_background", hasBackground).
		Str("mode", req.Mode.String()).
		Msg("Composing export")

	var (
		canvas *image.NRGBA
		prefix string
	)

	switch req.Mode {
	case TransparentPNG:
		if !hasBackground {
			// Pass-through: encode the foreground raster as-is.
			return encode(req.Foreground, TransparentPNG, "bg-removed-", req.SourceName)
		}
		canvas = overBackground(req.Foreground, req.Background)
		prefix = "composite-"

	case FlattenedJPEG:
		if hasBackground {
			// The cover-fit background already fills every pixel, so no
			// separate flatten step is needed before JPEG encoding.
			canvas = overBackground(req.Foreground, req.Background)
			prefix = "composite-"
		} else {
			canvas = flattenOnWhite(req.Foreground)
			prefix = "bg-removed-"
		}

	case PassportJPEG:
		canvas = passportCanvas(req.Foreground)
		prefix = "passport-"

	default:
		return nil, fmt.Errorf("compose: unknown output mode %d", int(req.Mode))
	}

	return encode(canvas, req.Mode, prefix, req.SourceName)
}

// overBackground allocates a canvas of the foreground's dimensions, draws the
// background cover-fit into it, then alpha-blends the foreground on top at
// (0,0) at native size.
func overBackground(fg, bg *image.NRGBA) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, fg.Bounds().Dx(), fg.Bounds().Dy()))

	window := coverWindow(bg.Bounds(), canvas.Bounds())
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), bg, window, draw.Src, nil)
	draw.Draw(canvas, canvas.Bounds(), fg, fg.Bounds().Min, draw.Over)

	return canvas
}

// flattenOnWhite draws the foreground over an opaque white canvas of the same
// size. This keeps naive alpha-to-JPEG conversion from introducing black
// fringing around partially transparent edges.
func flattenOnWhite(fg *image.NRGBA) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, fg.Bounds().Dx(), fg.Bounds().Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), fg, fg.Bounds().Min, draw.Over)
	return canvas
}

// passportCanvas produces the fixed 600x600 identity-photo canvas: white
// fill, then the centered square crop of the foreground scaled to cover it.
func passportCanvas(fg *image.NRGBA) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, PassportSize, PassportSize))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	window := centeredSquare(fg.Bounds())
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), fg, window, draw.Over, nil)

	return canvas
}

// encode serializes the canvas per mode and derives the suggested filename.
func encode(canvas *image.NRGBA, mode OutputMode, prefix, sourceName string) (*Output, error) {
	var (
		buf      bytes.Buffer
		mimeType string
		ext      string
		err      error
	)

	if mode == TransparentPNG {
		err = png.Encode(&buf, canvas)
		mimeType = "image/png"
		ext = "png"
	} else {
		err = jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality})
		mimeType = "image/jpeg"
		ext = "jpg"
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s output: %w", mode, err)
	}

	out := &Output{
		Bytes:    buf.Bytes(),
		MIMEType: mimeType,
		FileName: fmt.Sprintf("%s%s.%s", prefix, sourceStem(sourceName), ext),
	}

	log.Debug().
		Str("file_name", out.FileName).
		Str("mime_type", out.MIMEType).
		Int("output_size", len(out.Bytes)).
		Msg("Export encoded")

	return out, nil
}

// sourceStem returns the subject filename without directory or extension,
// falling back to "image" when no source name is known.
func sourceStem(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "image"
	}
	return stem
}
