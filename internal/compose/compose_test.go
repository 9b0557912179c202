package compose

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// newFilledNRGBA returns a raster filled with one color.
func newFilledNRGBA(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// newCircleCutout returns a transparent raster with an opaque circular
// subject centered in it, like a segmented portrait.
func newCircleCutout(w, h int, subject color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	cx, cy := w/2, h/2
	r := w
	if h < w {
		r = h
	}
	r = r / 3
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetNRGBA(x, y, subject)
			}
		}
	}
	return img
}

func colorNear(t *testing.T, got color.Color, want color.NRGBA, tolerance int, context string) {
	t.Helper()
	r, g, b, _ := got.RGBA()
	diff := func(a uint32, b uint8) int {
		d := int(a>>8) - int(b)
		if d < 0 {
			d = -d
		}
		return d
	}
	if diff(r, want.R) > tolerance || diff(g, want.G) > tolerance || diff(b, want.B) > tolerance {
		t.Errorf("%s: got color (%d, %d, %d), want near (%d, %d, %d)",
			context, r>>8, g>>8, b>>8, want.R, want.G, want.B)
	}
}

func TestComposePassThroughIdentity(t *testing.T) {
	fg := newCircleCutout(400, 300, color.NRGBA{R: 200, G: 40, B: 40, A: 255})

	out, err := Compose(Request{Foreground: fg, Mode: TransparentPNG, SourceName: "portrait.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", out.MIMEType)
	}
	if out.FileName != "bg-removed-portrait.png" {
		t.Errorf("FileName = %q, want bg-removed-portrait.png", out.FileName)
	}

	decoded, err := png.Decode(bytes.NewReader(out.Bytes))
	if err != nil {
		t.Fatalf("output is not valid PNG: %v", err)
	}

	// Pass-through: every pixel, including alpha, survives unchanged.
	bounds := decoded.Bounds()
	if bounds.Dx() != 400 || bounds.Dy() != 300 {
		t.Fatalf("output bounds = %v, want 400x300", bounds)
	}
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			gr, gg, gb, ga := decoded.At(x, y).RGBA()
			wr, wg, wb, wa := fg.At(x, y).RGBA()
			if gr != wr || gg != wg || gb != wb || ga != wa {
				t.Fatalf("pixel (%d,%d) changed: got (%d,%d,%d,%d), want (%d,%d,%d,%d)",
					x, y, gr, gg, gb, ga, wr, wg, wb, wa)
			}
		}
	}
}

func TestComposeCanvasAlwaysForegroundSized(t *testing.T) {
	tests := []struct {
		name       string
		fgW, fgH   int
		bgW, bgH   int
		mode       OutputMode
		wantFormat string
	}{
		{"wider background png", 400, 300, 1000, 500, TransparentPNG, "png"},
		{"taller background png", 400, 300, 300, 900, TransparentPNG, "png"},
		{"wider background jpeg", 640, 480, 1920, 400, FlattenedJPEG, "jpeg"},
		{"same aspect jpeg", 200, 100, 800, 400, FlattenedJPEG, "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newCircleCutout(tt.fgW, tt.fgH, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
			bg := newFilledNRGBA(tt.bgW, tt.bgH, color.NRGBA{R: 30, G: 60, B: 200, A: 255})

			out, err := Compose(Request{Foreground: fg, Background: bg, Mode: tt.mode, SourceName: "p.png"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			decoded, format, err := image.Decode(bytes.NewReader(out.Bytes))
			if err != nil {
				t.Fatalf("failed to decode output: %v", err)
			}
			if format != tt.wantFormat {
				t.Errorf("format = %q, want %q", format, tt.wantFormat)
			}
			if decoded.Bounds().Dx() != tt.fgW || decoded.Bounds().Dy() != tt.fgH {
				t.Errorf("output is %dx%d, want foreground dimensions %dx%d",
					decoded.Bounds().Dx(), decoded.Bounds().Dy(), tt.fgW, tt.fgH)
			}
		})
	}
}

func TestComposeCompositeNaming(t *testing.T) {
	fg := newCircleCutout(100, 100, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	bg := newFilledNRGBA(50, 50, color.NRGBA{R: 30, G: 60, B: 200, A: 255})

	tests := []struct {
		name     string
		bg       *image.NRGBA
		mode     OutputMode
		source   string
		wantName string
	}{
		{"transparent no background", nil, TransparentPNG, "me.jpeg", "bg-removed-me.png"},
		{"transparent with background", bg, TransparentPNG, "me.jpeg", "composite-me.png"},
		{"flattened no background", nil, FlattenedJPEG, "holiday.webp", "bg-removed-holiday.jpg"},
		{"flattened with background", bg, FlattenedJPEG, "holiday.webp", "composite-holiday.jpg"},
		{"passport ignores background", bg, PassportJPEG, "id.png", "passport-id.jpg"},
		{"no source name", nil, TransparentPNG, "", "bg-removed-image.png"},
		{"source with directory", nil, FlattenedJPEG, "/tmp/shots/pic.png", "bg-removed-pic.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Compose(Request{Foreground: fg, Background: tt.bg, Mode: tt.mode, SourceName: tt.source})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.FileName != tt.wantName {
				t.Errorf("FileName = %q, want %q", out.FileName, tt.wantName)
			}
		})
	}
}

func TestComposeFlattenLeavesNoTransparency(t *testing.T) {
	fg := newCircleCutout(120, 90, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	// Add a half-transparent edge pixel to exercise partial alpha too.
	fg.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 10, B: 10, A: 128})

	canvas := flattenOnWhite(fg)
	for y := 0; y < 90; y++ {
		for x := 0; x < 120; x++ {
			if a := canvas.NRGBAAt(x, y).A; a != 255 {
				t.Fatalf("pixel (%d,%d) has alpha %d after flattening, want 255", x, y, a)
			}
		}
	}

	// Fully transparent input pixels end up white.
	corner := canvas.NRGBAAt(119, 0)
	if corner.R != 255 || corner.G != 255 || corner.B != 255 {
		t.Errorf("transparent pixel flattened to (%d,%d,%d), want white", corner.R, corner.G, corner.B)
	}
}

func TestComposeFlattenedJPEGScenario(t *testing.T) {
	// F = 400x300 circular opaque subject on transparency, B = 1000x500
	// opaque photo, mode = FlattenedJPEG.
	subject := color.NRGBA{R: 200, G: 40, B: 40, A: 255}
	backdrop := color.NRGBA{R: 30, G: 60, B: 200, A: 255}
	fg := newCircleCutout(400, 300, subject)
	bg := newFilledNRGBA(1000, 500, backdrop)

	out, err := Compose(Request{Foreground: fg, Background: bg, Mode: FlattenedJPEG, SourceName: "trip.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", out.MIMEType)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out.Bytes))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != 400 || decoded.Bounds().Dy() != 300 {
		t.Fatalf("output is %dx%d, want 400x300", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}

	// Background fills the pixels outside the subject silhouette; the
	// subject survives in the middle. JPEG is lossy, so compare loosely.
	colorNear(t, decoded.At(5, 5), backdrop, 12, "corner outside silhouette")
	colorNear(t, decoded.At(395, 295), backdrop, 12, "opposite corner")
	colorNear(t, decoded.At(200, 150), subject, 12, "subject center")
}

func TestComposePassportOutput(t *testing.T) {
	tests := []struct {
		name     string
		fgW, fgH int
	}{
		{"square input", 800, 800},
		{"landscape input", 1200, 700},
		{"portrait input", 300, 900},
		{"smaller than output", 200, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newCircleCutout(tt.fgW, tt.fgH, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
			// Background must be ignored in passport mode.
			bg := newFilledNRGBA(500, 500, color.NRGBA{R: 30, G: 60, B: 200, A: 255})

			out, err := Compose(Request{Foreground: fg, Background: bg, Mode: PassportJPEG, SourceName: "id.jpg"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			decoded, err := jpeg.Decode(bytes.NewReader(out.Bytes))
			if err != nil {
				t.Fatalf("output is not valid JPEG: %v", err)
			}
			if decoded.Bounds().Dx() != PassportSize || decoded.Bounds().Dy() != PassportSize {
				t.Fatalf("output is %dx%d, want %dx%d",
					decoded.Bounds().Dx(), decoded.Bounds().Dy(), PassportSize, PassportSize)
			}

			// Margins outside the circular subject are white, never the
			// backdrop color: passport photos standardize on white.
			colorNear(t, decoded.At(3, 3), color.NRGBA{R: 255, G: 255, B: 255, A: 255}, 12, "corner margin")
			colorNear(t, decoded.At(PassportSize/2, PassportSize/2), color.NRGBA{R: 200, G: 40, B: 40, A: 255}, 12, "subject center")
		})
	}
}

func TestComposeRenderTargetErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"nil foreground", Request{Mode: TransparentPNG}},
		{"empty foreground", Request{Foreground: image.NewNRGBA(image.Rect(0, 0, 0, 0)), Mode: FlattenedJPEG}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compose(tt.req)
			if !errors.Is(err, ErrRenderTarget) {
				t.Errorf("error = %v, want ErrRenderTarget", err)
			}
		})
	}
}

func TestParseOutputMode(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputMode
		wantErr bool
	}{
		{"png", TransparentPNG, false},
		{"transparent", TransparentPNG, false},
		{"jpeg", FlattenedJPEG, false},
		{"jpg", FlattenedJPEG, false},
		{"PASSPORT", PassportJPEG, false},
		{" png ", TransparentPNG, false},
		{"gif", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOutputMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseOutputMode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
