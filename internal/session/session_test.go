package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"runtime"
	"sync"
	"testing"

	"github.com/fpang/bg-studio/internal/compose"
	"github.com/fpang/bg-studio/internal/raster"
	"github.com/fpang/bg-studio/internal/segment"
)

// fakeSegmenter returns a canned cutout, optionally blocking until released
// so tests can interleave a reset with an in-flight call.
type fakeSegmenter struct {
	cutout  []byte
	err     error
	release chan struct{} // nil means return immediately

	mu    sync.Mutex
	calls int
}

func (f *fakeSegmenter) RemoveBackground(ctx context.Context, data []byte, mimeType string) (*segment.Cutout, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &segment.Cutout{Data: f.cutout, MIMEType: "image/png"}, nil
}

func (f *fakeSegmenter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func encodeNRGBA(t *testing.T, img *image.NRGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func cutoutPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(w/2, h/2, color.NRGBA{R: 255, A: 255})
	return encodeNRGBA(t, img)
}

func TestSetSubjectAndExport(t *testing.T) {
	seg := &fakeSegmenter{cutout: cutoutPNG(t, 40, 30)}
	sess := New(seg)

	if sess.Ready() {
		t.Fatal("new session must not be ready")
	}

	if err := sess.SetSubject(context.Background(), "me.jpg", []byte("raw"), "image/jpeg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.Ready() {
		t.Fatal("session must be ready after segmentation")
	}
	if seg.callCount() != 1 {
		t.Errorf("segmenter called %d times, want exactly 1", seg.callCount())
	}

	out, err := sess.Export(compose.TransparentPNG)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.FileName != "bg-removed-me.png" {
		t.Errorf("FileName = %q, want bg-removed-me.png", out.FileName)
	}
}

func TestExportWithoutForeground(t *testing.T) {
	sess := New(&fakeSegmenter{cutout: cutoutPNG(t, 4, 4)})
	if _, err := sess.Export(compose.TransparentPNG); !errors.Is(err, ErrNoForeground) {
		t.Errorf("error = %v, want ErrNoForeground", err)
	}
}

func TestSegmentationErrorPropagates(t *testing.T) {
	refusal := &segment.ModelRefusedError{Reason: "Unable to process: unsafe content"}
	sess := New(&fakeSegmenter{err: refusal})

	err := sess.SetSubject(context.Background(), "me.jpg", []byte("raw"), "image/jpeg")
	var refused *segment.ModelRefusedError
	if !errors.As(err, &refused) {
		t.Fatalf("error = %v, want *ModelRefusedError", err)
	}
	if sess.Ready() {
		t.Error("no composite state may exist after a refusal")
	}
}

func TestUndecodableCutout(t *testing.T) {
	sess := New(&fakeSegmenter{cutout: []byte("not an image")})

	err := sess.SetSubject(context.Background(), "me.jpg", []byte("raw"), "image/jpeg")
	var decodeErr *raster.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	seg := &fakeSegmenter{cutout: cutoutPNG(t, 10, 10), release: release}
	sess := New(seg)

	done := make(chan error, 1)
	go func() {
		done <- sess.SetSubject(context.Background(), "old.jpg", []byte("raw"), "image/jpeg")
	}()

	// The user resets while segmentation is still in flight.
	for seg.callCount() == 0 {
		runtime.Gosched()
	}
	sess.Reset()
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("error = %v, want ErrSuperseded", err)
	}
	if sess.Ready() {
		t.Error("discarded result must not be applied to the replaced state")
	}
}

func TestNewUploadSupersedesInFlightResult(t *testing.T) {
	release := make(chan struct{})
	seg := &fakeSegmenter{cutout: cutoutPNG(t, 10, 10), release: release}
	sess := New(seg)

	done := make(chan error, 1)
	go func() {
		done <- sess.SetSubject(context.Background(), "first.jpg", []byte("one"), "image/jpeg")
	}()

	// The state is replaced while the first call is still in flight; a new
	// subject is then uploaded. Only the newest generation may land.
	for seg.callCount() == 0 {
		runtime.Gosched()
	}
	sess.Reset()
	close(release)
	if err := sess.SetSubject(context.Background(), "second.jpg", []byte("two"), "image/jpeg"); err != nil {
		t.Fatalf("unexpected error for newest upload: %v", err)
	}

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("first upload error = %v, want ErrSuperseded", err)
	}

	out, err := sess.Export(compose.TransparentPNG)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.FileName != "bg-removed-second.png" {
		t.Errorf("FileName = %q, want the newest subject's name", out.FileName)
	}
}

func TestLoadJoinsSubjectAndBackground(t *testing.T) {
	sess := New(&fakeSegmenter{cutout: cutoutPNG(t, 40, 30)})

	bg := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			bg.SetNRGBA(x, y, color.NRGBA{B: 200, A: 255})
		}
	}

	err := sess.Load(context.Background(), "trip.png", []byte("raw"), "image/png", encodeNRGBA(t, bg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.Ready() || !sess.HasBackground() {
		t.Fatal("both inputs must be ready after Load")
	}

	out, err := sess.Export(compose.FlattenedJPEG)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.FileName != "composite-trip.jpg" {
		t.Errorf("FileName = %q, want composite-trip.jpg", out.FileName)
	}
}

func TestLoadWithoutBackground(t *testing.T) {
	sess := New(&fakeSegmenter{cutout: cutoutPNG(t, 8, 8)})

	if err := sess.Load(context.Background(), "solo.png", []byte("raw"), "image/png", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.HasBackground() {
		t.Error("no background was supplied")
	}
}

func TestLoadFailsWhenBackgroundUndecodable(t *testing.T) {
	sess := New(&fakeSegmenter{cutout: cutoutPNG(t, 8, 8)})

	err := sess.Load(context.Background(), "trip.png", []byte("raw"), "image/png", []byte("junk"))
	var decodeErr *raster.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if sess.Ready() {
		t.Error("no partial state may be applied when one input fails")
	}
}

func TestClearBackground(t *testing.T) {
	sess := New(&fakeSegmenter{cutout: cutoutPNG(t, 8, 8)})

	bg := encodeNRGBA(t, image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	if err := sess.Load(context.Background(), "a.png", []byte("raw"), "image/png", bg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess.ClearBackground()
	if sess.HasBackground() {
		t.Error("background must be gone after ClearBackground")
	}

	out, err := sess.Export(compose.TransparentPNG)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.FileName != "bg-removed-a.png" {
		t.Errorf("FileName = %q, want pass-through naming after clearing", out.FileName)
	}
}
