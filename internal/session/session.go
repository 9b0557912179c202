// Package session owns the per-user editing state: the segmented foreground,
// the optional replacement background, and the export entry point.
//
// State is replaced wholesale on every new upload or reset. A generation
// counter guards against an abandoned in-flight segmentation call writing
// into state that has since been replaced.
package session

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/bg-studio/internal/compose"
	"github.com/fpang/bg-studio/internal/raster"
	"github.com/fpang/bg-studio/internal/segment"
)

// Segmenter is the remote background-removal boundary consumed by a session.
type Segmenter interface {
	RemoveBackground(ctx context.Context, imageData []byte, imageMIMEType string) (*segment.Cutout, error)
}

// ErrSuperseded reports that a segmentation result arrived after the session
// state it targeted was replaced by a newer upload or a reset. The result is
// discarded, never applied.
var ErrSuperseded = errors.New("session: result superseded by a newer upload")

// ErrNoForeground reports an export attempt before a subject was segmented.
var ErrNoForeground = errors.New("session: no segmented foreground available")

// Session holds the current editing state. Safe for concurrent use.
type Session struct {
	seg Segmenter

	mu          sync.Mutex
	gen         uint64
	subjectName string
	foreground  *image.NRGBA
	background  *image.NRGBA
}

// New creates an empty session backed by the given segmenter.
func New(seg Segmenter) *Session {
	return &Session{seg: seg}
}

// SetSubject replaces the session subject and segments it. Any previous
// foreground and background are dropped first, so an earlier in-flight
// segmentation can no longer land.
func (s *Session) SetSubject(ctx context.Context, name string, data []byte, mimeType string) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.subjectName = name
	s.foreground = nil
	s.background = nil
	s.mu.Unlock()

	fg, err := s.segment(ctx, data, mimeType)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		log.Debug().Str("subject", name).Msg("Discarding stale segmentation result")
		return ErrSuperseded
	}
	s.foreground = fg
	return nil
}

// SetBackground decodes and stores the replacement background image.
func (s *Session) SetBackground(data []byte) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	bg, _, err := raster.Decode(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrSuperseded
	}
	s.background = bg
	return nil
}

// ClearBackground removes the replacement background, if any.
func (s *Session) ClearBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background = nil
}

// Reset replaces the whole session state with an empty one. In-flight work
// from before the reset is abandoned.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.subjectName = ""
	s.foreground = nil
	s.background = nil
}

// Load segments the subject and decodes the optional background
// concurrently, joining before either is applied. backgroundData may be nil.
// Composition never starts until both inputs are ready; neither side is
// required to finish first.
func (s *Session) Load(ctx context.Context, name string, subjectData []byte, subjectMIME string, backgroundData []byte) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.subjectName = name
	s.foreground = nil
	s.background = nil
	s.mu.Unlock()

	var (
		fg *image.NRGBA
		bg *image.NRGBA
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fg, err = s.segment(gctx, subjectData, subjectMIME)
		return err
	})
	if backgroundData != nil {
		g.Go(func() error {
			var err error
			bg, _, err = raster.Decode(backgroundData)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrSuperseded
	}
	s.foreground = fg
	s.background = bg
	return nil
}

// Ready reports whether a segmented foreground is available for export.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foreground != nil
}

// HasBackground reports whether a replacement background is loaded.
func (s *Session) HasBackground() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background != nil
}

// Export composes the current state into encoded output bytes for the given
// mode. The session rasters are read, never mutated.
func (s *Session) Export(mode compose.OutputMode) (*compose.Output, error) {
	s.mu.Lock()
	req := compose.Request{
		Foreground: s.foreground,
		Background: s.background,
		Mode:       mode,
		SourceName: s.subjectName,
	}
	s.mu.Unlock()

	if req.Foreground == nil {
		return nil, ErrNoForeground
	}
	return compose.Compose(req)
}

// segment runs the remote call and decodes the returned cutout.
func (s *Session) segment(ctx context.Context, data []byte, mimeType string) (*image.NRGBA, error) {
	cut, err := s.seg.RemoveBackground(ctx, data, mimeType)
	if err != nil {
		return nil, err
	}
	fg, _, err := raster.Decode(cut.Data)
	if err != nil {
		return nil, err
	}
	return fg, nil
}
