package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/bg-studio/internal/compose"
	"github.com/fpang/bg-studio/internal/raster"
	"github.com/fpang/bg-studio/internal/segment"
	"github.com/fpang/bg-studio/internal/session"
)

// maxUploadBytes caps a single image upload.
const maxUploadBytes = 25 << 20

// sessionStore maps session IDs to their editing sessions.
type sessionStore struct {
	seg session.Segmenter

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newSessionStore(seg session.Segmenter) *sessionStore {
	return &sessionStore{
		seg:      seg,
		sessions: make(map[string]*session.Session),
	}
}

func (st *sessionStore) get(id string) (*session.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// POST /api/session
// Multipart upload of the subject photo. Segments it and returns the session
// ID once the cutout is ready.
func (st *sessionStore) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name, data, mimeType, ok := readImageUpload(w, r, "subject")
	if !ok {
		return
	}

	id := uuid.NewString()
	sess := session.New(st.seg)

	if err := sess.SetSubject(r.Context(), name, data, mimeType); err != nil {
		writePipelineError(w, err)
		return
	}

	st.mu.Lock()
	st.sessions[id] = sess
	st.mu.Unlock()

	log.Info().Str("session_id", id).Str("subject", name).Msg("Session created")
	respondJSON(w, http.StatusOK, map[string]string{"sessionId": id})
}

// handleSessionRoutes dispatches /api/session/{id}/{action}.
func (st *sessionStore) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/session/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	id, action := parts[0], parts[1]

	sess, ok := st.get(id)
	if !ok {
		httpError(w, http.StatusNotFound, "unknown session")
		return
	}

	switch action {
	case "background":
		st.handleBackground(w, r, sess)
	case "preview":
		st.handlePreview(w, r, sess)
	case "export":
		st.handleExport(w, r, sess)
	case "reset":
		st.handleReset(w, r, id, sess)
	default:
		httpError(w, http.StatusNotFound, "not found")
	}
}

// POST /api/session/{id}/background
func (st *sessionStore) handleBackground(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	switch r.Method {
	case http.MethodPost:
		_, data, _, ok := readImageUpload(w, r, "background")
		if !ok {
			return
		}
		if err := sess.SetBackground(data); err != nil {
			writePipelineError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"hasBackground": true})

	case http.MethodDelete:
		sess.ClearBackground()
		respondJSON(w, http.StatusOK, map[string]bool{"hasBackground": false})

	default:
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET /api/session/{id}/preview
// Serves the current cutout as transparent PNG for display.
func (st *sessionStore) handlePreview(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	out, err := sess.Export(compose.TransparentPNG)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", out.MIMEType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(out.Bytes)
}

// GET /api/session/{id}/export?mode=png|jpeg|passport
// Serves the export as a file download.
func (st *sessionStore) handleExport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	mode, err := compose.ParseOutputMode(r.URL.Query().Get("mode"))
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := sess.Export(mode)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", out.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.FileName))
	w.Write(out.Bytes)
}

// POST /api/session/{id}/reset
func (st *sessionStore) handleReset(w http.ResponseWriter, r *http.Request, id string, sess *session.Session) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sess.Reset()
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()

	log.Info().Str("session_id", id).Msg("Session reset")
	respondJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

// readImageUpload extracts one multipart image upload from the request. On
// failure it writes the HTTP error itself and returns ok=false.
func readImageUpload(w http.ResponseWriter, r *http.Request, field string) (name string, data []byte, mimeType string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart upload")
		return "", nil, "", false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("missing %q file field", field))
		return "", nil, "", false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "failed to read upload")
		return "", nil, "", false
	}

	mimeType = header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	return header.Filename, data, mimeType, true
}

// writePipelineError maps pipeline errors to HTTP responses that name the
// failed stage, so the UI can show an accurate message.
func writePipelineError(w http.ResponseWriter, err error) {
	var refused *segment.ModelRefusedError
	var transport *segment.TransportError
	var decode *raster.DecodeError

	switch {
	case errors.As(err, &refused):
		httpError(w, http.StatusUnprocessableEntity, refused.Reason)
	case errors.As(err, &transport):
		log.Error().Err(err).Msg("Segmentation transport failure")
		httpError(w, http.StatusBadGateway, "the background removal service could not be reached")
	case errors.As(err, &decode):
		httpError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNoForeground):
		httpError(w, http.StatusConflict, "no segmented photo available yet")
	case errors.Is(err, session.ErrSuperseded):
		httpError(w, http.StatusConflict, "a newer upload replaced this request")
	default:
		log.Error().Err(err).Msg("Export failed")
		httpError(w, http.StatusInternalServerError, err.Error())
	}
}
