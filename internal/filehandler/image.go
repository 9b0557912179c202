package filehandler

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// ImageMetadata contains EXIF metadata extracted from a subject photo.
// It is logged for context only; the pipeline itself never depends on it.
type ImageMetadata struct {
	// Timestamp (with timezone if available in OffsetTimeOriginal)
	DateTaken time.Time
	HasDate   bool

	// Camera info
	CameraMake  string
	CameraModel string
}

// ExtractImageMetadata extracts EXIF metadata from an image file using the
// imagemeta library. It reads only the metadata bytes, not the whole file,
// and supports JPEG, HEIC, TIFF, and (with limited fields) PNG/WebP.
func ExtractImageMetadata(filePath string) (*ImageMetadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	exifData, err := imagemeta.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	metadata := &ImageMetadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	// Priority: DateTimeOriginal > CreateDate > ModifyDate
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		metadata.DateTaken = exifData.DateTimeOriginal()
		metadata.HasDate = true
	case !exifData.CreateDate().IsZero():
		metadata.DateTaken = exifData.CreateDate()
		metadata.HasDate = true
	case !exifData.ModifyDate().IsZero():
		metadata.DateTaken = exifData.ModifyDate()
		metadata.HasDate = true
	}

	return metadata, nil
}

// LogSubjectContext logs what is known about the subject photo at debug
// level. EXIF failures are not fatal; many exports (e.g. screenshots or
// WebP) carry no metadata at all.
func LogSubjectContext(filePath string) {
	meta, err := ExtractImageMetadata(filePath)
	if err != nil {
		log.Debug().Err(err).Str("path", filePath).Msg("No EXIF metadata available")
		return
	}

	evt := log.Debug().Str("path", filePath)
	if meta.CameraMake != "" || meta.CameraModel != "" {
		evt = evt.Str("camera", strings.TrimSpace(meta.CameraMake+" "+meta.CameraModel))
	}
	if meta.HasDate {
		evt = evt.Str("date_taken", meta.DateTaken.Format("2006-01-02 15:04:05"))
	}
	evt.Msg("Subject photo metadata")
}
