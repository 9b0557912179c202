// Package filehandler loads image files from disk and extracts the metadata
// the tool logs about them.
package filehandler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// SupportedImageExtensions maps the accepted input extensions to MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// ImageFile is one loaded input image.
type ImageFile struct {
	Path     string
	MIMEType string
	Size     int64
	Data     []byte
}

// LoadImage reads an image file, rejecting unsupported extensions before
// touching the bytes.
func LoadImage(path string) (*ImageFile, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := SupportedImageExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported image format %q (want jpg, jpeg, png, or webp)", ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not an image file", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	log.Debug().
		Str("path", path).
		Str("mime_type", mime).
		Int64("size", info.Size()).
		Msg("Loaded image file")

	return &ImageFile{
		Path:     path,
		MIMEType: mime,
		Size:     info.Size(),
		Data:     data,
	}, nil
}
