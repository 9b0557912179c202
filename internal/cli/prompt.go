package cli

import (
	"errors"
	"fmt"

	"github.com/ncruces/zenity"
)

// ErrCanceled reports that the user dismissed a file picker dialog.
var ErrCanceled = errors.New("file selection canceled")

// imagePatterns are the file patterns offered by the native pickers. They
// mirror the extensions filehandler accepts.
var imagePatterns = []string{"*.jpg", "*.jpeg", "*.png", "*.webp"}

// PickImageFile opens a native file-selection dialog for a single image.
// Returns ErrCanceled if the user dismisses the dialog.
func PickImageFile(title string) (string, error) {
	selected, err := zenity.SelectFile(
		zenity.Title(title),
		zenity.FileFilters{
			{
				Name:     "Image files",
				Patterns: imagePatterns,
			},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrCanceled
		}
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	return selected, nil
}
