package segment

import "os"

// Gemini image model IDs. Background removal needs a model with IMAGE
// response modality; the text-only models cannot serve it.
const (
	// ModelGemini3ProImage is the advanced image generation/edit model.
	ModelGemini3ProImage = "gemini-3-pro-image-preview"

	// ModelGemini25FlashImage is the stable, lower-cost image model.
	ModelGemini25FlashImage = "gemini-2.5-flash-image"
)

// DefaultModelName is the default image model for background removal.
// Can be overridden via the GEMINI_MODEL environment variable.
const DefaultModelName = ModelGemini3ProImage

// GetModelName returns the Gemini image model to use, resolved from:
// 1. GEMINI_MODEL environment variable (if set)
// 2. Default: gemini-3-pro-image-preview
func GetModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}
