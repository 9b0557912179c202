// Package cli provides startup and prompting helpers shared by the bg-studio
// binaries.
package cli

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fpang/bg-studio/internal/auth"
)

// InitAPIKey retrieves the Gemini API key and validates it with a minimal
// API call. Returns the key ready for use, or exits fatally on failure.
func InitAPIKey(ctx context.Context) string {
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to retrieve API key")
	}

	client, err := auth.NewGeminiClient(ctx, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Gemini client")
	}

	if err := auth.ValidateAPIKey(ctx, client); err != nil {
		HandleValidationError(err)
	}

	log.Info().Msg("API key validation complete - ready for operations")

	return apiKey
}
