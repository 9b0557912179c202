package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/bg-studio/internal/cli"
	"github.com/fpang/bg-studio/internal/compose"
	"github.com/fpang/bg-studio/internal/filehandler"
	"github.com/fpang/bg-studio/internal/logging"
	"github.com/fpang/bg-studio/internal/segment"
	"github.com/fpang/bg-studio/internal/session"
)

// CLI flags
var (
	inputFlag      string
	backgroundFlag string
	modeFlag       string
	outputDirFlag  string
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "bg-studio",
	Short: "AI-powered background removal and replacement for photos",
	Long: `Background Studio removes the background of a photo using a remote Gemini
image model, optionally composites a replacement background behind the cutout,
and exports the result as a transparent PNG, a flattened JPEG, or a 600x600
passport photo.

Examples:
  bg-studio --input portrait.jpg
  bg-studio -i portrait.jpg -b beach.png -m jpeg
  bg-studio -i portrait.jpg -m passport -o ./exports
  bg-studio  # Interactive mode - opens a native file picker`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&inputFlag, "input", "i", "", "Subject photo to remove the background from")
	rootCmd.Flags().StringVarP(&backgroundFlag, "background", "b", "", "Optional replacement background image")
	rootCmd.Flags().StringVarP(&modeFlag, "mode", "m", "png", "Output mode: png (transparent), jpeg (flattened), or passport (600x600)")
	rootCmd.Flags().StringVarP(&outputDirFlag, "output-dir", "o", ".", "Directory to write the exported file to")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	mode, err := compose.ParseOutputMode(modeFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --mode")
	}

	inputPath := inputFlag
	if inputPath == "" {
		inputPath, err = cli.PickImageFile("Select subject photo")
		if err != nil {
			if errors.Is(err, cli.ErrCanceled) {
				log.Info().Msg("No subject selected, exiting")
				return
			}
			log.Fatal().Err(err).Msg("Subject selection failed")
		}
	}

	subject, err := filehandler.LoadImage(inputPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", inputPath).Msg("Failed to load subject photo")
	}
	filehandler.LogSubjectContext(inputPath)

	var backgroundData []byte
	if backgroundFlag != "" {
		background, err := filehandler.LoadImage(backgroundFlag)
		if err != nil {
			log.Fatal().Err(err).Str("path", backgroundFlag).Msg("Failed to load background image")
		}
		backgroundData = background.Data
	}
	if mode == compose.PassportJPEG && backgroundData != nil {
		log.Warn().Msg("Passport mode always uses a white background; ignoring --background")
		backgroundData = nil
	}

	ctx := context.Background()
	apiKey := cli.InitAPIKey(ctx)

	sess := session.New(segment.NewClient(apiKey))
	if err := sess.Load(ctx, filepath.Base(inputPath), subject.Data, subject.MIMEType, backgroundData); err != nil {
		var refused *segment.ModelRefusedError
		if errors.As(err, &refused) {
			log.Fatal().Str("reason", refused.Reason).Msg("The model declined to process this photo")
		}
		log.Fatal().Err(err).Msg("Failed to prepare composition inputs")
	}

	out, err := sess.Export(mode)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	outPath := filepath.Join(outputDirFlag, out.FileName)
	if err := os.WriteFile(outPath, out.Bytes, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", outPath).Msg("Failed to write output file")
	}

	log.Info().
		Str("path", outPath).
		Str("mime_type", out.MIMEType).
		Int("size", len(out.Bytes)).
		Msg("Export written")
}
