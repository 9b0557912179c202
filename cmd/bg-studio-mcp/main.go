// bg-studio-mcp exposes background removal and export over the Model Context
// Protocol, so agent hosts can drive the same pipeline as the CLI and web UI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/fpang/bg-studio/internal/auth"
	"github.com/fpang/bg-studio/internal/compose"
	"github.com/fpang/bg-studio/internal/filehandler"
	"github.com/fpang/bg-studio/internal/logging"
	"github.com/fpang/bg-studio/internal/segment"
	"github.com/fpang/bg-studio/internal/session"
)

type removeBackgroundInput struct {
	Path      string `json:"path" jsonschema:"Path to the subject photo (jpg, png, or webp)"`
	OutputDir string `json:"outputDir,omitempty" jsonschema:"Directory to write the cutout to (default: alongside the input)"`
}

type composeExportInput struct {
	SubjectPath    string `json:"subjectPath" jsonschema:"Path to the subject photo (jpg, png, or webp)"`
	BackgroundPath string `json:"backgroundPath,omitempty" jsonschema:"Optional replacement background image"`
	Mode           string `json:"mode" jsonschema:"Output mode: png (transparent), jpeg (flattened), or passport (600x600)"`
	OutputDir      string `json:"outputDir,omitempty" jsonschema:"Directory to write the export to (default: alongside the subject)"`
}

type exportOutput struct {
	OutputPath string `json:"outputPath"`
	MIMEType   string `json:"mimeType"`
	SizeBytes  int    `json:"sizeBytes"`
}

func main() {
	logging.Init()

	apiKey, err := auth.GetAPIKey()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get API key")
	}
	seg := segment.NewClient(apiKey)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "bg-studio",
		Version: "0.3.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_background",
		Description: "Remove the background of a photo and save the cutout as a transparent PNG.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in removeBackgroundInput) (*mcp.CallToolResult, exportOutput, error) {
		out, err := runPipeline(ctx, seg, in.Path, "", compose.TransparentPNG, in.OutputDir)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "compose_export",
		Description: "Remove the background of a photo, optionally composite a replacement background behind it, and export as transparent PNG, flattened JPEG, or a 600x600 passport JPEG.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in composeExportInput) (*mcp.CallToolResult, exportOutput, error) {
		mode, err := compose.ParseOutputMode(in.Mode)
		if err != nil {
			return nil, exportOutput{}, err
		}
		out, err := runPipeline(ctx, seg, in.SubjectPath, in.BackgroundPath, mode, in.OutputDir)
		return nil, out, err
	})

	log.Info().Msg("Starting MCP server on stdio")
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}

// runPipeline executes segment -> compose -> write for one tool call.
func runPipeline(ctx context.Context, seg session.Segmenter, subjectPath, backgroundPath string, mode compose.OutputMode, outputDir string) (exportOutput, error) {
	subject, err := filehandler.LoadImage(subjectPath)
	if err != nil {
		return exportOutput{}, fmt.Errorf("failed to load subject: %w", err)
	}

	var backgroundData []byte
	if backgroundPath != "" {
		background, err := filehandler.LoadImage(backgroundPath)
		if err != nil {
			return exportOutput{}, fmt.Errorf("failed to load background: %w", err)
		}
		backgroundData = background.Data
	}

	sess := session.New(seg)
	if err := sess.Load(ctx, filepath.Base(subjectPath), subject.Data, subject.MIMEType, backgroundData); err != nil {
		return exportOutput{}, err
	}

	out, err := sess.Export(mode)
	if err != nil {
		return exportOutput{}, err
	}

	if outputDir == "" {
		outputDir = filepath.Dir(subjectPath)
	}
	outPath := filepath.Join(outputDir, out.FileName)
	if err := os.WriteFile(outPath, out.Bytes, 0o644); err != nil {
		return exportOutput{}, fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().Str("path", outPath).Str("mode", mode.String()).Msg("Export written")

	return exportOutput{
		OutputPath: outPath,
		MIMEType:   out.MIMEType,
		SizeBytes:  len(out.Bytes),
	}, nil
}
