// Package segment calls the Gemini image model to remove the background of a
// photo. It uses the REST API directly so the request can pin the IMAGE
// response modality and so tests can point the client at a local server.
package segment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// defaultBaseURL is the Gemini REST API base URL.
const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// removalInstruction is the fixed prompt sent with every subject photo.
const removalInstruction = "Remove the background from this photo completely. " +
	"Return the exact same photo with the subject perfectly preserved on a fully " +
	"transparent background. Do not crop, restyle, or alter the subject in any way. " +
	"Output a PNG with transparency."

// Client calls a Gemini image model for background removal.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a background-removal client using the default Gemini
// endpoint and the model resolved by GetModelName.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   GetModelName(),
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Image generation can take 10-30s
		},
	}
}

// --- REST API request/response types ---

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlobData `json:"inlineData,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiBlobData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Cutout holds the background-free image returned by the model.
type Cutout struct {
	// Data is the raw bytes of the returned image (normally PNG).
	Data []byte
	// MIMEType is the MIME type of the returned image.
	MIMEType string
	// Text is any explanatory text returned alongside the image.
	Text string
}

// RemoveBackground sends one subject photo to the model and returns the
// cutout from the first inline image part of the response.
//
// Exactly one remote call is made; retry policy belongs to the caller. When
// the model returns only text (e.g. a safety refusal) the error is a
// *ModelRefusedError carrying that text; network and protocol failures are
// *TransportError.
func (c *Client) RemoveBackground(ctx context.Context, imageData []byte, imageMIMEType string) (*Cutout, error) {
	startTime := time.Now()
	log.Info().
		Str("model", c.model).
		Int("image_bytes", len(imageData)).
		Str("image_mime", imageMIMEType).
		Msg("Sending photo to Gemini for background removal")

	req := geminiRequest{
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{
						InlineData: &geminiBlobData{
							MIMEType: imageMIMEType,
							Data:     base64.StdEncoding.EncodeToString(imageData),
						},
					},
					{Text: removalInstruction},
				},
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncateString(string(respBody), 500)).
			Msg("Gemini API returned error")
		return nil, &TransportError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncateString(string(respBody), 200)),
		}
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if geminiResp.Error != nil {
		return nil, &TransportError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("API error: %s (code: %d)", geminiResp.Error.Message, geminiResp.Error.Code),
		}
	}

	// Extract the first inline image and any explanatory text.
	result := &Cutout{}
	for _, candidate := range geminiResp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && result.Data == nil {
				decoded, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("failed to decode image data: %w", err)}
				}
				result.Data = decoded
				result.MIMEType = part.InlineData.MIMEType
			}
			if part.Text != "" {
				result.Text += part.Text
			}
		}
	}

	if result.Data == nil {
		reason := result.Text
		if reason == "" {
			reason = "the model returned neither an image nor an explanation"
		}
		return nil, &ModelRefusedError{Reason: reason}
	}

	log.Info().
		Int("output_bytes", len(result.Data)).
		Str("output_mime", result.MIMEType).
		Dur("duration", time.Since(startTime)).
		Msg("Background removal complete")

	return result, nil
}

// truncateString truncates a string to maxLen, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
