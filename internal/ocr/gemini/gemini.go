// Package gemini implements receipt extraction against the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"bilancio/internal/core"
	"bilancio/internal/ocr"
)

const defaultModel = "gemini-2.5-flash"

const prompt = `Read this receipt image and answer with a single JSON object,
no prose, with exactly these keys:
  "merchant": store or vendor name,
  "date": purchase date as YYYY-MM-DD,
  "amount": grand total as a positive decimal number,
  "category": one of Food, Rent, Utilities, Entertainment, Transport,
              or an empty string if unsure.`

type Client struct {
	client *genai.Client
	model  string
}

var _ ocr.Extractor = (*Client)(nil)

// New creates a client with an explicit API key and model. An empty
// model falls back to the default.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing Gemini API key")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

// NewFromEnv creates a client using environment variables.
// Required: GEMINI_API_KEY. Optional: GEMINI_MODEL.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, os.Getenv("GEMINI_API_KEY"), strings.TrimSpace(os.Getenv("GEMINI_MODEL")))
}

// Close releases the underlying API connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Extract sends the image with the extraction prompt and parses the
// model's JSON reply.
func (c *Client) Extract(ctx context.Context, mimeType string, image []byte) (ocr.Fields, error) {
	model := c.client.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx,
		genai.Text(prompt),
		genai.Blob{MIMEType: mimeType, Data: image},
	)
	if err != nil {
		return ocr.Fields{}, fmt.Errorf("%w: generate content: %v", core.ErrExternalService, err)
	}

	text, ok := replyText(resp)
	if !ok {
		return ocr.Fields{}, fmt.Errorf("%w: empty model reply", core.ErrExtractionFailed)
	}

	return ocr.ParseFields(text)
}

// replyText returns the first non-empty text part of the first
// candidate.
func replyText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok && strings.TrimSpace(string(text)) != "" {
			return string(text), true
		}
	}
	return "", false
}
