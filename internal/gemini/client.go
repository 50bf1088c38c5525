// Package gemini wraps the Google generative model behind a small
// request/response surface: a text prompt plus inline image parts in, text
// and image parts out. The caller decides what a usable response looks like;
// this package only moves bytes and paces outbound calls.
package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// ImagePart is one inline image attached to a request. MIME is the bare
// subtype the SDK expects ("jpeg", "png").
type ImagePart struct {
	MIME string
	Data []byte
}

// Response carries every part the model produced, in order. A response with
// no Images is a text-only response; whether that is acceptable depends on
// the call site.
type Response struct {
	Texts  []string
	Images [][]byte
}

// HasImage reports whether the model produced at least one image part.
func (r *Response) HasImage() bool { return len(r.Images) > 0 }

// FirstText returns the first text part, or "" when none exists.
func (r *Response) FirstText() string {
	if len(r.Texts) == 0 {
		return ""
	}
	return r.Texts[0]
}

// Client calls one Gemini model. Outbound calls are paced with a token
// bucket so a burst of concurrent generations cannot trip provider-side
// quotas.
//
// The client is safe for concurrent use. Close releases the underlying
// connection.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	pacer  *rate.Limiter
}

// NewClient dials the Gemini API with apiKey and binds to modelName.
// rps caps outbound requests per second.
func NewClient(ctx context.Context, apiKey, modelName string, rps float64) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is not set")
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{
		client: c,
		model:  c.GenerativeModel(modelName),
		pacer:  rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Generate sends prompt plus images to the model and collects every returned
// part. It blocks on the pacer first, honoring ctx.
func (c *Client) Generate(ctx context.Context, prompt string, images []ImagePart) (*Response, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	parts := make([]genai.Part, 0, len(images)+1)
	parts = append(parts, genai.Text(prompt))
	for _, img := range images {
		parts = append(parts, genai.ImageData(img.MIME, img.Data))
	}

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: no content generated")
	}

	out := &Response{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			out.Texts = append(out.Texts, string(p))
		case genai.Blob:
			out.Images = append(out.Images, p.Data)
		}
	}
	return out, nil
}

// Close releases the underlying API connection.
func (c *Client) Close() error { return c.client.Close() }
