package generate

import (
	"context"
	"errors"
	"net/http"
	"strings"

	genai "google.golang.org/genai"

	"docweave/internal/model"
)

// GeminiGenerator is a thin wrapper around the official genai client.
// It only performs the API call; retries, caching and logging are applied
// via Middleware.
type GeminiGenerator struct {
	cli   *genai.Client
	model string
}

// NewGeminiGenerator builds a Gemini-backed generator. The genai client
// reads the API key from the environment.
func NewGeminiGenerator(ctx context.Context, modelID string) (*GeminiGenerator, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	if modelID == "" {
		modelID = "gemini-2.5-flash"
	}
	return &GeminiGenerator{cli: cli, model: modelID}, nil
}

func (g *GeminiGenerator) Name() string { return "Gemini:" + g.model }
func (g *GeminiGenerator) Close() error { return nil }

// Generate asks the model for the chapter body as plain markdown.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (model.ChapterContent, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: buildPrompt(req)}}}},
		nil,
	)
	if err != nil {
		return model.ChapterContent{}, classifyGeminiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return model.ChapterContent{}, ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return model.ChapterContent{}, ErrEmptyResponse
	}
	return model.ChapterContent{Markdown: text}, nil
}

// classifyGeminiError maps genai API failures onto the retry taxonomy:
// rate limits and server errors stay transient, other 4xx are permanent.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return err
	case apiErr.Code >= 500:
		return err
	case apiErr.Code >= 400:
		return NewPermanentError(err)
	}
	return err
}
