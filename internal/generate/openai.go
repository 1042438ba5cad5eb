package generate

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"docweave/internal/model"
)

// OpenAIGenerator backs ChapterGenerator with the OpenAI chat API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator builds an OpenAI-backed generator.
func NewOpenAIGenerator(apiKey, modelID string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is not set")
	}
	if modelID == "" {
		modelID = "gpt-4o-mini"
	}
	return &OpenAIGenerator{client: openai.NewClient(apiKey), model: modelID}, nil
}

func (o *OpenAIGenerator) Name() string { return "OpenAI:" + o.model }
func (o *OpenAIGenerator) Close() error { return nil }

func (o *OpenAIGenerator) Generate(ctx context.Context, req Request) (model.ChapterContent, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a technical writer producing one tutorial chapter at a time."},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
	})
	if err != nil {
		return model.ChapterContent{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return model.ChapterContent{}, ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return model.ChapterContent{}, ErrEmptyResponse
	}
	return model.ChapterContent{Markdown: text}, nil
}

// classifyOpenAIError maps client-side API failures onto the retry taxonomy:
// rate limits and server errors stay transient, other 4xx are permanent.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
		return err
	case apiErr.HTTPStatusCode >= 500:
		return err
	case apiErr.HTTPStatusCode >= 400:
		return NewPermanentError(err)
	}
	return err
}
