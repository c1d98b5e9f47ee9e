package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiEmbedProvider struct {
	apiKey string
}

func (p *geminiEmbedProvider) Name() string {
	return "gemini"
}

func (p *geminiEmbedProvider) Embed(ctx context.Context, model string, text string) ([]float32, int, error) {
	if p.apiKey == "" {
		return nil, 0, ErrUnavailable
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Models.EmbedContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		&genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"},
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, 0, newStatusError(apiErr.Code, apiErr.Message)
		}
		return nil, 0, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, 0, fmt.Errorf("no embedding values returned")
	}
	tokens := 0
	if resp.Metadata != nil {
		tokens = int(resp.Metadata.BillableCharacterCount)
	}
	return resp.Embeddings[0].Values, tokens, nil
}

func createGeminiEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiEmbedProvider{apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func init() {
	Register("gemini", createGeminiEmbedFactory)
}
