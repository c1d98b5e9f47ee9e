package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openAIEmbedProvider talks to any OpenAI-compatible /embeddings endpoint.
type openAIEmbedProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *openAIEmbedProvider) Name() string {
	return "openai"
}

func (p *openAIEmbedProvider) Embed(ctx context.Context, model string, text string) ([]float32, int, error) {
	if p.apiKey == "" {
		return nil, 0, ErrUnavailable
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/embeddings"
	data, err := json.Marshal(openAIEmbedRequest{Model: model, Input: text})
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, newStatusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, err
	}
	if len(out.Data) == 0 {
		return nil, 0, newStatusError(http.StatusBadGateway, "response has no embeddings")
	}
	return out.Data[0].Embedding, out.Usage.TotalTokens, nil
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openAIEmbedProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func init() {
	Register("openai", createOpenAIEmbedFactory)
}
