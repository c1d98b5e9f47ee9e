package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable means the provider is not configured (no API key).
var ErrUnavailable = errors.New("embedding provider unavailable")

// CallStats carries per-call telemetry surfaced for audit and cost
// accounting.
type CallStats struct {
	LatencyMs int64
	Tokens    int
}

// IEmbedProvider is a raw embedding backend. Implementations return a
// *statusError for HTTP-level failures so the client can classify them.
type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string) ([]float32, int, error)
}

// statusError preserves the upstream HTTP status for retry classification.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embedding service status %d: %s", e.status, e.msg)
}

func newStatusError(status int, msg string) error {
	return &statusError{status: status, msg: msg}
}

type ProviderFactory func(args interface{}) (IEmbedProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("embedding.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embedding provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("embedding provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode embedding provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode embedding provider config: %w", err)
	}
	return nil
}
