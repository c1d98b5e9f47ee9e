package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/regwatch/regcore/internal/pkg/errors"
)

// Client wraps a provider with a hard per-call timeout, an input-length
// guard and failure classification. Callers must have chunked oversized
// text before reaching it.
type Client struct {
	provider      IEmbedProvider
	model         string
	dimension     int
	timeout       time.Duration
	maxInputChars int
}

func NewClient(provider IEmbedProvider, model string, dimension int, timeout time.Duration, maxInputChars int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		provider:      provider,
		model:         model,
		dimension:     dimension,
		timeout:       timeout,
		maxInputChars: maxInputChars,
	}
}

func (c *Client) ModelName() string {
	return c.model
}

func (c *Client) Dimension() int {
	return c.dimension
}

// Embed returns the vector for text plus per-call telemetry. Errors wrap
// either ErrTransientEmbedding (network, timeout, 5xx, ratelimit) or
// ErrPermanentEmbedding (input rejected, dimension mismatch).
func (c *Client) Embed(ctx context.Context, text string) ([]float32, *CallStats, error) {
	if text == "" {
		return nil, nil, fmt.Errorf("%w: empty input", appErr.ErrPermanentEmbedding)
	}
	if c.maxInputChars > 0 && len(text) > c.maxInputChars {
		return nil, nil, fmt.Errorf("%w: input exceeds %d chars", appErr.ErrPermanentEmbedding, c.maxInputChars)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	vec, tokens, err := c.provider.Embed(callCtx, c.model, text)
	stats := &CallStats{
		LatencyMs: time.Since(start).Milliseconds(),
		Tokens:    tokens,
	}
	if err != nil {
		classified := classify(err)
		logutil.GetLogger(ctx).Warn("embedding call failed",
			zap.String("provider", c.provider.Name()),
			zap.String("model", c.model),
			zap.Int64("latency_ms", stats.LatencyMs),
			zap.Error(err),
		)
		return nil, stats, classified
	}
	if c.dimension > 0 && len(vec) != c.dimension {
		return nil, stats, fmt.Errorf("%w: got dimension %d, want %d", appErr.ErrPermanentEmbedding, len(vec), c.dimension)
	}
	return vec, stats, nil
}

// classify folds provider errors into the retry taxonomy. Timeouts and
// transport failures are transient; the service rejecting the input is
// permanent and must not consume the retry budget.
func classify(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.status == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", appErr.ErrTransientEmbedding, err)
		case se.status >= 500:
			return fmt.Errorf("%w: %v", appErr.ErrTransientEmbedding, err)
		default:
			return fmt.Errorf("%w: %v", appErr.ErrPermanentEmbedding, err)
		}
	}
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%w: %v", appErr.ErrPermanentEmbedding, err)
	}
	// Deadline, cancellation and transport errors are all retryable.
	return fmt.Errorf("%w: %v", appErr.ErrTransientEmbedding, err)
}
