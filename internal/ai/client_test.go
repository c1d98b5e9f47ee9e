package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/regwatch/regcore/internal/pkg/errors"
)

type fakeProvider struct {
	vec    []float32
	tokens int
	err    error
	delay  time.Duration
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Embed(ctx context.Context, model string, text string) ([]float32, int, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.vec, f.tokens, nil
}

func TestClientEmbedSuccess(t *testing.T) {
	provider := &fakeProvider{vec: []float32{0.1, 0.2, 0.3}, tokens: 7}
	client := NewClient(provider, "test-model", 3, time.Second, 0)

	vec, stats, err := client.Embed(context.Background(), "some text")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	require.Equal(t, 7, stats.Tokens)
	require.GreaterOrEqual(t, stats.LatencyMs, int64(0))
}

func TestClientRejectsEmptyInput(t *testing.T) {
	client := NewClient(&fakeProvider{}, "test-model", 3, time.Second, 0)
	_, _, err := client.Embed(context.Background(), "")
	require.ErrorIs(t, err, appErr.ErrPermanentEmbedding)
}

func TestClientRejectsOversizedInput(t *testing.T) {
	client := NewClient(&fakeProvider{}, "test-model", 3, time.Second, 5)
	_, _, err := client.Embed(context.Background(), "this is longer than five chars")
	require.ErrorIs(t, err, appErr.ErrPermanentEmbedding)
}

func TestClientDimensionMismatchIsPermanent(t *testing.T) {
	provider := &fakeProvider{vec: []float32{0.1, 0.2}}
	client := NewClient(provider, "test-model", 3, time.Second, 0)
	_, _, err := client.Embed(context.Background(), "text")
	require.ErrorIs(t, err, appErr.ErrPermanentEmbedding)
}

func TestClientTimeoutIsTransient(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1}, delay: 200 * time.Millisecond}
	client := NewClient(provider, "test-model", 1, 10*time.Millisecond, 0)
	_, _, err := client.Embed(context.Background(), "text")
	require.ErrorIs(t, err, appErr.ErrTransientEmbedding)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "ratelimited", err: newStatusError(http.StatusTooManyRequests, "slow down"), want: appErr.ErrTransientEmbedding},
		{name: "server error", err: newStatusError(http.StatusBadGateway, "bad gateway"), want: appErr.ErrTransientEmbedding},
		{name: "rejected input", err: newStatusError(http.StatusBadRequest, "bad input"), want: appErr.ErrPermanentEmbedding},
		{name: "unauthorized", err: newStatusError(http.StatusUnauthorized, "bad key"), want: appErr.ErrPermanentEmbedding},
		{name: "not configured", err: ErrUnavailable, want: appErr.ErrPermanentEmbedding},
		{name: "transport", err: errors.New("connection refused"), want: appErr.ErrTransientEmbedding},
		{name: "deadline", err: context.DeadlineExceeded, want: appErr.ErrTransientEmbedding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
}
