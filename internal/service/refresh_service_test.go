package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regcore/internal/extract"
	"github.com/regwatch/regcore/internal/model"
)

func newRefreshEnv(t *testing.T) (*testEnv, *RefreshService) {
	t.Helper()
	env := newTestEnv(t)
	extractor := extract.NewExtractor(0.01, 100)
	refresh := NewRefreshService(env.docs, env.audits, env.vectors, env.files, extractor, env.ingest, 0)
	return env, refresh
}

func TestRefreshUnchangedCorpusIsNoOp(t *testing.T) {
	env, refresh := newRefreshEnv(t)
	res, err := env.ingest.Ingest(context.Background(), makePDF("Stable regulation text."), "https://example.org/reg.pdf")
	require.NoError(t, err)

	summary, err := refresh.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Checked)
	require.Equal(t, 1, summary.Unchanged)
	require.Zero(t, summary.Requeued)
	require.Zero(t, summary.Superseded)

	// Idempotent: a second pass reports the same.
	summary, err = refresh.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Unchanged)

	doc, _ := env.docs.GetByID(context.Background(), res.DocumentID)
	require.Equal(t, model.StatusEmbeddingComplete, doc.Status)
}

func TestRefreshEmitsSummaryEvent(t *testing.T) {
	env, refresh := newRefreshEnv(t)

	_, err := refresh.Refresh(context.Background(), true)
	require.NoError(t, err)

	events, err := env.audits.ListByDocID(context.Background(), refreshSummaryDocID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, model.EventRefreshSummary, events[0].EventType)
	require.Contains(t, events[0].ErrorMessage, "checked=0")
}

func TestRefreshRebuildsMissingVectors(t *testing.T) {
	env, refresh := newRefreshEnv(t)
	res, err := env.ingest.Ingest(context.Background(), makePDF("Vectors will vanish."), "https://example.org/reg.pdf")
	require.NoError(t, err)

	// Vector rows lost out-of-band while the document still claims
	// completion.
	_, err = env.vectors.DeleteByDocID(context.Background(), res.DocumentID)
	require.NoError(t, err)

	summary, err := refresh.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Requeued)

	doc, _ := env.docs.GetByID(context.Background(), res.DocumentID)
	require.Equal(t, model.StatusEmbeddingComplete, doc.Status)
	count, _ := env.vectors.CountByDocID(context.Background(), res.DocumentID)
	require.Equal(t, 1, count)
}

func TestRefreshRequeuesTerminalFailure(t *testing.T) {
	env, refresh := newRefreshEnv(t)
	env.embed.errs = []error{errTransientForTest(), nil}

	res, err := env.ingest.Ingest(context.Background(), makePDF("Needs another chance."), "https://example.org/reg.pdf")
	require.NoError(t, err)

	// Force terminal state.
	env.docs.mu.Lock()
	env.docs.docs[res.DocumentID].NextAttemptAt = 0
	env.docs.docs[res.DocumentID].RetryCount = 3
	env.docs.mu.Unlock()

	summary, err := refresh.Refresh(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Requeued)

	doc, _ := env.docs.GetByID(context.Background(), res.DocumentID)
	require.Equal(t, model.StatusEmbeddingComplete, doc.Status)
}

func TestRefreshSupersedesDriftedContent(t *testing.T) {
	env, refresh := newRefreshEnv(t)
	res, err := env.ingest.Ingest(context.Background(), makePDF("Original wording."), "https://example.org/reg.pdf")
	require.NoError(t, err)
	oldDoc, _ := env.docs.GetByID(context.Background(), res.DocumentID)

	// The stored bytes change under the same key, as happens when an
	// extractor upgrade reads different text out of the same file.
	env.files.mu.Lock()
	env.files.data[oldDoc.ContentHash+".pdf"] = makePDF("Amended wording.")
	env.files.mu.Unlock()

	summary, err := refresh.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Superseded)

	oldDoc, _ = env.docs.GetByID(context.Background(), res.DocumentID)
	require.NotEmpty(t, oldDoc.SupersededBy)
	count, _ := env.vectors.CountByDocID(context.Background(), oldDoc.ID)
	require.Zero(t, count)

	newDoc, err := env.docs.GetByID(context.Background(), oldDoc.SupersededBy)
	require.NoError(t, err)
	require.Equal(t, model.StatusEmbeddingComplete, newDoc.Status)
	require.Equal(t, extract.Fingerprint("Amended wording."), newDoc.ContentHash)
	newCount, _ := env.vectors.CountByDocID(context.Background(), newDoc.ID)
	require.Equal(t, 1, newCount)

	// Superseded documents drop out of later passes.
	summary, err = refresh.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Checked)
}
