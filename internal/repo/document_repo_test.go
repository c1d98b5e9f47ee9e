package repo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regcore/internal/model"
	appErr "github.com/regwatch/regcore/internal/pkg/errors"
	"github.com/regwatch/regcore/internal/repo"
	"github.com/regwatch/regcore/internal/testutil"
)

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func newTestDocument(id, hash string) *model.Document {
	now := time.Now().UnixMilli()
	return &model.Document{
		ID:            id,
		SourceURL:     "https://example.org/" + id + ".pdf",
		ContentHash:   hash,
		ByteSize:      1024,
		PageCount:     3,
		Content:       "extracted text",
		Confidence:    0.8,
		ExtractMethod: model.ExtractMethodPDFCPU,
		Status:        model.StatusIngested,
		Usable:        true,
		Ctime:         now,
		Mtime:         now,
	}
}

func TestDocumentRepoCreateAndGet(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	id := uniqueID("doc")
	hash := uniqueID("hash")

	require.NoError(t, docs.Create(context.Background(), newTestDocument(id, hash)))

	fetched, err := docs.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, hash, fetched.ContentHash)
	require.Equal(t, model.StatusIngested, fetched.Status)

	_, err = docs.GetByID(context.Background(), uniqueID("missing"))
	require.ErrorIs(t, err, appErr.ErrNotFound)

	byHash, err := docs.GetByFingerprint(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, id, byHash.ID)
}

func TestDocumentRepoUniqueCanonicalHash(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	hash := uniqueID("hash")

	require.NoError(t, docs.Create(context.Background(), newTestDocument(uniqueID("doc"), hash)))

	// A second canonical row with the same hash violates the partial
	// unique index.
	err := docs.Create(context.Background(), newTestDocument(uniqueID("doc"), hash))
	require.ErrorIs(t, err, appErr.ErrConflict)

	// A duplicate row with the same hash is fine.
	dup := newTestDocument(uniqueID("doc"), hash)
	dup.IsDuplicate = true
	dup.CanonicalID = "whatever"
	require.NoError(t, docs.Create(context.Background(), dup))
}

func TestDocumentRepoGuardedTransitions(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	id := uniqueID("doc")
	require.NoError(t, docs.Create(context.Background(), newTestDocument(id, uniqueID("hash"))))
	now := time.Now().UnixMilli()

	require.NoError(t, docs.UpdateStatus(context.Background(), id, model.StatusIngested, model.StatusPendingEmbedding, now))

	// Wrong from-status loses.
	err := docs.UpdateStatus(context.Background(), id, model.StatusIngested, model.StatusPendingEmbedding, now)
	require.ErrorIs(t, err, appErr.ErrConflict)

	require.NoError(t, docs.ScheduleRetry(context.Background(), id, model.StatusPendingEmbedding, 1, now+1000, now))
	fetched, err := docs.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.StatusEmbeddingFailed, fetched.Status)
	require.Equal(t, 1, fetched.RetryCount)
	require.Equal(t, now+1000, fetched.NextAttemptAt)

	require.NoError(t, docs.UpdateStatus(context.Background(), id, model.StatusEmbeddingFailed, model.StatusPendingEmbedding, now))
	require.NoError(t, docs.CompleteEmbedding(context.Background(), id, model.StatusPendingEmbedding, now))
	fetched, err = docs.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.StatusEmbeddingComplete, fetched.Status)
	require.Zero(t, fetched.NextAttemptAt)
}

func TestDocumentRepoListRetryDue(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	now := time.Now().UnixMilli()

	dueID := uniqueID("due")
	due := newTestDocument(dueID, uniqueID("hash"))
	due.Status = model.StatusEmbeddingFailed
	due.NextAttemptAt = now - 1000
	require.NoError(t, docs.Create(context.Background(), due))

	notYet := newTestDocument(uniqueID("later"), uniqueID("hash"))
	notYet.Status = model.StatusEmbeddingFailed
	notYet.NextAttemptAt = now + int64(time.Hour/time.Millisecond)
	require.NoError(t, docs.Create(context.Background(), notYet))

	terminal := newTestDocument(uniqueID("terminal"), uniqueID("hash"))
	terminal.Status = model.StatusEmbeddingFailed
	terminal.NextAttemptAt = 0
	require.NoError(t, docs.Create(context.Background(), terminal))

	listed, err := docs.ListRetryDue(context.Background(), now, 100)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, d := range listed {
		ids[d.ID] = true
	}
	require.True(t, ids[dueID])
	require.False(t, ids[notYet.ID])
	require.False(t, ids[terminal.ID])
}

func TestDocumentRepoSetSupersededBy(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	id := uniqueID("doc")
	require.NoError(t, docs.Create(context.Background(), newTestDocument(id, uniqueID("hash"))))

	require.NoError(t, docs.SetSupersededBy(context.Background(), id, "replacement-id", time.Now().UnixMilli()))
	fetched, err := docs.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "replacement-id", fetched.SupersededBy)

	err = docs.SetSupersededBy(context.Background(), uniqueID("missing"), "x", time.Now().UnixMilli())
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
