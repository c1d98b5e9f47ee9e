package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/regwatch/regcore/internal/ai"
	"github.com/regwatch/regcore/internal/model"
	appErr "github.com/regwatch/regcore/internal/pkg/errors"
	"github.com/regwatch/regcore/internal/repo"
)

// makePDF produces bytes the raw-scan extraction strategy reads back as
// exactly text, giving tests deterministic content without a full PDF
// writer.
func makePDF(text string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("<< /Type /Page >>\n")
	fmt.Fprintf(&buf, "(%s) Tj\n", text)
	buf.WriteString("%%EOF\n")
	return buf.Bytes()
}

func errTransientForTest() error {
	return fmt.Errorf("%w: status 503", appErr.ErrTransientEmbedding)
}

type fakeDocStore struct {
	mu     sync.Mutex
	docs   map[string]*model.Document
	audits *fakeAuditStore
}

func newFakeDocStore(audits *fakeAuditStore) *fakeDocStore {
	return &fakeDocStore{docs: make(map[string]*model.Document), audits: audits}
}

func (f *fakeDocStore) CreateWithAudit(ctx context.Context, doc *model.Document, ev *model.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.ContentHash != "" && !doc.IsDuplicate {
		for _, existing := range f.docs {
			if existing.ContentHash == doc.ContentHash && !existing.IsDuplicate {
				return appErr.ErrConflict
			}
		}
	}
	clone := *doc
	f.docs[doc.ID] = &clone
	return f.audits.Append(ctx, ev)
}

func (f *fakeDocStore) GetByID(ctx context.Context, id string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (f *fakeDocStore) GetByFingerprint(ctx context.Context, hash string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.ContentHash == hash && !doc.IsDuplicate {
			clone := *doc
			return &clone, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeDocStore) UpdateStatus(ctx context.Context, id, from, to string, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.Status != from {
		return appErr.ErrConflict
	}
	doc.Status = to
	doc.Mtime = mtime
	return nil
}

func (f *fakeDocStore) ScheduleRetry(ctx context.Context, id, from string, retryCount int, nextAttemptAt, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.Status != from {
		return appErr.ErrConflict
	}
	doc.Status = model.StatusEmbeddingFailed
	doc.RetryCount = retryCount
	doc.NextAttemptAt = nextAttemptAt
	doc.Mtime = mtime
	return nil
}

func (f *fakeDocStore) CompleteEmbedding(ctx context.Context, id, from string, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.Status != from {
		return appErr.ErrConflict
	}
	doc.Status = model.StatusEmbeddingComplete
	doc.NextAttemptAt = 0
	doc.Mtime = mtime
	return nil
}

func (f *fakeDocStore) SetSupersededBy(ctx context.Context, id, newID string, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return appErr.ErrNotFound
	}
	doc.SupersededBy = newID
	doc.Mtime = mtime
	return nil
}

func (f *fakeDocStore) ListRetryDue(ctx context.Context, now int64, limit int) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []model.Document
	for _, doc := range f.docs {
		if doc.Status == model.StatusEmbeddingFailed && doc.NextAttemptAt > 0 && doc.NextAttemptAt <= now {
			due = append(due, *doc)
		}
	}
	return due, nil
}

func (f *fakeDocStore) ListForRefresh(ctx context.Context, full bool, limit int) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []model.Document
	for _, doc := range f.docs {
		if doc.IsDuplicate || !doc.Usable || doc.SupersededBy != "" {
			continue
		}
		if !full && doc.Status == model.StatusEmbeddingComplete {
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

type fakeAuditStore struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (f *fakeAuditStore) Append(ctx context.Context, ev *model.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq := 0
	for _, e := range f.events {
		if e.DocumentID == ev.DocumentID {
			seq = e.Seq
		}
	}
	clone := *ev
	clone.Seq = seq + 1
	f.events = append(f.events, clone)
	return nil
}

func (f *fakeAuditStore) ListByDocID(ctx context.Context, docID string, limit, offset int) ([]model.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AuditEvent
	for _, e := range f.events {
		if e.DocumentID == docID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) eventTypes(docID string) []string {
	events, _ := f.ListByDocID(context.Background(), docID, 0, 0)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

type fakeVectorStore struct {
	mu    sync.Mutex
	byDoc map[string][]*model.ChunkEmbedding
	hits  []repo.SearchHit
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{byDoc: make(map[string][]*model.ChunkEmbedding)}
}

func (f *fakeVectorStore) InsertBatch(ctx context.Context, embs []*model.ChunkEmbedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, emb := range embs {
		f.byDoc[emb.DocumentID] = append(f.byDoc[emb.DocumentID], emb)
	}
	return nil
}

func (f *fakeVectorStore) DeleteByDocID(ctx context.Context, docID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := int64(len(f.byDoc[docID]))
	delete(f.byDoc, docID)
	return count, nil
}

func (f *fakeVectorStore) CountByDocID(ctx context.Context, docID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byDoc[docID]), nil
}

func (f *fakeVectorStore) Search(ctx context.Context, vec []float32, modelName string, limit int, filter repo.SearchFilter) ([]repo.SearchHit, error) {
	if limit < len(f.hits) {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	errs  []error
	calls int
	dim   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, *ai.CallStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, nil, err
		}
	}
	dim := f.dim
	if dim <= 0 {
		dim = 4
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(len(text)%7) + float32(i)
	}
	return vec, &ai.CallStats{LatencyMs: 5, Tokens: len(text) / 4}, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed-001" }

type fakeByteStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeByteStore() *fakeByteStore {
	return &fakeByteStore{data: make(map[string][]byte)}
}

func (f *fakeByteStore) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = data
	return nil
}

func (f *fakeByteStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
