package index

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"realestate-rag/internal/contextutil"
	"realestate-rag/internal/domain"
	"realestate-rag/internal/llm"
	"realestate-rag/internal/storage"
	"realestate-rag/internal/vectorstore"
)

// Embedder produces vectors for chunk texts during rebuilds.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) (llm.BatchResult, error)
	ModelName() string
}

// Config holds the vector backend settings of the index.
type Config struct {
	Collection string
	Dimension  int
}

// Manager is the only writer of index entries. Every backend write is
// preceded by a ledger entry so that a crash between the SQLite commit and the
// backend call can be replayed by Recover.
type Manager struct {
	docs    storage.DocumentStore
	chunks  storage.ChunkStore
	ledger  storage.LedgerStore
	vectors vectorstore.VectorStore
	cfg     Config

	locks   *keyedMutex
	queries *queryTracker

	mu         sync.RWMutex
	tombstones map[string]struct{}
}

// NewManager creates a Manager over the given stores.
func NewManager(docs storage.DocumentStore, chunks storage.ChunkStore, ledger storage.LedgerStore, vectors vectorstore.VectorStore, cfg Config) *Manager {
	return &Manager{
		docs:       docs,
		chunks:     chunks,
		ledger:     ledger,
		vectors:    vectors,
		cfg:        cfg,
		locks:      newKeyedMutex(),
		queries:    newQueryTracker(),
		tombstones: make(map[string]struct{}),
	}
}

// Collection returns the vector backend collection name.
func (m *Manager) Collection() string {
	return m.cfg.Collection
}

// Dimension returns the vector dimension of the current index generation.
func (m *Manager) Dimension() int {
	return m.cfg.Dimension
}

// Count returns the number of entries in the vector backend.
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.vectors.Count(ctx, m.cfg.Collection)
}

// Search runs a filtered nearest-neighbour query against the backend.
// Callers must hold a BeginQuery token while using the results.
func (m *Manager) Search(ctx context.Context, query []float32, k int, filters map[string]any) ([]vectorstore.SearchResult, error) {
	if m.cfg.Dimension > 0 && len(query) != m.cfg.Dimension {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(query), m.cfg.Dimension, domain.ErrDimensionMismatch)
	}
	return m.vectors.Search(ctx, m.cfg.Collection, query, k, filters)
}

// BeginQuery registers an in-flight query. The returned function must be
// called when the query no longer reads index entries.
func (m *Manager) BeginQuery() func() {
	return m.queries.begin()
}

// IsTombstoned reports whether docID is being, or has been, deleted and not re-ingested since.
func (m *Manager) IsTombstoned(docID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tombstones[docID]
	return ok
}

func (m *Manager) setTombstone(docID string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.tombstones[docID] = struct{}{}
	} else {
		delete(m.tombstones, docID)
	}
}

// Upsert writes chunks and their vectors. Chunks are grouped per document and
// each group is written under that document's lock. A chunk whose stored copy
// has a later ingestedAt is left untouched, so concurrent writers converge on
// the latest vector.
func (m *Manager) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32, model string, ingestedAt time.Time) error {
	if len(chunks) != len(vectors) {
		return &domain.ValidationError{Field: "vectors", Message: fmt.Sprintf("got %d vectors for %d chunks", len(vectors), len(chunks))}
	}
	if len(chunks) == 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return &domain.ValidationError{Field: "vectors", Message: fmt.Sprintf("vector %d is empty", i)}
		}
		if m.cfg.Dimension > 0 && len(v) != m.cfg.Dimension {
			return fmt.Errorf("chunk %s has %d dimensions, index has %d: %w", chunks[i].ID, len(v), m.cfg.Dimension, domain.ErrDimensionMismatch)
		}
	}

	groups := groupByDocument(chunks)
	for _, docID := range sortedKeys(groups) {
		idx := groups[docID]
		records := make([]storage.ChunkRecord, len(idx))
		for j, i := range idx {
			records[j] = storage.ChunkRecord{
				Chunk:          chunks[i],
				Vector:         vectors[i],
				EmbeddingModel: model,
				State:          storage.ChunkActive,
				IngestedAt:     ingestedAt.UTC(),
			}
		}
		if err := m.upsertDocument(ctx, docID, records); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) upsertDocument(ctx context.Context, docID string, records []storage.ChunkRecord) error {
	unlock := m.locks.Lock(docID)
	defer unlock()
	return m.upsertLocked(ctx, docID, records)
}

// upsertLocked writes records of docID. The caller holds the document lock.
func (m *Manager) upsertLocked(ctx context.Context, docID string, records []storage.ChunkRecord) error {
	logger := contextutil.LoggerFromContext(ctx)

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	seq, err := m.ledger.Begin(ctx, storage.OpUpsert, docID, ids)
	if err != nil {
		return err
	}

	applied, err := m.chunks.UpsertBatch(ctx, records)
	if err != nil {
		m.abort(ctx, seq)
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	if len(applied) > 0 {
		source := m.sourceOf(ctx, docID)
		appliedSet := make(map[string]struct{}, len(applied))
		for _, id := range applied {
			appliedSet[id] = struct{}{}
		}
		points := make([]vectorstore.Point, 0, len(applied))
		for _, r := range records {
			if _, ok := appliedSet[r.ID]; ok {
				points = append(points, toPoint(r, source))
			}
		}
		if err := m.vectors.Upsert(ctx, m.cfg.Collection, points); err != nil {
			// The ledger entry stays pending so Recover re-pushes the stored vectors.
			return fmt.Errorf("%w: failed to upsert vectors: %w", domain.ErrExternalService, err)
		}
	}

	if err := m.ledger.Complete(ctx, seq, storage.LedgerCommitted); err != nil {
		return err
	}
	m.setTombstone(docID, false)

	logger.DebugContext(ctx, "chunks upserted",
		"document_id", docID,
		"chunks", len(records),
		"applied", len(applied),
	)
	return nil
}

// RecordUnembedded stores chunks whose embedding failed so a later Rebuild can
// retry them. Any older vector for those chunks is withdrawn from the backend.
func (m *Manager) RecordUnembedded(ctx context.Context, chunks []domain.Chunk, ingestedAt time.Time) error {
	if len(chunks) == 0 {
		return nil
	}
	groups := groupByDocument(chunks)
	for _, docID := range sortedKeys(groups) {
		idx := groups[docID]
		records := make([]storage.ChunkRecord, len(idx))
		for j, i := range idx {
			records[j] = storage.ChunkRecord{
				Chunk:      chunks[i],
				State:      storage.ChunkUnembedded,
				IngestedAt: ingestedAt.UTC(),
			}
		}
		if err := m.recordUnembedded(ctx, docID, records); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) recordUnembedded(ctx context.Context, docID string, records []storage.ChunkRecord) error {
	unlock := m.locks.Lock(docID)
	defer unlock()

	applied, err := m.chunks.UpsertBatch(ctx, records)
	if err != nil {
		return fmt.Errorf("failed to store unembedded chunks: %w", err)
	}
	if len(applied) == 0 {
		return nil
	}

	seq, err := m.ledger.Begin(ctx, storage.OpWithdraw, docID, applied)
	if err != nil {
		return err
	}
	if err := m.vectors.Delete(ctx, m.cfg.Collection, applied); err != nil {
		return fmt.Errorf("%w: failed to withdraw vectors: %w", domain.ErrExternalService, err)
	}
	return m.ledger.Complete(ctx, seq, storage.LedgerCommitted)
}

// Delete removes a document and all of its index entries. The document is
// tombstoned first and the purge waits for queries already in flight. The
// tombstone is lifted once no query that could have seen the purged entries
// is still running.
func (m *Manager) Delete(ctx context.Context, docID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	unlock := m.locks.Lock(docID)
	defer unlock()

	ids, err := m.chunks.ListIDsByDocument(ctx, docID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if _, err := m.docs.GetByID(ctx, docID); err != nil {
			return fmt.Errorf("document %s: %w", docID, err)
		}
	}

	seq, err := m.ledger.Begin(ctx, storage.OpDelete, docID, ids)
	if err != nil {
		return err
	}

	m.setTombstone(docID, true)
	if err := m.chunks.SetDocumentState(ctx, docID, storage.ChunkTombstoned); err != nil {
		return err
	}

	if err := m.queries.wait(ctx); err != nil {
		return fmt.Errorf("waiting for in-flight queries: %w", err)
	}

	if err := m.purge(ctx, docID, ids); err != nil {
		return err
	}
	if err := m.ledger.Complete(ctx, seq, storage.LedgerCommitted); err != nil {
		return err
	}
	m.liftTombstone(ctx, docID)

	logger.InfoContext(ctx, "document deleted", "document_id", docID, "chunks", len(ids))
	return nil
}

// liftTombstone clears the tombstone of a purged document after every query
// that searched before the purge has finished. If ctx ends first the
// tombstone is kept.
func (m *Manager) liftTombstone(ctx context.Context, docID string) {
	if err := m.queries.wait(ctx); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "tombstone kept", "document_id", docID, "error", err)
		return
	}
	m.setTombstone(docID, false)
}

func (m *Manager) purge(ctx context.Context, docID string, ids []string) error {
	if err := m.vectors.Delete(ctx, m.cfg.Collection, ids); err != nil {
		return fmt.Errorf("%w: failed to delete vectors: %w", domain.ErrExternalService, err)
	}
	if err := m.chunks.DeleteByDocument(ctx, docID); err != nil {
		return err
	}
	return m.docs.Delete(ctx, docID)
}

// RebuildReport summarises a Rebuild run.
type RebuildReport struct {
	Documents      int `json:"documents"`
	ChunksEmbedded int `json:"chunks_embedded"`
	ChunksFailed   int `json:"chunks_failed"`
	Indexed        int `json:"indexed"`
}

// Rebuild re-embeds the stored chunks of documents that are failed-partial or
// were embedded with a different model. A document becomes indexed once every
// chunk has a vector and none of its pages failed.
func (m *Manager) Rebuild(ctx context.Context, embedder Embedder) (RebuildReport, error) {
	logger := contextutil.LoggerFromContext(ctx)
	model := embedder.ModelName()

	var report RebuildReport
	docs, err := m.docs.ListForRebuild(ctx, model)
	if err != nil {
		return report, err
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		records, err := m.chunks.ListByDocument(ctx, doc.ID)
		if err != nil {
			return report, err
		}

		var targets []storage.ChunkRecord
		for _, r := range records {
			if r.State == storage.ChunkUnembedded || (r.State == storage.ChunkActive && r.EmbeddingModel != model) {
				targets = append(targets, r)
			}
		}

		var ok []storage.ChunkRecord
		remaining := 0
		if len(targets) > 0 {
			texts := make([]string, len(targets))
			for i, c := range targets {
				texts[i] = c.Text
			}
			res, err := embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return report, err
			}
			for i, r := range targets {
				if res.Failed(i) {
					remaining++
					continue
				}
				r.Vector = res.Vectors[i]
				r.EmbeddingModel = model
				r.State = storage.ChunkActive
				ok = append(ok, r)
			}
		}

		updated, err := m.applyRebuild(ctx, doc.ID, ok, model, remaining)
		if errors.Is(err, errDocumentGone) {
			logger.InfoContext(ctx, "document deleted during rebuild", "document_id", doc.ID)
			continue
		}
		if err != nil {
			return report, err
		}

		report.Documents++
		report.ChunksEmbedded += len(ok)
		report.ChunksFailed += remaining
		if updated.Status == domain.StatusIndexed {
			report.Indexed++
		}
		logger.InfoContext(ctx, "document rebuilt",
			"document_id", doc.ID,
			"embedded", len(ok),
			"still_unembedded", remaining,
			"status", updated.Status,
		)
	}
	return report, nil
}

var errDocumentGone = errors.New("document deleted")

// applyRebuild writes re-embedded chunks and the new document status under the
// document lock. A document deleted while its chunks were being embedded is
// left alone and errDocumentGone is returned. Records keep their stored
// ingestion time so rebuilt chunks do not outrank newer documents.
func (m *Manager) applyRebuild(ctx context.Context, docID string, records []storage.ChunkRecord, model string, remaining int) (*domain.Document, error) {
	unlock := m.locks.Lock(docID)
	defer unlock()

	doc, err := m.docs.GetByID(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && m.IsTombstoned(docID)) {
		return nil, errDocumentGone
	}
	if err != nil {
		return nil, err
	}

	if len(records) > 0 {
		if err := m.upsertLocked(ctx, docID, records); err != nil {
			return nil, err
		}
	}

	updated := *doc
	updated.EmbeddingModel = model
	if remaining == 0 && doc.FailedPages == 0 {
		updated.Status = domain.StatusIndexed
		updated.Error = ""
	} else {
		updated.Status = domain.StatusFailedPartial
	}
	if err := m.docs.Upsert(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Recover replays ledger entries left pending by an interrupted write.
func (m *Manager) Recover(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	pending, err := m.ledger.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, entry := range pending {
		status := storage.LedgerCommitted
		switch entry.Op {
		case storage.OpUpsert:
			pushed, err := m.repush(ctx, entry.ChunkIDs)
			if err != nil {
				return fmt.Errorf("replaying ledger entry %d: %w", entry.Seq, err)
			}
			if pushed == 0 {
				status = storage.LedgerAborted
			}
		case storage.OpDelete:
			current, err := m.chunks.ListIDsByDocument(ctx, entry.DocumentID)
			if err != nil {
				return err
			}
			m.setTombstone(entry.DocumentID, true)
			if err := m.purge(ctx, entry.DocumentID, union(entry.ChunkIDs, current)); err != nil {
				return fmt.Errorf("replaying ledger entry %d: %w", entry.Seq, err)
			}
			m.liftTombstone(ctx, entry.DocumentID)
		case storage.OpWithdraw:
			if err := m.vectors.Delete(ctx, m.cfg.Collection, entry.ChunkIDs); err != nil {
				return fmt.Errorf("replaying ledger entry %d: %w", entry.Seq, err)
			}
		default:
			status = storage.LedgerAborted
		}
		if err := m.ledger.Complete(ctx, entry.Seq, status); err != nil {
			return err
		}
		logger.InfoContext(ctx, "ledger entry replayed", "seq", entry.Seq, "op", entry.Op, "document_id", entry.DocumentID, "status", status)
	}
	return nil
}

// repush re-sends stored vectors for the active chunks among ids.
func (m *Manager) repush(ctx context.Context, ids []string) (int, error) {
	records, err := m.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	sources := make(map[string]string)
	points := make([]vectorstore.Point, 0, len(records))
	for _, r := range records {
		if r.State != storage.ChunkActive || len(r.Vector) == 0 {
			continue
		}
		src, ok := sources[r.DocumentID]
		if !ok {
			src = m.sourceOf(ctx, r.DocumentID)
			sources[r.DocumentID] = src
		}
		points = append(points, toPoint(r, src))
	}
	if len(points) == 0 {
		return 0, nil
	}
	if err := m.vectors.Upsert(ctx, m.cfg.Collection, points); err != nil {
		return 0, fmt.Errorf("%w: failed to upsert vectors: %w", domain.ErrExternalService, err)
	}
	return len(points), nil
}

// CheckConsistency compares the active chunks in the ledger with the ids held
// by the vector backend and returns *domain.ConsistencyError on divergence.
func (m *Manager) CheckConsistency(ctx context.Context) error {
	missing, unknown, err := m.diff(ctx)
	if err != nil {
		return err
	}
	if len(missing) > 0 || len(unknown) > 0 {
		return &domain.ConsistencyError{MissingFromBackend: missing, UnknownInBackend: unknown}
	}
	return nil
}

// Reconcile makes the backend match the ledger: missing entries are re-pushed
// from stored vectors and entries the ledger does not know are deleted.
func (m *Manager) Reconcile(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	missing, unknown, err := m.diff(ctx)
	if err != nil {
		return err
	}
	pushed := 0
	if len(missing) > 0 {
		if pushed, err = m.repush(ctx, missing); err != nil {
			return err
		}
	}
	if len(unknown) > 0 {
		if err := m.vectors.Delete(ctx, m.cfg.Collection, unknown); err != nil {
			return fmt.Errorf("%w: failed to delete stray vectors: %w", domain.ErrExternalService, err)
		}
	}
	logger.InfoContext(ctx, "index reconciled", "repushed", pushed, "removed", len(unknown))
	return nil
}

func (m *Manager) diff(ctx context.Context) (missing, unknown []string, err error) {
	want, err := m.chunks.ListIDsByState(ctx, storage.ChunkActive)
	if err != nil {
		return nil, nil, err
	}
	have, err := m.vectors.ListIDs(ctx, m.cfg.Collection)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to list backend ids: %w", domain.ErrExternalService, err)
	}

	haveSet := make(map[string]struct{}, len(have))
	for _, id := range have {
		haveSet[id] = struct{}{}
	}
	wantSet := make(map[string]struct{}, len(want))
	for _, id := range want {
		wantSet[id] = struct{}{}
		if _, ok := haveSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	for _, id := range have {
		if _, ok := wantSet[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	slices.Sort(missing)
	slices.Sort(unknown)
	return missing, unknown, nil
}

// Startup prepares the index for serving: it ensures the collection exists,
// replays the ledger, reconciles divergence and rebuilds stale documents.
// An unreachable backend is returned as an error. Rebuild failures are logged.
func (m *Manager) Startup(ctx context.Context, embedder Embedder) error {
	logger := contextutil.LoggerFromContext(ctx)

	if err := m.vectors.EnsureCollection(ctx, m.cfg.Collection, m.cfg.Dimension); err != nil {
		return fmt.Errorf("vector backend unavailable: %w", err)
	}
	if err := m.Recover(ctx); err != nil {
		return fmt.Errorf("ledger recovery failed: %w", err)
	}

	err := m.CheckConsistency(ctx)
	var ce *domain.ConsistencyError
	switch {
	case errors.As(err, &ce):
		logger.WarnContext(ctx, "index inconsistent, reconciling",
			"missing_from_backend", len(ce.MissingFromBackend),
			"unknown_in_backend", len(ce.UnknownInBackend),
		)
		if err := m.Reconcile(ctx); err != nil {
			return fmt.Errorf("reconcile failed: %w", err)
		}
	case err != nil:
		return fmt.Errorf("consistency check failed: %w", err)
	}

	if embedder != nil {
		report, err := m.Rebuild(ctx, embedder)
		if err != nil {
			logger.WarnContext(ctx, "startup rebuild incomplete", "error", err)
		} else if report.Documents > 0 {
			logger.InfoContext(ctx, "startup rebuild finished",
				"documents", report.Documents,
				"chunks_embedded", report.ChunksEmbedded,
				"chunks_failed", report.ChunksFailed,
			)
		}
	}
	return nil
}

func (m *Manager) abort(ctx context.Context, seq int64) {
	if err := m.ledger.Complete(ctx, seq, storage.LedgerAborted); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to abort ledger entry", "seq", seq, "error", err)
	}
}

func (m *Manager) sourceOf(ctx context.Context, docID string) string {
	doc, err := m.docs.GetByID(ctx, docID)
	if err != nil {
		return ""
	}
	return doc.Source
}

func groupByDocument(chunks []domain.Chunk) map[string][]int {
	groups := make(map[string][]int)
	for i, c := range chunks {
		groups[c.DocumentID] = append(groups[c.DocumentID], i)
	}
	return groups
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(slices.Clone(a), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
