package index

import (
	"time"

	"realestate-rag/internal/domain"
	"realestate-rag/internal/storage"
	"realestate-rag/internal/vectorstore"
)

// Payload keys stored with every point. Filters address these names.
const (
	MetaDocumentID     = "document_id"
	MetaSource         = "source"
	MetaChunkIndex     = "chunk_index"
	MetaPage           = "page"
	MetaEndPage        = "end_page"
	MetaSection        = "section"
	MetaContentType    = "content_type"
	MetaOversized      = "oversized"
	MetaText           = "text"
	MetaIngestedAt     = "ingested_at"
	MetaEmbeddingModel = "embedding_model"
)

func toPoint(rec storage.ChunkRecord, source string) vectorstore.Point {
	meta := map[string]any{
		MetaDocumentID:     rec.DocumentID,
		MetaChunkIndex:     int64(rec.Index),
		MetaPage:           int64(rec.Page),
		MetaEndPage:        int64(rec.EndPage),
		MetaSection:        rec.Section,
		MetaContentType:    string(rec.ContentType),
		MetaOversized:      rec.Oversized,
		MetaText:           rec.Text,
		MetaIngestedAt:     rec.IngestedAt.UnixNano(),
		MetaEmbeddingModel: rec.EmbeddingModel,
	}
	if source != "" {
		meta[MetaSource] = source
	}
	return vectorstore.Point{ID: rec.ID, Vec: rec.Vector, Meta: meta}
}

// ScoredChunkFromPayload rebuilds retrieval metadata from a point's payload.
// VectorScore is set from score; fused and lexical scores are left to the caller.
func ScoredChunkFromPayload(id string, score float32, meta map[string]any) domain.ScoredChunk {
	sc := domain.ScoredChunk{
		ChunkID:     id,
		VectorScore: float64(score),
		Metadata:    meta,
	}
	sc.DocumentID, _ = meta[MetaDocumentID].(string)
	sc.Text, _ = meta[MetaText].(string)
	sc.Section, _ = meta[MetaSection].(string)
	sc.Source, _ = meta[MetaSource].(string)
	if ct, ok := meta[MetaContentType].(string); ok {
		sc.ContentType = domain.ContentType(ct)
	}
	if page, ok := asInt64(meta[MetaPage]); ok {
		sc.Page = int(page)
	}
	if ts, ok := asInt64(meta[MetaIngestedAt]); ok {
		sc.IngestedAt = time.Unix(0, ts).UTC()
	}
	return sc
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	}
	return 0, false
}
