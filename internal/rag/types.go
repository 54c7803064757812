package rag

import (
	"realestate-rag/internal/domain"
	"realestate-rag/internal/llm"
)

// NoContextAnswer is returned instead of calling the language model when
// retrieval finds nothing to ground an answer on.
const NoContextAnswer = "I couldn't find any relevant information in the indexed documents to answer this question."

// AskRequest represents a RAG query request.
type AskRequest struct {
	// Question is the user's question to answer.
	Question string `json:"question"`
	// History holds earlier turns of the conversation, oldest first. It is never modified.
	History []llm.Message `json:"history,omitempty"`
	// K optionally overrides the number of chunks retrieved.
	K int `json:"k,omitempty"`
	// Filters restrict retrieval by chunk metadata (e.g. document_id, page, content_type).
	Filters domain.Filters `json:"filters,omitempty"`
}

// Source is one numbered context entry handed to the language model.
type Source struct {
	// Marker is the 1-based number the answer uses to cite this source, as in "[2]".
	Marker     int     `json:"marker"`
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	Section    string  `json:"section,omitempty"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// Citation maps one answer sentence to the chunks it cites.
type Citation struct {
	Sentence string   `json:"sentence"`
	Markers  []int    `json:"markers"`
	ChunkIDs []string `json:"chunk_ids"`
}

// AskResponse represents the response from a RAG query.
type AskResponse struct {
	// Answer is the generated answer from the LLM, or NoContextAnswer.
	Answer string `json:"answer"`
	// NoContext is set when retrieval produced nothing and the LLM was not called.
	NoContext bool `json:"no_context"`
	// Sources are the chunks that were given to the LLM, in marker order.
	Sources []Source `json:"sources"`
	// Citations link answer sentences to source chunk ids.
	Citations []Citation `json:"citations"`
}
