package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"realestate-rag/internal/contextutil"
	"realestate-rag/internal/rag"
)

const maxAskBodyBytes = 1 << 20

// AnswerService starts answer generation for a question.
type AnswerService interface {
	Answer(ctx context.Context, req rag.AskRequest) (*rag.Answer, error)
}

// AskHandler handles HTTP requests for asking questions over indexed documents.
type AskHandler struct {
	answers AnswerService
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(answers AnswerService) *AskHandler {
	return &AskHandler{answers: answers}
}

// streamSources is the first event of a streamed answer.
type streamSources struct {
	NoContext bool         `json:"no_context"`
	Sources   []rag.Source `json:"sources"`
}

type streamToken struct {
	Token string `json:"token"`
}

// streamResult is the last event of a streamed answer.
type streamResult struct {
	Answer    string         `json:"answer"`
	Citations []rag.Citation `json:"citations"`
}

// ServeHTTP handles HTTP requests for asking questions.
//
// Ask a question and receive an answer grounded in the indexed documents.
// With ?stream=true the answer is sent as Server-Sent Events: a "sources"
// event, one data frame per token, a "result" event with citations and a
// final [DONE] frame.
//
// swagger:route POST /api/v1/ask askQuestion
//
// # Ask a question
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// - text/event-stream
// responses:
//
//	'200':
//	  description: Answer with sources and citations
//	'400':
//	  description: Invalid request
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: Language model unavailable
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req rag.AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	answer, err := h.answers.Answer(ctx, req)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to answer question")
		return
	}

	if r.URL.Query().Get("stream") == "true" {
		h.stream(w, ctx, answer)
		return
	}

	text, err := answer.Collect()
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to generate answer")
		return
	}

	resp := rag.AskResponse{
		Answer:    text,
		NoContext: answer.NoContext,
		Sources:   answer.Sources,
		Citations: answer.Citations(),
	}
	if resp.Sources == nil {
		resp.Sources = []rag.Source{}
	}
	if resp.Citations == nil {
		resp.Citations = []rag.Citation{}
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}

// stream writes answer as Server-Sent Events. Errors after the headers are
// sent are reported as an "error" event.
func (h *AskHandler) stream(w http.ResponseWriter, ctx context.Context, answer *rag.Answer) {
	logger := contextutil.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sources := answer.Sources
	if sources == nil {
		sources = []rag.Source{}
	}
	if err := writeEvent(w, "sources", streamSources{NoContext: answer.NoContext, Sources: sources}); err != nil {
		logger.WarnContext(ctx, "client went away", "error", err)
		return
	}
	flusher.Flush()

	for tok, err := range answer.Tokens() {
		if err != nil {
			logger.ErrorContext(ctx, "error streaming answer", "error", err)
			_ = writeEvent(w, "error", ErrorResponse{Error: err.Error()})
			flusher.Flush()
			return
		}
		if err := writeEvent(w, "", streamToken{Token: tok}); err != nil {
			logger.WarnContext(ctx, "client went away", "error", err)
			return
		}
		flusher.Flush()
	}

	citations := answer.Citations()
	if citations == nil {
		citations = []rag.Citation{}
	}
	_ = writeEvent(w, "result", streamResult{Answer: answer.Text(), Citations: citations})
	_, _ = fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// writeEvent writes one SSE frame with a JSON payload. An empty name
// produces an unnamed message event.
func writeEvent(w http.ResponseWriter, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
