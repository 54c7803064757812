package rag

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"realestate-rag/internal/contextutil"
	"realestate-rag/internal/domain"
	"realestate-rag/internal/llm"
)

// DefaultSystemPrompt instructs the model to answer from numbered context only.
const DefaultSystemPrompt = "You are an assistant for real-estate documents such as listings, deeds, inspection reports and contracts. " +
	"Answer the question using only the numbered context below. Cite the sources you use with their markers, for example [1] or [2]. " +
	"If the context doesn't contain enough information to answer the question, say so."

// ChunkRetriever returns ranked chunks for a query.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, k int, filters domain.Filters) (domain.RetrievalResult, error)
}

// Generator streams a chat completion.
type Generator interface {
	Stream(ctx context.Context, messages []llm.Message, params llm.ChatParams) iter.Seq2[string, error]
}

// OrchestratorConfig holds answer generation settings.
type OrchestratorConfig struct {
	// K is the default number of chunks retrieved per question.
	K int
	// ChunksPerDocument caps how many chunks of one document enter the context. Defaults to 1.
	ChunksPerDocument int
	SystemPrompt      string
	Temperature       float32
	MaxTokens         int
}

// Orchestrator answers questions from retrieved context.
type Orchestrator struct {
	retriever ChunkRetriever
	generator Generator
	cfg       OrchestratorConfig
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(retriever ChunkRetriever, generator Generator, cfg OrchestratorConfig) *Orchestrator {
	if cfg.ChunksPerDocument <= 0 {
		cfg.ChunksPerDocument = 1
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Orchestrator{retriever: retriever, generator: generator, cfg: cfg}
}

// Answer is a streamed answer. It is not safe for concurrent use.
type Answer struct {
	Question  string
	NoContext bool
	Sources   []Source

	stream   iter.Seq2[string, error]
	consumed bool
	text     strings.Builder
	err      error
}

// Tokens returns the answer text as it is generated. The sequence can be
// ranged over once; stopping early cancels the underlying LLM request.
// A generation failure is yielded as a *domain.GenerationError and ends the sequence.
func (a *Answer) Tokens() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if a.consumed {
			yield("", errors.New("answer stream already consumed"))
			return
		}
		a.consumed = true
		for tok, err := range a.stream {
			if err != nil {
				a.err = err
				yield("", err)
				return
			}
			a.text.WriteString(tok)
			if !yield(tok, nil) {
				return
			}
		}
	}
}

// Collect drains the remaining tokens and returns the full answer text.
func (a *Answer) Collect() (string, error) {
	if !a.consumed {
		for _, err := range a.Tokens() {
			if err != nil {
				return a.text.String(), err
			}
		}
	}
	return a.text.String(), a.err
}

// Text returns the answer text generated so far.
func (a *Answer) Text() string {
	return a.text.String()
}

// Citations maps answer sentences to source chunk ids. Call it after the
// token stream has ended.
func (a *Answer) Citations() []Citation {
	return extractCitations(a.text.String(), a.Sources)
}

// Answer retrieves context for req and starts generation. When retrieval
// finds nothing, or fails with a *domain.RetrievalError, the returned Answer
// has NoContext set and yields NoContextAnswer without calling the LLM.
func (o *Orchestrator) Answer(ctx context.Context, req AskRequest) (*Answer, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(req.Question) == "" {
		return nil, &domain.ValidationError{Field: "question", Message: "cannot be empty"}
	}
	for i, m := range req.History {
		if m.Role != "user" && m.Role != "assistant" {
			return nil, &domain.ValidationError{Field: fmt.Sprintf("history[%d].role", i), Message: "must be user or assistant"}
		}
	}

	k := req.K
	if k <= 0 {
		k = o.cfg.K
	}

	logger.InfoContext(ctx, "RAG query started", "question_length", len(req.Question), "k", k, "history", len(req.History))

	result, err := o.retriever.Retrieve(ctx, req.Question, k, req.Filters)
	var re *domain.RetrievalError
	switch {
	case errors.As(err, &re):
		logger.WarnContext(ctx, "retrieval produced no context", "reason", re.Reason, "error", re.Err)
		return noContext(req.Question), nil
	case err != nil:
		return nil, err
	case len(result.Chunks) == 0:
		logger.InfoContext(ctx, "no search results found")
		return noContext(req.Question), nil
	}

	sources := o.selectSources(result.Chunks)
	messages := o.buildMessages(req, sources)
	params := llm.ChatParams{Temperature: o.cfg.Temperature, MaxTokens: o.cfg.MaxTokens}

	logger.InfoContext(ctx, "sending request to LLM",
		"sources", len(sources),
		"retrieved", len(result.Chunks),
		"messages", len(messages),
	)

	stream := func(yield func(string, error) bool) {
		tokens := 0
		for tok, err := range o.generator.Stream(ctx, messages, params) {
			if err != nil {
				logger.ErrorContext(ctx, "failed to get LLM response", "error", err, "tokens", tokens)
				yield("", &domain.GenerationError{Err: err})
				return
			}
			tokens++
			if !yield(tok, nil) {
				logger.InfoContext(ctx, "answer stream stopped by consumer", "tokens", tokens)
				return
			}
		}
		logger.InfoContext(ctx, "RAG query completed", "tokens", tokens)
	}

	return &Answer{Question: req.Question, Sources: sources, stream: stream}, nil
}

// Ask answers req and waits for the whole answer.
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	answer, err := o.Answer(ctx, req)
	if err != nil {
		return AskResponse{}, err
	}
	text, err := answer.Collect()
	if err != nil {
		return AskResponse{}, err
	}
	return AskResponse{
		Answer:    text,
		NoContext: answer.NoContext,
		Sources:   answer.Sources,
		Citations: answer.Citations(),
	}, nil
}

func noContext(question string) *Answer {
	return &Answer{
		Question:  question,
		NoContext: true,
		Sources:   []Source{},
		stream: func(yield func(string, error) bool) {
			yield(NoContextAnswer, nil)
		},
	}
}

// selectSources keeps ranking order and admits at most ChunksPerDocument
// chunks per document, numbering them from 1.
func (o *Orchestrator) selectSources(chunks []domain.ScoredChunk) []Source {
	perDoc := make(map[string]int)
	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		if perDoc[c.DocumentID] >= o.cfg.ChunksPerDocument {
			continue
		}
		perDoc[c.DocumentID]++
		sources = append(sources, Source{
			Marker:     len(sources) + 1,
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Source:     c.Source,
			Page:       c.Page,
			Section:    c.Section,
			Score:      c.Score,
			Text:       c.Text,
		})
	}
	return sources
}

// buildMessages returns a fresh slice: system prompt, history, then the
// question with its numbered context.
func (o *Orchestrator) buildMessages(req AskRequest, sources []Source) []llm.Message {
	var b strings.Builder
	b.WriteString("--- Context from documents ---\n\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "[%d] Source: %s, page %d", s.Marker, s.Source, s.Page)
		if s.Section != "" {
			fmt.Fprintf(&b, ", section: %s", s.Section)
		}
		fmt.Fprintf(&b, "\n%s\n\n", s.Text)
	}
	b.WriteString("--- End Context ---\n\n")
	b.WriteString("Question: ")
	b.WriteString(req.Question)

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: "system", Content: o.cfg.SystemPrompt})
	messages = append(messages, req.History...)
	messages = append(messages, llm.Message{Role: "user", Content: b.String()})
	return messages
}
