// Package chunker groups ordered document blocks into overlapping,
// token-bounded chunks ready for embedding.
package chunker

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"realestate-rag/internal/domain"
)

// Version identifies the chunking algorithm. Bump it when output for the
// same input changes, so index version hashes change with it.
const Version = "v2.0"

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("realestate-rag.chunk"))

// ChunkID returns the deterministic ID of the chunk at index within a document.
// It is a UUIDv5 so vector backends that require UUID point IDs accept it.
func ChunkID(docID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:%d", docID, index))).String()
}

// Chunker holds chunking parameters.
type Chunker struct {
	MaxTokens    int
	OverlapRatio float64
}

// New creates a Chunker.
func New(maxTokens int, overlapRatio float64) *Chunker {
	return &Chunker{MaxTokens: maxTokens, OverlapRatio: overlapRatio}
}

// Split chunks blocks with the chunker's parameters.
func (c *Chunker) Split(docID string, blocks []domain.Block) ([]domain.Chunk, error) {
	return Split(docID, blocks, c.MaxTokens, c.OverlapRatio)
}

// segment is a whole block, or one piece of a block that exceeded maxTokens.
type segment struct {
	blockID   string
	text      string
	tokens    int
	page      int
	typ       domain.ContentType
	section   string
	oversized bool
}

// Split groups blocks greedily into chunks of at most maxTokens tokens.
//
// Each chunk after the first starts with the trailing whole blocks of its
// predecessor whose tokens fit in overlapRatio*maxTokens. A block larger than
// maxTokens is split at whitespace and every piece is flagged Oversized;
// pieces are never repeated as overlap. Output is a pure function of the input.
func Split(docID string, blocks []domain.Block, maxTokens int, overlapRatio float64) ([]domain.Chunk, error) {
	if docID == "" {
		return nil, &domain.ValidationError{Field: "document_id", Message: "cannot be empty"}
	}
	if maxTokens <= 0 {
		return nil, &domain.ValidationError{Field: "max_tokens", Message: "must be greater than 0"}
	}
	if overlapRatio < 0 || overlapRatio >= 1 || math.IsNaN(overlapRatio) {
		return nil, &domain.ValidationError{Field: "overlap_ratio", Message: "must be in [0, 1)"}
	}

	segments := toSegments(blocks, maxTokens)
	if len(segments) == 0 {
		return nil, nil
	}

	overlapBudget := int(math.Floor(overlapRatio * float64(maxTokens)))

	var (
		chunks        []domain.Chunk
		current       []segment
		currentTokens int
		overlap       int
	)
	for _, seg := range segments {
		if len(current) > 0 && currentTokens+seg.tokens > maxTokens {
			chunks = append(chunks, buildChunk(docID, len(chunks), current, overlap))
			current = overlapTail(current, min(overlapBudget, maxTokens-seg.tokens))
			overlap = len(current)
			currentTokens = sumTokens(current)
		}
		current = append(current, seg)
		currentTokens += seg.tokens
	}
	chunks = append(chunks, buildChunk(docID, len(chunks), current, overlap))

	return chunks, nil
}

// toSegments orders blocks by (page, order) and expands oversized ones.
func toSegments(blocks []domain.Block, maxTokens int) []segment {
	ordered := make([]domain.Block, len(blocks))
	copy(ordered, blocks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Page != ordered[j].Page {
			return ordered[i].Page < ordered[j].Page
		}
		return ordered[i].Order < ordered[j].Order
	})

	var segments []segment
	section := ""
	for _, b := range ordered {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		if b.Type == domain.ContentHeading {
			section = text
		}
		tokens := domain.EstimateTokens(text)
		if tokens <= maxTokens {
			segments = append(segments, segment{
				blockID: b.ID, text: text, tokens: tokens,
				page: b.Page, typ: b.Type, section: section,
			})
			continue
		}
		for _, piece := range hardSplit(text, maxTokens) {
			segments = append(segments, segment{
				blockID: b.ID, text: piece, tokens: domain.EstimateTokens(piece),
				page: b.Page, typ: b.Type, section: section, oversized: true,
			})
		}
	}
	return segments
}

// hardSplit cuts text at whitespace token boundaries into pieces of at most
// maxTokens tokens. A single word longer than maxTokens is cut by runes.
func hardSplit(text string, maxTokens int) []string {
	var (
		pieces []string
		words  []string
		tokens int
	)
	flush := func() {
		if len(words) > 0 {
			pieces = append(pieces, strings.Join(words, " "))
			words, tokens = nil, 0
		}
	}
	for _, w := range strings.Fields(text) {
		wt := domain.WordTokens(w)
		if wt > maxTokens {
			flush()
			pieces = append(pieces, splitWord(w, maxTokens*int(domain.RunesPerToken))...)
			continue
		}
		if tokens+wt > maxTokens {
			flush()
		}
		words = append(words, w)
		tokens += wt
	}
	flush()
	return pieces
}

func splitWord(word string, maxRunes int) []string {
	runes := []rune(word)
	var parts []string
	for start := 0; start < len(runes); start += maxRunes {
		end := min(start+maxRunes, len(runes))
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

// overlapTail returns the longest suffix of prev made of whole, non-oversized
// segments totalling at most budget tokens. It is always shorter than prev.
func overlapTail(prev []segment, budget int) []segment {
	if budget <= 0 {
		return nil
	}
	start := len(prev)
	total := 0
	for i := len(prev) - 1; i > 0; i-- {
		seg := prev[i]
		if seg.oversized || total+seg.tokens > budget {
			break
		}
		total += seg.tokens
		start = i
	}
	tail := make([]segment, len(prev)-start)
	copy(tail, prev[start:])
	return tail
}

func sumTokens(segs []segment) int {
	total := 0
	for _, s := range segs {
		total += s.tokens
	}
	return total
}

func buildChunk(docID string, index int, segs []segment, overlap int) domain.Chunk {
	texts := make([]string, len(segs))
	blockIDs := make([]string, len(segs))
	oversized := false
	hasTable := false
	allHeadings := true
	for i, s := range segs {
		texts[i] = s.text
		blockIDs[i] = s.blockID
		oversized = oversized || s.oversized
		hasTable = hasTable || s.typ == domain.ContentTable
		allHeadings = allHeadings && s.typ == domain.ContentHeading
	}

	contentType := domain.ContentText
	switch {
	case hasTable:
		contentType = domain.ContentTable
	case allHeadings:
		contentType = domain.ContentHeading
	}

	return domain.Chunk{
		ID:          ChunkID(docID, index),
		DocumentID:  docID,
		Index:       index,
		BlockIDs:    blockIDs,
		Text:        strings.Join(texts, "\n\n"),
		TokenCount:  sumTokens(segs),
		Overlap:     overlap,
		Page:        segs[0].page,
		EndPage:     segs[len(segs)-1].page,
		Section:     segs[overlap].section,
		ContentType: contentType,
		Oversized:   oversized,
	}
}
