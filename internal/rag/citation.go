package rag

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	// markerPattern matches "[1]" and grouped markers such as "[1, 3]".
	markerPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)
	// trailingMarkers matches markers placed right after a sentence's full stop.
	trailingMarkers = regexp.MustCompile(`^[ \t]*(?:\[\d+(?:\s*,\s*\d+)*\][ \t]*)+`)
)

// extractCitations maps each sentence of answer that carries [n] markers to
// the chunk ids of the referenced sources. Markers outside the source list
// are ignored.
func extractCitations(answer string, sources []Source) []Citation {
	byMarker := make(map[int]string, len(sources))
	for _, s := range sources {
		byMarker[s.Marker] = s.ChunkID
	}

	var citations []Citation
	for _, sentence := range splitSentences(answer) {
		c := Citation{Sentence: sentence}
		for _, match := range markerPattern.FindAllStringSubmatch(sentence, -1) {
			for _, part := range strings.Split(match[1], ",") {
				n, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil {
					continue
				}
				id, ok := byMarker[n]
				if !ok || slices.Contains(c.Markers, n) {
					continue
				}
				c.Markers = append(c.Markers, n)
				c.ChunkIDs = append(c.ChunkIDs, id)
			}
		}
		if len(c.Markers) > 0 {
			citations = append(citations, c)
		}
	}
	return citations
}

// splitSentences splits text after '.', '!' or '?' followed by whitespace,
// and at line breaks. Markers directly after the terminator stay with the
// sentence. Decimal points such as "2.5" do not split.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	flush := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\n':
			flush(i + 1)
		case (c == '.' || c == '!' || c == '?') && (i+1 == len(text) || isSpace(text[i+1])):
			end := i + 1
			if loc := trailingMarkers.FindStringIndex(text[end:]); loc != nil {
				end += loc[1]
			}
			flush(end)
			i = end - 1
		}
	}
	flush(len(text))
	return sentences
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
