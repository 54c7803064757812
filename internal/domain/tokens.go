package domain

import (
	"math"
	"strings"
	"unicode/utf8"
)

// RunesPerToken approximates token counting: four characters per token.
const RunesPerToken = 4.0

// WordTokens estimates the tokens of a single whitespace-free word.
func WordTokens(word string) int {
	n := int(math.Ceil(float64(utf8.RuneCountInString(word)) / RunesPerToken))
	if n < 1 {
		return 1
	}
	return n
}

// EstimateTokens estimates the token count of text. Each whitespace-separated
// word counts ceil(runes/4) tokens, so estimates are additive across word
// boundaries and a text split at whitespace keeps its total.
func EstimateTokens(text string) int {
	total := 0
	for _, w := range strings.Fields(text) {
		total += WordTokens(w)
	}
	return total
}
