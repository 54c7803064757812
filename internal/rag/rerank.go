package rag

import (
	"strings"
	"unicode"
)

const (
	lexicalLengthScale = 10.0
	maxRawLexicalScore = 0.4
	sectionMatchBonus  = 0.1
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {}, "what": {}, "which": {},
	"does": {}, "do": {}, "how": {}, "this": {}, "that": {},
}

// lexicalScore computes a lightweight lexical relevance score for a chunk relative to a query.
// Query terms found in the section heading add a fixed bonus. The result is
// normalised to [0, 1] so it can be blended with cosine similarity.
func lexicalScore(query, chunkText, section string) float64 {
	queryTokens := filterStopwords(tokenize(query))
	if len(queryTokens) == 0 {
		return 0
	}

	chunkTokens := tokenize(chunkText)
	if len(chunkTokens) == 0 {
		return 0
	}

	chunkFreq := make(map[string]int, len(chunkTokens))
	for _, token := range chunkTokens {
		chunkFreq[token]++
	}

	var rawMatches int
	for _, token := range queryTokens {
		rawMatches += chunkFreq[token]
	}

	score := (float64(rawMatches) / (1 + float64(len(chunkTokens)))) * lexicalLengthScale

	if section != "" {
		sectionSet := make(map[string]struct{})
		for _, token := range tokenize(section) {
			sectionSet[token] = struct{}{}
		}
		var sectionMatches int
		for _, token := range queryTokens {
			if _, ok := sectionSet[token]; ok {
				sectionMatches++
			}
		}
		score += float64(sectionMatches) * sectionMatchBonus
	}

	if score > maxRawLexicalScore {
		score = maxRawLexicalScore
	}
	if score < 0 {
		return 0
	}
	return score / maxRawLexicalScore
}

// tokenize lowercases text and splits it on anything that is not a letter or
// digit. Thousands separators inside numbers are dropped so "450,000" and
// "450000" match.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(strings.ToLower(text))
	var builder strings.Builder
	builder.Grow(len(text))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			builder.WriteRune(r)
		case r == ',' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			// thousands separator
		default:
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := lexicalStopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
