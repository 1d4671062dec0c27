package rerank

import (
	"context"
	"strings"
	"unicode"
)

const (
	overlapWeight = 0.7
	phraseWeight  = 0.3
)

// Lexical is the scorer used when no cross-encoder endpoint is configured:
// query-token overlap plus a bonus when the whole query appears verbatim.
type Lexical struct{}

func NewLexical() Lexical {
	return Lexical{}
}

func (Lexical) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTokens := toTokenSet(query)
	phrase := strings.Join(splitAlphaNumLower(query), " ")

	scores := make([]float64, len(texts))
	for i, text := range texts {
		normalized := strings.Join(splitAlphaNumLower(text), " ")
		score := overlapWeight * tokenOverlap(queryTokens, toTokenSet(text))
		if phrase != "" && strings.Contains(normalized, phrase) {
			score += phraseWeight
		}
		scores[i] = score
	}
	return scores, nil
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
