package usecase

import (
	"strings"
	"unicode"
)

var keywordStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "to": {}, "for": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "and": {}, "or": {}, "what": {},
	"how": {}, "do": {}, "does": {}, "my": {}, "me": {}, "i": {}, "about": {},
	"with": {}, "by": {}, "it": {}, "this": {}, "that": {},
}

// keywordTokens lowercases text and splits it on non letter/digit runes,
// dropping stopwords. The result feeds ChunkStore.KeywordSearch.
func keywordTokens(s string) []string {
	tokens := splitAlphaNumLower(s)
	out := tokens[:0]
	for _, token := range tokens {
		if _, stop := keywordStopwords[token]; stop {
			continue
		}
		out = append(out, token)
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
