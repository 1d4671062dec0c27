// Package tokenizer counts tokens for context and history budgets.
package tokenizer

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Counter uses a tiktoken encoding. Local models do not share OpenAI
// vocabularies, so counts are approximate but stable. When the encoding
// cannot be loaded the counter falls back to runes/4.
type Counter struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewCounter(encoding string) *Counter {
	if encoding == "" {
		encoding = defaultEncoding
	}
	return &Counter{encoding: encoding}
}

func (c *Counter) init() {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			slog.Warn("tokenizer_fallback", "encoding", c.encoding, "error", err.Error())
			return
		}
		c.enc = enc
	})
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.init()
	if c.enc == nil {
		return Estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Estimate is the rune-based heuristic: one token per four runes, rounded up.
func Estimate(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
