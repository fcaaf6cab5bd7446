// Package tokenizer counts tokens with the tiktoken BPE encodings.
package tokenizer

import (
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"techassist/internal/domain"
)

// DefaultEncoding is the encoding used by current OpenAI chat models.
const DefaultEncoding = "cl100k_base"

var _ domain.TokenCounter = (*Counter)(nil)

// Counter counts tokens with a tiktoken encoding. The encoding is loaded on
// first use; when it cannot be loaded (for example, offline without a
// cached BPE file) Count falls back to Estimate.
type Counter struct {
	encoding string
	logger   *slog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// New returns a counter for the named encoding; "" selects DefaultEncoding.
func New(encoding string, logger *slog.Logger) *Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{encoding: encoding, logger: logger}
}

// NewEstimator returns a counter that never loads an encoding.
func NewEstimator() *Counter {
	c := &Counter{logger: slog.Default()}
	c.once.Do(func() {})
	return c
}

// Count implements domain.TokenCounter.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(c.load)
	if c.enc == nil {
		return Estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Exact reports whether counts come from a loaded encoding.
func (c *Counter) Exact() bool {
	c.once.Do(c.load)
	return c.enc != nil
}

func (c *Counter) load() {
	enc, err := tiktoken.GetEncoding(c.encoding)
	if err != nil {
		c.logger.Warn("tiktoken encoding unavailable, estimating token counts", "encoding", c.encoding, "error", err)
		return
	}
	c.enc = enc
}

// Estimate approximates a token count as one token per four bytes of
// text, never less than the number of whitespace-separated words.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	byBytes := (len(text) + 3) / 4
	words := len(strings.Fields(text))
	if words > byBytes {
		return words
	}
	if byBytes == 0 && utf8.RuneCountInString(text) > 0 {
		return 1
	}
	return byBytes
}
