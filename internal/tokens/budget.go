// Package tokens bounds free-text fields before they are sent to generation
package tokens

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the tokenizer used to measure text
const Encoding = "cl100k_base"

// bytesPerToken approximates token counts when no encoder is available
const bytesPerToken = 4

// Budget truncates text to a maximum number of tokens
type Budget struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
	logger    *slog.Logger
}

// NewBudget loads the encoder and builds a budget. A non-positive maxTokens
// disables truncation. When the encoder cannot be loaded the budget falls
// back to a byte-length estimate.
func NewBudget(maxTokens int, logger *slog.Logger) *Budget {
	if maxTokens <= 0 {
		return &Budget{}
	}
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		if logger != nil {
			logger.Warn("token encoder unavailable, using byte estimate", "encoding", Encoding, "error", err)
		}
		enc = nil
	}
	return &Budget{enc: enc, maxTokens: maxTokens, logger: logger}
}

func (b *Budget) count(s string) int {
	if b == nil || b.enc == nil {
		return (len(s) + bytesPerToken - 1) / bytesPerToken
	}
	return len(b.enc.Encode(s, nil, nil))
}

// Truncate returns s cut to the budget
func (b *Budget) Truncate(s string) string {
	if b == nil || b.maxTokens <= 0 || s == "" {
		return s
	}
	out := b.cut(s)
	if len(out) < len(s) && b.logger != nil {
		b.logger.Debug("truncated text to token budget", "tokens", b.count(s), "limit", b.maxTokens)
	}
	return out
}

func (b *Budget) cut(s string) string {
	if b.enc == nil {
		limit := b.maxTokens * bytesPerToken
		if len(s) <= limit {
			return s
		}
		for limit > 0 && !utf8.RuneStart(s[limit]) {
			limit--
		}
		return s[:limit]
	}
	ids := b.enc.Encode(s, nil, nil)
	if len(ids) <= b.maxTokens {
		return s
	}
	return b.enc.Decode(ids[:b.maxTokens])
}
