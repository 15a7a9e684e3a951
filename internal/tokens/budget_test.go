package tokens

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNewBudget_DisabledWithoutLimit(t *testing.T) {
	b := NewBudget(0, nil)
	assert.Zero(t, b.maxTokens)

	long := strings.Repeat("word ", 10000)
	assert.Equal(t, long, b.Truncate(long))
}

func TestBudget_ByteEstimate(t *testing.T) {
	b := &Budget{maxTokens: 5}

	assert.Equal(t, 3, b.count("0123456789"))
	assert.Equal(t, "short", b.Truncate("short"))
	assert.Equal(t, "01234567890123456789", b.Truncate("01234567890123456789xyz"))
}

func TestBudget_TruncateKeepsValidUTF8(t *testing.T) {
	b := &Budget{maxTokens: 1}
	// byte 4 is the second half of the last rune
	out := b.Truncate("aéé")
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "aé", out)
}

func TestBudget_NilIsUnlimited(t *testing.T) {
	var b *Budget
	assert.Equal(t, "anything", b.Truncate("anything"))
	assert.Equal(t, 2, b.count("12345678"))
}

func TestBudget_LogsTruncation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b := &Budget{maxTokens: 2, logger: logger}

	assert.Equal(t, "12345678", b.Truncate("123456789012"))
	assert.Contains(t, buf.String(), "tokens=3")
	assert.Contains(t, buf.String(), "limit=2")

	buf.Reset()
	assert.Equal(t, "1234", b.Truncate("1234"))
	assert.Empty(t, buf.String())
}
