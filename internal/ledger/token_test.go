package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_RoundTrip(t *testing.T) {
	tests := []Token{
		{Action: ActionEdit, CategoryKey: "money", MessageID: "1234567890123456789"},
		// Underscores would break a naive delimiter split.
		{Action: ActionEdit, CategoryKey: "heavy_sniper_printed", MessageID: "1"},
		{Action: ActionEdit, CategoryKey: "a:b_c", MessageID: "42"},
	}
	for _, tok := range tests {
		s, err := tok.Encode()
		require.NoError(t, err, "%+v", tok)
		assert.True(t, strings.HasPrefix(s, TokenPrefix), s)

		got, err := ParseToken(s)
		require.NoError(t, err, s)
		assert.Equal(t, tok, got)
	}
}

func TestToken_EncodeRejects(t *testing.T) {
	tests := []Token{
		{Action: "delete", CategoryKey: "money", MessageID: "1"},
		{Action: ActionEdit, CategoryKey: "", MessageID: "1"},
		{Action: ActionEdit, CategoryKey: "money", MessageID: "abc"},
		{Action: ActionEdit, CategoryKey: strings.Repeat("k", 80), MessageID: "1"},
	}
	for _, tok := range tests {
		_, err := tok.Encode()
		assert.ErrorIs(t, err, ErrInvalidToken, "%+v", tok)
	}
}

func TestParseToken_Invalid(t *testing.T) {
	tests := []string{
		"",
		"storage_modal_money_123",
		"lg:edit:bW9uZXk",
		"lg:edit:bW9uZXk:123:extra",
		"xx:edit:bW9uZXk:123",
		"lg:drop:bW9uZXk:123",
		"lg:edit:!!!:123",
		"lg:edit::123",
		"lg:edit:bW9uZXk:",
		"lg:edit:bW9uZXk:12a",
	}
	for _, s := range tests {
		_, err := ParseToken(s)
		assert.ErrorIs(t, err, ErrInvalidToken, s)
	}
}

func TestToken_FitsCustomIDForDefaultLayout(t *testing.T) {
	for _, cat := range DefaultRegistry().Categories() {
		tok := Token{Action: ActionEdit, CategoryKey: cat.Key, MessageID: "12345678901234567890"}
		_, err := tok.Encode()
		assert.NoError(t, err, cat.Key)
	}
}
