package ledger

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEntry_Embed(t *testing.T) {
	cat := Category{Key: "money", Name: "Деньги", FieldName: "💰 Деньги", Icon: "💰", FieldIndex: 1}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("MSK", 3*3600))
	entry := NewAuditEntry(cat, Update{
		Before:        "100",
		After:         "250",
		Justification: "взнос",
		Author:        UserRef{ID: "42", Name: "mod"},
	}, at)

	e := entry.Embed()
	assert.Equal(t, "💰 Изменение в складе: Деньги", e.Title)
	assert.Equal(t, 0x2b2d31, e.Color)
	assert.Equal(t, "2024-01-02T00:04:05Z", e.Timestamp)

	want := []struct {
		name, value string
		inline      bool
	}{
		{"Было", "100", true},
		{"Стало", "250", true},
		{"Описание", "взнос", false},
		{"Автор", "<@42>", false},
	}
	require.Len(t, e.Fields, len(want))
	for i, w := range want {
		f := e.Fields[i]
		assert.Equal(t, w.name, f.Name, "field %d", i)
		assert.Equal(t, w.value, f.Value, "field %d", i)
		assert.Equal(t, w.inline, f.Inline, "field %d", i)
	}
}

func TestAuditEntry_HighlightedIcon(t *testing.T) {
	cat, err := DefaultRegistry().Resolve("heavy_sniper_printed")
	require.NoError(t, err)

	entry := NewAuditEntry(cat, Update{Before: "1", After: "2", Justification: "x"}, time.Now())
	assert.Equal(t, "🔴 Изменение в складе: Heavy Sniper Printed", entry.Title())
}

func TestAuditEntry_ClipsLongValues(t *testing.T) {
	entry := AuditEntry{CategoryName: "x", Justification: strings.Repeat("я", 2000)}
	v := entry.Embed().Fields[2].Value
	assert.Equal(t, maxFieldValue, utf8.RuneCountInString(v))
}

func TestUserRefMention(t *testing.T) {
	assert.Equal(t, "<@1>", UserRef{ID: "1", Name: "a"}.Mention())
	assert.Equal(t, "a", UserRef{Name: "a"}.Mention())
}
