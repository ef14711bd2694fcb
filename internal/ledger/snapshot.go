package ledger

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Snapshot is the decoded content of a ledger display message. Field
// names carry no accent marker; values are opaque strings.
type Snapshot struct {
	Title  string
	Color  int
	Fields []Field
}

// WithValue returns a copy of s with the value at index replaced. The
// receiver is never modified.
func (s Snapshot) WithValue(index int, value string) (Snapshot, error) {
	if index < 0 || index >= len(s.Fields) {
		return Snapshot{}, fmt.Errorf("%w: index %d, %d fields", ErrFieldIndexOutOfRange, index, len(s.Fields))
	}
	out := s
	out.Fields = make([]Field, len(s.Fields))
	copy(out.Fields, s.Fields)
	out.Fields[index].Value = value
	return out, nil
}

// Value returns the displayed value at index.
func (s Snapshot) Value(index int) (string, bool) {
	if index < 0 || index >= len(s.Fields) {
		return "", false
	}
	return s.Fields[index].Value, true
}

// Codec maps snapshots to and from Discord embeds.
type Codec struct {
	accent      string
	highlighted func(name string) bool
}

// Encode always renders the full field list; every write replaces the
// whole embed.
func (c *Codec) Encode(s Snapshot) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = &discordgo.MessageEmbedField{
			Name:   c.decorate(f.Name),
			Value:  f.Value,
			Inline: f.Inline,
		}
	}
	return &discordgo.MessageEmbed{
		Title:  s.Title,
		Color:  s.Color,
		Fields: fields,
	}
}

// Decode reads the first embed of msg.
func (c *Codec) Decode(msg *discordgo.Message) (Snapshot, error) {
	if msg == nil || len(msg.Embeds) == 0 || msg.Embeds[0] == nil {
		return Snapshot{}, fmt.Errorf("%w: no embed", ErrMalformedSnapshot)
	}
	embed := msg.Embeds[0]
	if len(embed.Fields) == 0 {
		return Snapshot{}, fmt.Errorf("%w: embed has no fields", ErrMalformedSnapshot)
	}

	fields := make([]Field, len(embed.Fields))
	for i, f := range embed.Fields {
		if f == nil || f.Name == "" {
			return Snapshot{}, fmt.Errorf("%w: field %d has no name", ErrMalformedSnapshot, i)
		}
		fields[i] = Field{Name: c.strip(f.Name), Value: f.Value, Inline: f.Inline}
	}
	return Snapshot{Title: embed.Title, Color: embed.Color, Fields: fields}, nil
}

func (c *Codec) decorate(name string) string {
	if c.accent == "" || c.highlighted == nil || !c.highlighted(name) {
		return name
	}
	return c.accent + " " + name
}

func (c *Codec) strip(name string) string {
	if c.accent == "" || c.highlighted == nil {
		return name
	}
	rest, ok := strings.CutPrefix(name, c.accent+" ")
	if ok && c.highlighted(rest) {
		return rest
	}
	return name
}
