package ledger

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	auditColor = 0x2b2d31

	// Discord's limit on an embed field value.
	maxFieldValue = 1024
)

type UserRef struct {
	ID   string
	Name string
}

func (u UserRef) Mention() string {
	if u.ID == "" {
		return u.Name
	}
	return "<@" + u.ID + ">"
}

// AuditEntry records one committed change. Before, After and Justification
// are the values the moderator submitted, not the previously displayed
// value.
type AuditEntry struct {
	CategoryIcon  string
	CategoryName  string
	Before        string
	After         string
	Justification string
	Author        UserRef
	Timestamp     time.Time
}

func NewAuditEntry(cat Category, upd Update, at time.Time) AuditEntry {
	return AuditEntry{
		CategoryIcon:  cat.Icon,
		CategoryName:  cat.Name,
		Before:        upd.Before,
		After:         upd.After,
		Justification: upd.Justification,
		Author:        upd.Author,
		Timestamp:     at.UTC(),
	}
}

func (e AuditEntry) Title() string {
	title := "Изменение в складе: " + e.CategoryName
	if e.CategoryIcon != "" {
		title = e.CategoryIcon + " " + title
	}
	return title
}

func (e AuditEntry) Embed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: e.Title(),
		Color: auditColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Было", Value: clip(e.Before, maxFieldValue), Inline: true},
			{Name: "Стало", Value: clip(e.After, maxFieldValue), Inline: true},
			{Name: "Описание", Value: clip(e.Justification, maxFieldValue)},
			{Name: "Автор", Value: e.Author.Mention()},
		},
		Timestamp: e.Timestamp.Format(time.RFC3339),
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
