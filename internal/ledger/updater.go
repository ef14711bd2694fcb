package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/guildkeep/guildkeep/internal/config"
	"github.com/guildkeep/guildkeep/internal/discord"
	"github.com/guildkeep/guildkeep/internal/keylock"
)

// Messenger is the slice of the Discord REST API the ledger uses.
// *discordgo.Session satisfies it.
type Messenger interface {
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageThreadStartComplex(channelID, messageID string, data *discordgo.ThreadStart, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Update is one submitted edit form.
type Update struct {
	ChannelID     string
	MessageID     string
	CategoryKey   string
	Before        string
	After         string
	Justification string
	Author        UserRef
}

func (u Update) validate() error {
	var missing []string
	for _, f := range [...]struct{ name, value string }{
		{"before", u.Before},
		{"after", u.After},
		{"justification", u.Justification},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	if u.ChannelID == "" || u.MessageID == "" {
		return fmt.Errorf("%w: target message", ErrMissingField)
	}
	return nil
}

// Result describes a committed update. AuditErr is set when the display
// was changed but the audit entry could not be posted.
type Result struct {
	Snapshot      Snapshot
	Entry         AuditEntry
	ThreadID      string
	ThreadCreated bool
	AuditErr      error
}

type Updater struct {
	client     Messenger
	registry   *Registry
	codec      *Codec
	threadName string
	locks      *keylock.Locks
	log        *zap.Logger
	now        func() time.Time
}

type UpdaterOption func(*Updater)

func WithThreadName(name string) UpdaterOption {
	return func(u *Updater) {
		if name = strings.TrimSpace(name); name != "" {
			u.threadName = name
		}
	}
}

// WithoutSerialization lets concurrent updates of one message race.
func WithoutSerialization() UpdaterOption {
	return func(u *Updater) { u.locks = nil }
}

func WithClock(now func() time.Time) UpdaterOption {
	return func(u *Updater) { u.now = now }
}

func NewUpdater(client Messenger, reg *Registry, log *zap.Logger, opts ...UpdaterOption) *Updater {
	u := &Updater{
		client:     client,
		registry:   reg,
		codec:      reg.Codec(),
		threadName: config.DefaultThreadName,
		locks:      keylock.New(),
		log:        log.Named("ledger"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *Updater) Registry() *Registry { return u.registry }
func (u *Updater) Codec() *Codec       { return u.codec }

// Apply reads the live display, replaces exactly one field value and
// appends an audit entry to the message's thread. The display edit is the
// commit point: an audit failure after it is reported in Result.AuditErr
// and the display is left changed.
func (u *Updater) Apply(ctx context.Context, upd Update) (*Result, error) {
	cat, err := u.registry.Resolve(upd.CategoryKey)
	if err != nil {
		return nil, err
	}
	if err := upd.validate(); err != nil {
		return nil, err
	}

	if u.locks != nil {
		unlock, err := u.locks.Lock(ctx, upd.ChannelID+"/"+upd.MessageID)
		if err != nil {
			return nil, fmt.Errorf("wait for ledger lock: %w", err)
		}
		defer unlock()
	}

	log := u.log.With(
		zap.String("channel_id", upd.ChannelID),
		zap.String("message_id", upd.MessageID),
		zap.String("category", cat.Key),
	)
	opt := discordgo.WithContext(ctx)

	msg, err := u.client.ChannelMessage(upd.ChannelID, upd.MessageID, opt)
	if err != nil {
		if discord.IsUnknownMessage(err) {
			return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, upd.MessageID)
		}
		return nil, fmt.Errorf("fetch ledger message: %w", err)
	}

	snap, err := u.codec.Decode(msg)
	if err != nil {
		return nil, err
	}
	if cat.FieldIndex >= len(snap.Fields) {
		return nil, fmt.Errorf("%w: %s at %d, display has %d fields",
			ErrFieldIndexOutOfRange, cat.Key, cat.FieldIndex, len(snap.Fields))
	}
	if got := snap.Fields[cat.FieldIndex].Name; got != cat.FieldName {
		return nil, fmt.Errorf("%w: field %d is %q, want %q", ErrFieldMismatch, cat.FieldIndex, got, cat.FieldName)
	}

	next, err := snap.WithValue(cat.FieldIndex, upd.After)
	if err != nil {
		return nil, err
	}

	edit := discordgo.NewMessageEdit(upd.ChannelID, upd.MessageID)
	embeds := []*discordgo.MessageEmbed{u.codec.Encode(next)}
	edit.Embeds = &embeds
	if _, err := u.client.ChannelMessageEditComplex(edit, opt); err != nil {
		if discord.IsUnknownMessage(err) {
			return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, upd.MessageID)
		}
		return nil, fmt.Errorf("edit ledger message: %w", err)
	}

	res := &Result{
		Snapshot: next,
		Entry:    NewAuditEntry(cat, upd, u.now()),
	}
	log.Info("ledger updated",
		zap.String("author_id", upd.Author.ID),
		zap.String("before", upd.Before),
		zap.String("after", upd.After))

	res.ThreadID, res.ThreadCreated, res.AuditErr = u.postAudit(ctx, msg, res.Entry)
	if res.AuditErr != nil {
		log.Error("audit entry not posted; display already changed", zap.Error(res.AuditErr))
	}
	return res, nil
}

func (u *Updater) postAudit(ctx context.Context, msg *discordgo.Message, entry AuditEntry) (string, bool, error) {
	threadID, created, err := u.resolveThread(ctx, msg)
	if err != nil {
		return "", false, err
	}
	_, err = u.client.ChannelMessageSendComplex(threadID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{entry.Embed()},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return threadID, created, fmt.Errorf("post audit entry: %w", err)
	}
	return threadID, created, nil
}

// resolveThread returns the thread attached to msg, creating it when the
// message has none yet.
func (u *Updater) resolveThread(ctx context.Context, msg *discordgo.Message) (string, bool, error) {
	if msg.Thread != nil && msg.Thread.ID != "" {
		return msg.Thread.ID, false, nil
	}
	th, err := u.client.MessageThreadStartComplex(msg.ChannelID, msg.ID, &discordgo.ThreadStart{
		Name:                u.threadName,
		Type:                discordgo.ChannelTypeGuildPublicThread,
		AutoArchiveDuration: 10080,
	}, discordgo.WithContext(ctx))
	if err != nil {
		// A thread started from a message shares the message's id.
		if discord.HasAPICode(err, discord.CodeThreadAlreadyCreated) {
			return msg.ID, false, nil
		}
		return "", false, fmt.Errorf("create audit thread: %w", err)
	}
	if th == nil || th.ID == "" {
		return "", false, errors.New("create audit thread: empty response")
	}
	u.log.Info("audit thread created", zap.String("message_id", msg.ID), zap.String("thread_id", th.ID))
	return th.ID, true, nil
}
