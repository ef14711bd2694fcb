// Package application runs the membership application flow: the intake
// panel, the application form and the moderators' verdict.
package application

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
	"github.com/guildkeep/guildkeep/internal/store"
)

const (
	SubmitCustomID = "app:submit"
	FormCustomID   = "app:form"
	AcceptPrefix   = "app:accept:"
	RejectPrefix   = "app:reject:"

	inputNickname = "nickname"
	inputAge      = "age"
	inputAbout    = "about"
	inputActivity = "activity"
)

// Platform is the REST surface the flow needs. *discordgo.Session
// satisfies it.
type Platform interface {
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberNickname(guildID, userID, nickname string, options ...discordgo.RequestOption) error
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

type Handlers struct {
	api   Platform
	store *store.Store
	cfg   config.ApplicationsConfig
	locks *keylock.Locks
	now   func() time.Time
	log   *zap.Logger
}

func NewHandlers(api Platform, s *store.Store, cfg config.ApplicationsConfig, log *zap.Logger) *Handlers {
	return &Handlers{
		api:   api,
		store: s,
		cfg:   cfg,
		locks: keylock.New(),
		now:   time.Now,
		log:   log.Named("application"),
	}
}

func (h *Handlers) Register(r *discord.Router) {
	r.Command(discord.CommandApplication, h.PostPanel)
	r.Command(discord.CommandSetup, h.Setup)
	r.Component(SubmitCustomID, h.OpenForm)
	r.Modal(FormCustomID, h.SubmitForm)
	r.ComponentPrefix(AcceptPrefix, h.Decide)
	r.ComponentPrefix(RejectPrefix, h.Decide)
}

// PostPanel puts the intake panel into the invoking channel.
func (h *Handlers) PostPanel(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	_, err := h.api.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{panelEmbed(h.cfg.ImageURL)},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: SubmitCustomID, Label: "Подать заявку", Style: discordgo.PrimaryButton},
		}}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("post application panel: %w", err)
	}
	return resp.Ephemeral(ctx, MsgPanelPosted)
}

// OpenForm shows the application form unless the user is on cooldown.
func (h *Handlers) OpenForm(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	u := discord.InteractionUser(i)
	if u == nil {
		return errors.New("open application form: no user on interaction")
	}

	until, ok, err := h.store.Cooldown(ctx, u.ID)
	if err != nil {
		return err
	}
	if left := until.Sub(h.now()); ok && left > 0 {
		return resp.EphemeralEmbed(ctx, cooldownEmbed(left))
	}

	return resp.Modal(ctx, &discordgo.InteractionResponseData{
		CustomID: FormCustomID,
		Title:    "Заявка на вступление",
		Components: []discordgo.MessageComponent{
			discord.TextInputRow(discordgo.TextInput{
				CustomID: inputNickname, Label: "Игровой ник и статик",
				Style: discordgo.TextInputShort, Required: true, MaxLength: 100,
			}),
			discord.TextInputRow(discordgo.TextInput{
				CustomID: inputAge, Label: "Возраст",
				Style: discordgo.TextInputShort, Required: true, MaxLength: 10,
			}),
			discord.TextInputRow(discordgo.TextInput{
				CustomID: inputAbout, Label: "О себе",
				Style: discordgo.TextInputParagraph, Required: true, MaxLength: 1000,
			}),
			discord.TextInputRow(discordgo.TextInput{
				CustomID: inputActivity, Label: "Активность",
				Style: discordgo.TextInputShort, Required: true, MaxLength: 100,
			}),
		},
	})
}

// SubmitForm forwards a filled form to the moderators' channel.
func (h *Handlers) SubmitForm(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	u := discord.InteractionUser(i)
	if u == nil {
		return errors.New("submit application: no user on interaction")
	}
	settings, err := h.store.GuildSettings(ctx, i.GuildID)
	if err != nil {
		return err
	}
	if settings.ApplicationChannelID == "" {
		return resp.Ephemeral(ctx, MsgNoChannel)
	}

	values := discord.ModalValues(i.ModalSubmitData())
	f := form{
		Nickname: values[inputNickname],
		Age:      values[inputAge],
		About:    values[inputAbout],
		Activity: values[inputActivity],
	}
	now := h.now()
	msg, err := h.api.ChannelMessageSendComplex(settings.ApplicationChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{f.embed(u.ID, now)},
		Components: []discordgo.MessageComponent{decisionButtons(u.ID)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("post application: %w", err)
	}

	if h.cfg.Cooldown > 0 {
		if err := h.store.SetCooldown(ctx, u.ID, now.Add(h.cfg.Cooldown)); err != nil {
			h.log.Error("set application cooldown", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	h.log.Info("application submitted",
		zap.String("user_id", u.ID),
		zap.String("channel_id", settings.ApplicationChannelID),
		zap.String("message_id", msg.ID))
	return resp.Ephemeral(ctx, MsgSubmitted)
}

// Decide handles the accept and reject buttons on a posted application.
// Verdicts on one message are serialized and the live message is re-read
// under the lock, so two moderators clicking at once cannot both grant
// the role. The interaction is acknowledged before any of that.
func (h *Handlers) Decide(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	customID := i.MessageComponentData().CustomID
	accepted := strings.HasPrefix(customID, AcceptPrefix)
	prefix := RejectPrefix
	if accepted {
		prefix = AcceptPrefix
	}
	applicantID, ok := discord.CustomIDArg(customID, prefix)
	if !ok || i.Message == nil {
		return resp.Ephemeral(ctx, MsgMissingApplicant)
	}
	if isDecided(i.Message) {
		return resp.Ephemeral(ctx, MsgAlreadyDecided)
	}

	moderator := discord.InteractionUser(i)
	if moderator == nil {
		return errors.New("decide application: no user on interaction")
	}
	if err := resp.DeferEphemeral(ctx); err != nil {
		return fmt.Errorf("acknowledge verdict: %w", err)
	}

	unlock, err := h.locks.Lock(ctx, i.ChannelID+"/"+i.Message.ID)
	if err != nil {
		return fmt.Errorf("wait for application lock: %w", err)
	}
	defer unlock()

	log := h.log.With(
		zap.String("applicant_id", applicantID),
		zap.String("moderator_id", moderator.ID),
		zap.Bool("accepted", accepted))

	live, err := h.api.ChannelMessage(i.ChannelID, i.Message.ID, discordgo.WithContext(ctx))
	if err != nil {
		if discord.IsUnknownMessage(err) {
			return resp.Notify(ctx, MsgApplicationGone)
		}
		return fmt.Errorf("read application: %w", err)
	}
	if isDecided(live) {
		log.Info("verdict already given")
		return resp.Notify(ctx, MsgAlreadyDecided)
	}

	var original *discordgo.MessageEmbed
	if len(live.Embeds) > 0 {
		original = live.Embeds[0]
	}

	if accepted {
		settings, err := h.store.GuildSettings(ctx, i.GuildID)
		if err != nil {
			return err
		}
		if settings.AcceptedRoleID == "" {
			return resp.Notify(ctx, MsgNoRole)
		}
		if nick := nicknameFrom(original); nick != "" {
			if err := h.api.GuildMemberNickname(i.GuildID, applicantID, nick, discordgo.WithContext(ctx)); err != nil {
				log.Warn("set applicant nickname", zap.String("nickname", nick), zap.Error(err))
			}
		}
		if err := h.api.GuildMemberRoleAdd(i.GuildID, applicantID, settings.AcceptedRoleID, discordgo.WithContext(ctx)); err != nil {
			log.Error("grant accepted role", zap.String("role_id", settings.AcceptedRoleID), zap.Error(err))
			return resp.Notify(ctx, MsgDecisionFailed)
		}
	}

	embed, row := decided(original, accepted, moderator.Username)
	edit := discordgo.NewMessageEdit(i.ChannelID, i.Message.ID)
	embeds := []*discordgo.MessageEmbed{embed}
	components := []discordgo.MessageComponent{row}
	edit.Embeds = &embeds
	edit.Components = &components
	if _, err := h.api.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("mark application decided: %w", err)
	}

	h.notifyApplicant(ctx, log, applicantID, accepted)

	if accepted {
		if err := h.store.AddCounter(ctx, i.GuildID, moderator.ID, store.CounterAccepted, 1); err != nil {
			log.Error("count accepted application", zap.Error(err))
		}
	}
	log.Info("application decided")
	return resp.Notify(ctx, MsgDecided)
}

// notifyApplicant DMs the verdict. Members with closed DMs are common, so
// a failure is only logged.
func (h *Handlers) notifyApplicant(ctx context.Context, log *zap.Logger, applicantID string, accepted bool) {
	dm, err := h.api.UserChannelCreate(applicantID, discordgo.WithContext(ctx))
	if err == nil {
		_, err = h.api.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{verdictDM(accepted)},
		}, discordgo.WithContext(ctx))
	}
	if err != nil {
		log.Warn("verdict not delivered to applicant", zap.Error(err))
	}
}

// Setup stores the application channel and accepted role for the guild.
func (h *Handlers) Setup(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	opts := discord.Options(i.ApplicationCommandData())
	channel, role := opts[discord.OptionChannel], opts[discord.OptionRole]
	if channel == nil || role == nil {
		return fmt.Errorf("setup: missing %s or %s option", discord.OptionChannel, discord.OptionRole)
	}

	settings := store.Settings{
		GuildID:              i.GuildID,
		ApplicationChannelID: channel.ChannelValue(nil).ID,
		AcceptedRoleID:       role.RoleValue(nil, i.GuildID).ID,
	}
	if err := h.store.SaveGuildSettings(ctx, settings); err != nil {
		return err
	}
	h.log.Info("guild settings saved",
		zap.String("guild_id", settings.GuildID),
		zap.String("application_channel_id", settings.ApplicationChannelID),
		zap.String("accepted_role_id", settings.AcceptedRoleID))
	return resp.Ephemeral(ctx, MsgSettingsSaved)
}
