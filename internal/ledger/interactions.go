package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/guildkeep/guildkeep/internal/discord"
)

const (
	PickerCustomID = "ledger:pick"

	inputBefore        = "before"
	inputAfter         = "after"
	inputJustification = "description"

	maxModalTitle = 45
)

// Replies shown to the moderator.
const (
	MsgCreated      = "Сообщение склада создано!"
	MsgSaved        = "Изменения сохранены!"
	MsgNotFound     = "Не удалось найти сообщение склада. Пожалуйста, создайте новое."
	MsgDrift        = "Сообщение склада не совпадает с текущим списком категорий. Пожалуйста, создайте новое."
	MsgUnknown      = "Неизвестная категория."
	MsgMissingInput = "Заполните все поля формы."
)

// Handlers adapts slash commands, the category picker and the edit modal
// to the Updater.
type Handlers struct {
	updater *Updater
	client  Messenger
	log     *zap.Logger
}

func NewHandlers(u *Updater, client Messenger, log *zap.Logger) *Handlers {
	return &Handlers{updater: u, client: client, log: log.Named("ledger")}
}

func (h *Handlers) Register(r *discord.Router) {
	r.Command(discord.CommandLedger, h.CreateDisplay)
	r.Component(PickerCustomID, h.SelectCategory)
	r.ModalPrefix(TokenPrefix, h.SubmitEdit)
}

func (h *Handlers) picker() discordgo.ActionsRow {
	cats := h.updater.Registry().Categories()
	options := make([]discordgo.SelectMenuOption, len(cats))
	for i, c := range cats {
		options[i] = discordgo.SelectMenuOption{Label: c.Label(), Value: c.Key}
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{
			MenuType:    discordgo.StringSelectMenu,
			CustomID:    PickerCustomID,
			Placeholder: "Выберите категорию для изменения",
			Options:     options,
		},
	}}
}

// CreateDisplay posts a fresh ledger in the invoking channel.
func (h *Handlers) CreateDisplay(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	reg := h.updater.Registry()
	msg, err := h.client.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{h.updater.Codec().Encode(reg.InitialSnapshot())},
		Components: []discordgo.MessageComponent{h.picker()},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("post ledger display: %w", err)
	}
	h.log.Info("ledger display created",
		zap.String("channel_id", i.ChannelID),
		zap.String("message_id", msg.ID))
	return resp.Ephemeral(ctx, MsgCreated)
}

// SelectCategory opens the edit form for the picked category.
func (h *Handlers) SelectCategory(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	data := i.MessageComponentData()
	if len(data.Values) == 0 || i.Message == nil {
		return resp.Ephemeral(ctx, MsgUnknown)
	}
	cat, err := h.updater.Registry().Resolve(data.Values[0])
	if err != nil {
		h.log.Warn("picker sent unknown category", zap.String("key", data.Values[0]))
		return resp.Ephemeral(ctx, MsgUnknown)
	}

	customID, err := Token{Action: ActionEdit, CategoryKey: cat.Key, MessageID: i.Message.ID}.Encode()
	if err != nil {
		return err
	}

	// Prefill with what the display shows; an unreadable display is
	// reported on submit.
	current := ""
	if snap, err := h.updater.Codec().Decode(i.Message); err == nil {
		current, _ = snap.Value(cat.FieldIndex)
	}

	return resp.Modal(ctx, &discordgo.InteractionResponseData{
		CustomID: customID,
		Title:    clip(cat.Label(), maxModalTitle),
		Components: []discordgo.MessageComponent{
			discord.TextInputRow(discordgo.TextInput{
				CustomID:  inputBefore,
				Label:     "Сколько было",
				Style:     discordgo.TextInputShort,
				Value:     current,
				Required:  true,
				MaxLength: 100,
			}),
			discord.TextInputRow(discordgo.TextInput{
				CustomID:  inputAfter,
				Label:     "Сколько стало",
				Style:     discordgo.TextInputShort,
				Required:  true,
				MaxLength: 100,
			}),
			discord.TextInputRow(discordgo.TextInput{
				CustomID:  inputJustification,
				Label:     "Описание",
				Style:     discordgo.TextInputParagraph,
				Required:  true,
				MaxLength: 1000,
			}),
		},
	})
}

// SubmitEdit applies a submitted edit form. The interaction is
// acknowledged first since the update may wait for the display lock and
// makes several REST calls; the outcome follows as an ephemeral follow-up.
func (h *Handlers) SubmitEdit(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	data := i.ModalSubmitData()
	tok, err := ParseToken(data.CustomID)
	if err != nil {
		return err
	}
	if err := resp.DeferEphemeral(ctx); err != nil {
		return fmt.Errorf("acknowledge edit: %w", err)
	}

	values := discord.ModalValues(data)
	author := UserRef{}
	if u := discord.InteractionUser(i); u != nil {
		author = UserRef{ID: u.ID, Name: discord.DisplayName(u)}
	}

	_, err = h.updater.Apply(ctx, Update{
		ChannelID:     i.ChannelID,
		MessageID:     tok.MessageID,
		CategoryKey:   tok.CategoryKey,
		Before:        values[inputBefore],
		After:         values[inputAfter],
		Justification: values[inputJustification],
		Author:        author,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrMessageNotFound):
		return resp.Notify(ctx, MsgNotFound)
	case IsDrift(err):
		h.log.Warn("ledger display drifted from registry", zap.String("message_id", tok.MessageID), zap.Error(err))
		return resp.Notify(ctx, MsgDrift)
	case errors.Is(err, ErrUnknownCategory):
		return resp.Notify(ctx, MsgUnknown)
	case errors.Is(err, ErrMissingField):
		return resp.Notify(ctx, MsgMissingInput)
	default:
		return err
	}

	// Also reached when only the audit post failed.
	return resp.Notify(ctx, MsgSaved)
}
