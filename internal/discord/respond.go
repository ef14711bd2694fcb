package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Interactor is the interaction-response slice of the REST API.
type Interactor interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Responder answers one interaction and remembers whether the initial
// response was sent, since Discord accepts exactly one.
type Responder struct {
	api         Interactor
	interaction *discordgo.Interaction

	mu        sync.Mutex
	responded bool
}

func NewResponder(api Interactor, i *discordgo.Interaction) *Responder {
	return &Responder{api: api, interaction: i}
}

func (r *Responder) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responded
}

func (r *Responder) respond(ctx context.Context, typ discordgo.InteractionResponseType, data *discordgo.InteractionResponseData) error {
	err := r.api.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: typ,
		Data: data,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.responded = true
	r.mu.Unlock()
	return nil
}

// Reply sends a message visible to the channel.
func (r *Responder) Reply(ctx context.Context, data *discordgo.InteractionResponseData) error {
	return r.respond(ctx, discordgo.InteractionResponseChannelMessageWithSource, data)
}

// Ephemeral sends a text only the actor can see.
func (r *Responder) Ephemeral(ctx context.Context, content string) error {
	return r.respond(ctx, discordgo.InteractionResponseChannelMessageWithSource, &discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

func (r *Responder) EphemeralEmbed(ctx context.Context, embed *discordgo.MessageEmbed) error {
	return r.respond(ctx, discordgo.InteractionResponseChannelMessageWithSource, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	})
}

func (r *Responder) Modal(ctx context.Context, data *discordgo.InteractionResponseData) error {
	return r.respond(ctx, discordgo.InteractionResponseModal, data)
}

// UpdateMessage edits the message the component is attached to.
func (r *Responder) UpdateMessage(ctx context.Context, data *discordgo.InteractionResponseData) error {
	return r.respond(ctx, discordgo.InteractionResponseUpdateMessage, data)
}

// DeferEphemeral acknowledges the interaction; the answer follows later.
func (r *Responder) DeferEphemeral(ctx context.Context) error {
	return r.respond(ctx, discordgo.InteractionResponseDeferredChannelMessageWithSource, &discordgo.InteractionResponseData{
		Flags: discordgo.MessageFlagsEphemeral,
	})
}

func (r *Responder) FollowupEphemeral(ctx context.Context, content string) error {
	_, err := r.api.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(ctx))
	return err
}

// Notify sends an ephemeral text as the initial response or, when that
// was already used, as a follow-up.
func (r *Responder) Notify(ctx context.Context, content string) error {
	if r.Responded() {
		return r.FollowupEphemeral(ctx, content)
	}
	return r.Ephemeral(ctx, content)
}
