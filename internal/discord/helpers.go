package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// InteractionUser returns the actor of i in guilds and in DMs.
func InteractionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// DisplayName prefers the global display name over the username.
func DisplayName(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// ModalValues flattens the text inputs of a modal submission by custom id.
func ModalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if input, ok := rc.(*discordgo.TextInput); ok {
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}

// Options maps slash command options by name.
func Options(data discordgo.ApplicationCommandInteractionData) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
	for _, o := range data.Options {
		opts[o.Name] = o
	}
	return opts
}

// CustomIDArg returns what follows prefix in a component custom id.
func CustomIDArg(customID, prefix string) (string, bool) {
	arg, ok := strings.CutPrefix(customID, prefix)
	if !ok || arg == "" {
		return "", false
	}
	return arg, true
}

// TextInputRow wraps a text input in the action row a modal requires.
func TextInputRow(input discordgo.TextInput) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{input}}
}
