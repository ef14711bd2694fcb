package discordtest

import "github.com/bwmarrin/discordgo"

const (
	GuildID   = "900000000000000001"
	ChannelID = "900000000000000002"
)

func member(userID, name string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: userID, Username: name}}
}

// Command builds a slash command interaction in the test guild.
func Command(name, userID string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "i-" + name,
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   GuildID,
		ChannelID: ChannelID,
		Member:    member(userID, "user"+userID),
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    name,
			Options: opts,
		},
	}
}

// UserOption builds a command option the way it arrives from the
// gateway, with the id as a string value.
func UserOption(name, userID string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name: name, Type: discordgo.ApplicationCommandOptionUser, Value: userID,
	}
}

func ChannelOption(name, channelID string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name: name, Type: discordgo.ApplicationCommandOptionChannel, Value: channelID,
	}
}

func RoleOption(name, roleID string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name: name, Type: discordgo.ApplicationCommandOptionRole, Value: roleID,
	}
}

// Component builds a button or select interaction on msg.
func Component(customID, userID string, msg *discordgo.Message, values ...string) *discordgo.Interaction {
	channelID := ChannelID
	if msg != nil && msg.ChannelID != "" {
		channelID = msg.ChannelID
	}
	return &discordgo.Interaction{
		ID:        "i-" + customID,
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   GuildID,
		ChannelID: channelID,
		Member:    member(userID, "user"+userID),
		Message:   msg,
		Data: discordgo.MessageComponentInteractionData{
			CustomID: customID,
			Values:   values,
		},
	}
}

// Modal builds a modal submission carrying fields as text inputs.
func Modal(customID, userID string, fields map[string]string) *discordgo.Interaction {
	rows := make([]discordgo.MessageComponent, 0, len(fields))
	for id, v := range fields {
		rows = append(rows, &discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: id, Value: v},
		}})
	}
	return &discordgo.Interaction{
		ID:        "i-" + customID,
		Type:      discordgo.InteractionModalSubmit,
		GuildID:   GuildID,
		ChannelID: ChannelID,
		Member:    member(userID, "user"+userID),
		Data: discordgo.ModalSubmitInteractionData{
			CustomID:   customID,
			Components: rows,
		},
	}
}
