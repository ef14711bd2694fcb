package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	CommandLedger      = "склад"
	CommandApplication = "заявка"
	CommandStats       = "статистика"
	CommandUserStats   = "стата"
	CommandSetup       = "настройка"

	OptionUser    = "пользователь"
	OptionChannel = "канал"
	OptionRole    = "роль"
)

// CommandRegistrar is implemented by *discordgo.Session.
type CommandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Commands returns the slash command schemas the bot serves.
func Commands() []*discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)
	manageMessages := int64(discordgo.PermissionManageMessages)
	noDM := false

	return []*discordgo.ApplicationCommand{
		{
			Name:                     CommandLedger,
			Description:              "Создать сообщение склада",
			DefaultMemberPermissions: &manageMessages,
			DMPermission:             &noDM,
		},
		{
			Name:                     CommandApplication,
			Description:              "Разместить панель подачи заявок",
			DefaultMemberPermissions: &manageMessages,
			DMPermission:             &noDM,
		},
		{
			Name:         CommandStats,
			Description:  "Статистика активности сервера",
			DMPermission: &noDM,
		},
		{
			Name:         CommandUserStats,
			Description:  "Статистика пользователя",
			DMPermission: &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        OptionUser,
					Description: "Чью статистику показать",
					Required:    false,
				},
			},
		},
		{
			Name:                     CommandSetup,
			Description:              "Настроить канал заявок и роль участника",
			DefaultMemberPermissions: &adminOnly,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         OptionChannel,
					Description:  "Канал, куда приходят заявки",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
					Required:     true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        OptionRole,
					Description: "Роль для принятых участников",
					Required:    true,
				},
			},
		},
	}
}

// RegisterCommands replaces the registered command set. An empty guildID
// registers globally.
func RegisterCommands(ctx context.Context, api CommandRegistrar, appID, guildID string) ([]*discordgo.ApplicationCommand, error) {
	created, err := api.ApplicationCommandBulkOverwrite(appID, guildID, Commands(), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("register commands: %w", err)
	}
	return created, nil
}
