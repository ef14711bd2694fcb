package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/guildkeep/guildkeep/internal/bot"
	"github.com/guildkeep/guildkeep/internal/config"
	"github.com/guildkeep/guildkeep/internal/discord"
)

var rootCmd = &cobra.Command{
	Use:          "guildkeep",
	Short:        "guildkeep - Discord bot for the guild ledger, applications and activity stats",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and serve until interrupted",
	RunE:  runBot,
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Manage slash commands",
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the slash commands with Discord",
	RunE:  runRegister,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write a default config file",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective configuration",
	RunE:  runStatus,
}

var guildFlag string

func init() {
	registerCmd.Flags().StringVar(&guildFlag, "guild", "", "Register to this guild instead of discord.guild_id (\"-\" for global)")
	commandsCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(runCmd, commandsCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	b, err := bot.New(cfg)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	return b.Run(cmd.Context())
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}
	if err := cfg.RequireAppID(); err != nil {
		return err
	}

	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("create discord client: %w", err)
	}
	return registerCommands(cmd.Context(), cmd.OutOrStdout(), dg, cfg.Discord.AppID, targetGuild(cfg.Discord.GuildID, guildFlag))
}

// targetGuild picks the registration scope; "-" forces global.
func targetGuild(configured, flag string) string {
	switch flag {
	case "":
		return configured
	case "-":
		return ""
	}
	return flag
}

func registerCommands(ctx context.Context, out io.Writer, api discord.CommandRegistrar, appID, guildID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	created, err := discord.RegisterCommands(ctx, api, appID, guildID)
	if err != nil {
		return err
	}
	scope := "globally"
	if guildID != "" {
		scope = "in guild " + guildID
	}
	fmt.Fprintf(out, "Registered %d commands %s:\n", len(created), scope)
	for _, c := range created {
		fmt.Fprintf(out, "  /%s\n", c.Name)
	}
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.WriteDefault(cfgPath); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else if err != nil {
		return fmt.Errorf("stat config: %w", err)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to set discord.token and discord.app_id\n", cfgPath)
	fmt.Fprintln(out, "  2. Or set GUILDKEEP_DISCORD_TOKEN and GUILDKEEP_DISCORD_APP_ID")
	fmt.Fprintln(out, "  3. Run 'guildkeep commands register', then 'guildkeep run'")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Store: %s\n", cfg.StorePath())
	if _, err := os.Stat(cfg.StorePath()); err != nil {
		fmt.Fprintln(out, "Store: not created yet")
	}

	shown := *cfg
	shown.Discord.Token = maskToken(cfg.Discord.Token)
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	fmt.Fprintf(out, "\n%s", data)
	return nil
}

func maskToken(token string) string {
	switch {
	case token == "":
		return ""
	case len(token) > 8:
		return token[:4] + "..." + token[len(token)-4:]
	}
	return "set"
}
