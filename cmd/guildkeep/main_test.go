package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
)

var envKeys = []string{
	"GUILDKEEP_CONFIG",
	"GUILDKEEP_DISCORD_TOKEN",
	"GUILDKEEP_DISCORD_APP_ID",
	"GUILDKEEP_DISCORD_GUILD_ID",
	"GUILDKEEP_STORE_PATH",
	"GUILDKEEP_LOG_LEVEL",
}

func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return tmpDir
}

func newCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	return cmd, &buf
}

type fakeRegistrar struct {
	appID, guildID string
	commands       []*discordgo.ApplicationCommand
	err            error
}

func (f *fakeRegistrar) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.appID, f.guildID, f.commands = appID, guildID, commands
	if f.err != nil {
		return nil, f.err
	}
	return commands, nil
}

func TestRunOnboard(t *testing.T) {
	tmpDir := isolate(t)
	cfgPath := filepath.Join(tmpDir, ".guildkeep", "config.yaml")

	cmd, out := newCmd()
	if err := runOnboard(cmd, nil); err != nil {
		t.Fatalf("runOnboard error: %v", err)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("config not created: %v", err)
	}
	if !strings.Contains(out.String(), "Created config") {
		t.Errorf("output = %q", out.String())
	}

	// Second run must not overwrite
	if err := os.WriteFile(cfgPath, []byte("discord:\n  token: keep-me\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cmd, out = newCmd()
	if err := runOnboard(cmd, nil); err != nil {
		t.Fatalf("runOnboard error: %v", err)
	}
	if !strings.Contains(out.String(), "Config already exists") {
		t.Errorf("output = %q", out.String())
	}
	data, _ := os.ReadFile(cfgPath)
	if !strings.Contains(string(data), "keep-me") {
		t.Error("existing config was overwritten")
	}
}

func TestRunStatus_MasksToken(t *testing.T) {
	isolate(t)
	t.Setenv("GUILDKEEP_DISCORD_TOKEN", "abcdefghijklmnopqrstuvwxyz")

	cmd, out := newCmd()
	if err := runStatus(cmd, nil); err != nil {
		t.Fatalf("runStatus error: %v", err)
	}
	got := out.String()
	if strings.Contains(got, "abcdefghijklmnopqrstuvwxyz") {
		t.Error("token printed in clear")
	}
	for _, want := range []string{"abcd...wxyz", "Store:", "thread_name:", "cooldown: 24h0m0s"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunStatus_InvalidConfig(t *testing.T) {
	tmpDir := isolate(t)
	cfgPath := filepath.Join(tmpDir, "broken.yaml")
	os.WriteFile(cfgPath, []byte("discord: [not a map"), 0o600)
	t.Setenv("GUILDKEEP_CONFIG", cfgPath)

	cmd, out := newCmd()
	if err := runStatus(cmd, nil); err != nil {
		t.Fatalf("runStatus error: %v", err)
	}
	if !strings.Contains(out.String(), "Config: error") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunBot_NoToken(t *testing.T) {
	isolate(t)
	cmd, _ := newCmd()
	err := runBot(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Errorf("err = %v, want token error", err)
	}
}

func TestRunRegister_NoAppID(t *testing.T) {
	isolate(t)
	t.Setenv("GUILDKEEP_DISCORD_TOKEN", "token")
	cmd, _ := newCmd()
	if err := runRegister(cmd, nil); err == nil {
		t.Error("expected app id error")
	}
}

func TestRegisterCommands(t *testing.T) {
	api := &fakeRegistrar{}
	var out bytes.Buffer
	if err := registerCommands(context.Background(), &out, api, "app", "guild"); err != nil {
		t.Fatalf("registerCommands error: %v", err)
	}
	if api.appID != "app" || api.guildID != "guild" {
		t.Errorf("registered to %s/%s", api.appID, api.guildID)
	}
	if len(api.commands) == 0 {
		t.Fatal("no commands sent")
	}
	if !strings.Contains(out.String(), "in guild guild") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "/"+api.commands[0].Name) {
		t.Errorf("output missing command names: %q", out.String())
	}

	api.err = errors.New("401 unauthorized")
	if err := registerCommands(context.Background(), &out, api, "app", ""); err == nil {
		t.Error("expected error")
	}
}

func TestTargetGuild(t *testing.T) {
	tests := []struct {
		configured, flag, want string
	}{
		{"cfg", "", "cfg"},
		{"cfg", "-", ""},
		{"cfg", "other", "other"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := targetGuild(tt.configured, tt.flag); got != tt.want {
			t.Errorf("targetGuild(%q, %q) = %q, want %q", tt.configured, tt.flag, got, tt.want)
		}
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "set"},
		{"0123456789", "0123...6789"},
	}
	for _, tt := range tests {
		if got := maskToken(tt.in); got != tt.want {
			t.Errorf("maskToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRootCommands(t *testing.T) {
	want := map[string]bool{"run": false, "commands": false, "onboard": false, "status": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing command %q", name)
		}
	}
}
