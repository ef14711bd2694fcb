package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DefaultInteractionTimeout = 10 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
	DefaultThreadName         = "Логи"
	DefaultCooldown           = 24 * time.Hour
	DefaultCheckpointSchedule = "@every 5m"
	DefaultPruneSchedule      = "@daily"
	DefaultPageSize           = 15
	DefaultPageTTL            = 15 * time.Minute
	DefaultPageCacheSize      = 256
)

// DefaultGameKeywords match the activity names reported for the tracked game.
var DefaultGameKeywords = []string{"rage", "rage:mp", "gta:mp"}

type Config struct {
	Discord      DiscordConfig      `yaml:"discord"`
	Store        StoreConfig        `yaml:"store"`
	Log          LogConfig          `yaml:"log"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Applications ApplicationsConfig `yaml:"applications"`
	Stats        StatsConfig        `yaml:"stats"`
}

type DiscordConfig struct {
	Token              string        `yaml:"token"               env:"GUILDKEEP_DISCORD_TOKEN"`
	AppID              string        `yaml:"app_id"              env:"GUILDKEEP_DISCORD_APP_ID"`
	GuildID            string        `yaml:"guild_id"            env:"GUILDKEEP_DISCORD_GUILD_ID"`
	InteractionTimeout time.Duration `yaml:"interaction_timeout" env:"GUILDKEEP_INTERACTION_TIMEOUT" env-default:"10s"`
}

type StoreConfig struct {
	// Path of the SQLite database. Empty means <config dir>/data/guildkeep.db.
	Path string `yaml:"path" env:"GUILDKEEP_STORE_PATH"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"GUILDKEEP_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"GUILDKEEP_LOG_FORMAT" env-default:"console"`
	Output string `yaml:"output" env:"GUILDKEEP_LOG_OUTPUT" env-default:"stdout"`
}

type LedgerConfig struct {
	// CategoriesFile overrides the embedded category layout.
	CategoriesFile string `yaml:"categories_file" env:"GUILDKEEP_LEDGER_CATEGORIES"`
	ThreadName     string `yaml:"thread_name"     env:"GUILDKEEP_LEDGER_THREAD_NAME" env-default:"Логи"`
	// AllowConcurrentUpdates disables the per-message update lock.
	AllowConcurrentUpdates bool `yaml:"allow_concurrent_updates" env:"GUILDKEEP_LEDGER_ALLOW_CONCURRENT"`
}

type ApplicationsConfig struct {
	Cooldown time.Duration `yaml:"cooldown"  env:"GUILDKEEP_APPLICATION_COOLDOWN" env-default:"24h"`
	ImageURL string        `yaml:"image_url" env:"GUILDKEEP_APPLICATION_IMAGE"`
}

type StatsConfig struct {
	CheckpointSchedule string        `yaml:"checkpoint_schedule" env:"GUILDKEEP_STATS_CHECKPOINT" env-default:"@every 5m"`
	PruneSchedule      string        `yaml:"prune_schedule"      env:"GUILDKEEP_STATS_PRUNE"      env-default:"@daily"`
	GameKeywords       []string      `yaml:"game_keywords"       env:"GUILDKEEP_GAME_KEYWORDS"    env-default:"rage,rage:mp,gta:mp"`
	PageSize           int           `yaml:"page_size"           env:"GUILDKEEP_STATS_PAGE_SIZE"  env-default:"15"`
	PageTTL            time.Duration `yaml:"page_ttl"            env:"GUILDKEEP_STATS_PAGE_TTL"   env-default:"15m"`
	PageCacheSize      int           `yaml:"page_cache_size"     env:"GUILDKEEP_STATS_PAGE_CACHE" env-default:"256"`
}

func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			InteractionTimeout: DefaultInteractionTimeout,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Output: "stdout",
		},
		Ledger: LedgerConfig{
			ThreadName: DefaultThreadName,
		},
		Applications: ApplicationsConfig{
			Cooldown: DefaultCooldown,
		},
		Stats: StatsConfig{
			CheckpointSchedule: DefaultCheckpointSchedule,
			PruneSchedule:      DefaultPruneSchedule,
			GameKeywords:       append([]string(nil), DefaultGameKeywords...),
			PageSize:           DefaultPageSize,
			PageTTL:            DefaultPageTTL,
			PageCacheSize:      DefaultPageCacheSize,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".guildkeep")
}

// ConfigPath honours GUILDKEEP_CONFIG before the default location.
func ConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("GUILDKEEP_CONFIG")); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StorePath resolves the database location.
func (c *Config) StorePath() string {
	if p := strings.TrimSpace(c.Store.Path); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "data", "guildkeep.db")
}

// LoadConfig reads the config file when present, then environment overrides.
// Priority: ENV > file > env-default tags.
func LoadConfig() (*Config, error) {
	var cfg Config

	path := ConfigPath()
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Discord.Token = strings.TrimSpace(c.Discord.Token)
	c.Discord.AppID = strings.TrimSpace(c.Discord.AppID)
	c.Discord.GuildID = strings.TrimSpace(c.Discord.GuildID)

	keywords := c.Stats.GameKeywords[:0]
	for _, k := range c.Stats.GameKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	c.Stats.GameKeywords = keywords
}

// Validate checks values that would otherwise fail deep inside a component.
// The bot token is checked separately by RequireToken since status and
// onboard work without one.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.InteractionTimeout <= 0 {
		errs = append(errs, errors.New("discord.interaction_timeout must be positive"))
	}
	if c.Applications.Cooldown < 0 {
		errs = append(errs, errors.New("applications.cooldown must not be negative"))
	}
	if c.Stats.PageSize <= 0 || c.Stats.PageSize > 50 {
		errs = append(errs, fmt.Errorf("stats.page_size must be within 1..50, got %d", c.Stats.PageSize))
	}
	if c.Stats.PageTTL <= 0 {
		errs = append(errs, errors.New("stats.page_ttl must be positive"))
	}
	if c.Stats.PageCacheSize <= 0 {
		errs = append(errs, errors.New("stats.page_cache_size must be positive"))
	}
	if strings.TrimSpace(c.Ledger.ThreadName) == "" {
		errs = append(errs, errors.New("ledger.thread_name must not be empty"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (c *Config) RequireToken() error {
	if c.Discord.Token == "" {
		return errors.New("discord token not set. Run 'guildkeep onboard' or set GUILDKEEP_DISCORD_TOKEN")
	}
	return nil
}

func (c *Config) RequireAppID() error {
	if c.Discord.AppID == "" {
		return errors.New("discord app id not set. Set discord.app_id or GUILDKEEP_DISCORD_APP_ID")
	}
	return nil
}

// DefaultConfigYAML is written by onboard.
const DefaultConfigYAML = `discord:
  token: ""
  app_id: ""
  # Register commands to one guild (instant) instead of globally.
  guild_id: ""
  interaction_timeout: 10s

store:
  path: ""

log:
  level: info
  format: console
  output: stdout

ledger:
  categories_file: ""
  thread_name: "Логи"
  allow_concurrent_updates: false

applications:
  cooldown: 24h
  image_url: ""

stats:
  checkpoint_schedule: "@every 5m"
  prune_schedule: "@daily"
  game_keywords: ["rage", "rage:mp", "gta:mp"]
  page_size: 15
  page_ttl: 15m
  page_cache_size: 256
`

func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(DefaultConfigYAML), 0600)
}
