// Package config loads the bot settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/charbot/charbot/discord"
	"github.com/charbot/charbot/internal/blob"
	"github.com/charbot/charbot/internal/commands"
	"github.com/charbot/charbot/internal/gangs"
	"github.com/charbot/charbot/internal/store"
	"github.com/joho/godotenv"
)

var (
	// ErrMissingToken is returned when DISCORD_TOKEN is not set.
	ErrMissingToken = errors.New("DISCORD_TOKEN is required")
	// ErrMissingGuild is returned when DISCORD_GUILD_ID is not set.
	ErrMissingGuild = errors.New("DISCORD_GUILD_ID is required")
)

// Config aggregates the settings of every component.
type Config struct {
	Discord discord.Config
	Store   store.Config
	Blob    blob.Config
	Gangs   gangs.Config

	// GuildID is the server the bot manages.
	GuildID int64 `env:"DISCORD_GUILD_ID"`
	// GangCategoryID is the channel category gang channels are created in.
	GangCategoryID int64 `env:"GANG_CATEGORY_ID"`
	// ModeratorRoles may run the moderation commands.
	ModeratorRoles []int64 `env:"MODERATOR_ROLE_IDS" envSeparator:","`
	// ProgramLogChannelID receives an audit trail of moderator and rep
	// actions. Zero disables it.
	ProgramLogChannelID int64 `env:"PROGRAM_LOG_CHANNEL_ID"`
	// MaxAttachmentSize caps downloaded banner backgrounds, in bytes.
	MaxAttachmentSize int64 `env:"MAX_ATTACHMENT_SIZE" envDefault:"8388608"`
	// MetricsAddr serves /metrics when set, e.g. ":9090".
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Default returns a Config populated with the component defaults.
func Default() *Config {
	return &Config{
		Discord: *discord.NewConfig(),
		Store: store.Config{
			Dialect:      string(store.DialectSQLite),
			SQLitePath:   "tmp/charbot.sqlite",
			MaxOpenConns: 10,
		},
		Blob:              blob.Config{Driver: string(blob.DriverMemory)},
		Gangs:             *gangs.NewConfig(),
		MaxAttachmentSize: 8 << 20,
	}
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the optional dotenv files, then the environment, on top of
// Default. Without files it reads ".env" from the working directory.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}

	cfg := Default()
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return ErrMissingToken
	}
	if c.GuildID == 0 {
		return ErrMissingGuild
	}
	return nil
}

// Commands returns the settings of the command handler.
func (c *Config) Commands() commands.Config {
	return commands.Config{
		ModeratorRoles:    c.ModeratorRoles,
		ProgramLogs:       c.ProgramLogChannelID,
		MaxAttachmentSize: c.MaxAttachmentSize,
	}
}
