package discord

import "github.com/bwmarrin/discordgo"

// DefaultIntents are the Gateway Intents the bot needs to read guild
// commands, direct messages and button presses.
const DefaultIntents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

// Config contains configuration variables for the Discord Adapter.
type Config struct {
	// Token is the Discord bot token used for authentication.
	Token string `json:"token" yaml:"token" env:"DISCORD_TOKEN"`

	// HelpCommand is the command string that triggers help.
	// When a user sends this exact string, the input is converted to sarah.HelpInput.
	HelpCommand string `json:"help_command" yaml:"help_command" env:"DISCORD_HELP_COMMAND"`

	// AbortCommand is the command string that triggers context cancellation.
	AbortCommand string `json:"abort_command" yaml:"abort_command" env:"DISCORD_ABORT_COMMAND"`

	// Intents declares the Gateway Intents the bot requires.
	Intents discordgo.Intent `json:"intents" yaml:"intents" env:"DISCORD_INTENTS"`
}

// NewConfig creates and returns a new Config instance with default settings.
// Token is empty and must be set before use.
func NewConfig() *Config {
	return &Config{
		Token:        "",
		HelpCommand:  ".help",
		AbortCommand: ".abort",
		Intents:      DefaultIntents,
	}
}
