// Command charbot runs the reputation economy and gang war bot.
//
// Usage:
//
//	export DISCORD_TOKEN="your-bot-token"
//	export DISCORD_GUILD_ID="123456789012345678"
//	go run ./cmd/charbot
//
// Settings may also be placed in a .env file in the working directory.
// Then, in a channel where the bot is present, type:
//
//	.rep
//	.gang list
//	.help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/oklahomer/go-kasumi/logger"
	"github.com/oklahomer/go-sarah/v4"

	"github.com/charbot/charbot/discord"
	"github.com/charbot/charbot/internal/blob"
	"github.com/charbot/charbot/internal/commands"
	"github.com/charbot/charbot/internal/config"
	"github.com/charbot/charbot/internal/gangs"
	"github.com/charbot/charbot/internal/metrics"
	"github.com/charbot/charbot/internal/reputation"
	"github.com/charbot/charbot/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Cancel on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	metrics.Serve(ctx, cfg.MetricsAddr, metrics.NewRegistry())

	adapter, err := discord.NewAdapter(&cfg.Discord)
	if err != nil {
		return fmt.Errorf("failed to create adapter: %w", err)
	}
	guild := adapter.Guild(cfg.GuildID, cfg.GangCategoryID)

	gangService, err := gangs.NewService(&cfg.Gangs, db, guild, blobs)
	if err != nil {
		return fmt.Errorf("failed to create gang service: %w", err)
	}
	handler := commands.NewHandler(cfg.Commands(), reputation.NewService(db), gangService, guild)

	// The user context storage keeps the leave confirmations.
	storage := sarah.NewUserContextStorage(sarah.NewCacheConfig())
	sarah.RegisterBot(sarah.NewBot(adapter, sarah.BotWithStorage(storage)))

	props, err := handler.Props()
	if err != nil {
		return fmt.Errorf("failed to build commands: %w", err)
	}
	for _, p := range props {
		sarah.RegisterCommandProps(p)
	}

	tasks, err := handler.Tasks(&cfg.Gangs)
	if err != nil {
		return fmt.Errorf("failed to build scheduled tasks: %w", err)
	}
	for _, t := range tasks {
		sarah.RegisterScheduledTaskProps(t)
	}

	if err := sarah.Run(ctx, sarah.NewConfig()); err != nil {
		return fmt.Errorf("failed to run: %w", err)
	}

	logger.Infof("Bot is running. Press Ctrl+C to stop.")

	// Block until shutdown signal.
	<-ctx.Done()

	logger.Infof("Shutting down...")
	return nil
}
