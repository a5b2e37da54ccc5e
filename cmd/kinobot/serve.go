package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stupiduntilnot/kinobot/internal/aggregator"
	"github.com/stupiduntilnot/kinobot/internal/bot"
	"github.com/stupiduntilnot/kinobot/internal/catalog"
	"github.com/stupiduntilnot/kinobot/internal/config"
	"github.com/stupiduntilnot/kinobot/internal/db"
	"github.com/stupiduntilnot/kinobot/internal/logging"
	"github.com/stupiduntilnot/kinobot/internal/telegram"
	"github.com/stupiduntilnot/kinobot/internal/video"
)

// Long polls hold the request open for PollTimeout seconds; the HTTP client
// needs headroom on top of that.
const pollHeadroom = 20 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long: `Run the bot with long polling until SIGINT or SIGTERM.

Requires BOT_TOKEN, KINO_TOKEN and VK_TOKEN in the environment or in
.env.local / .env.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadBotConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.BotConfig) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.InitSchema(database); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}

	catalogClient := catalog.NewClient(cfg.CatalogAPIKey, cfg.CatalogURL, cfg.CatalogTimeout)
	videoClient := video.NewClient(cfg.VideoToken, cfg.VideoURL, cfg.VideoAPIVersion, cfg.VideoTimeout)
	agg := aggregator.New(catalogClient, []aggregator.VideoSource{videoClient},
		aggregator.WithLogger(logger),
		aggregator.WithMaxResults(cfg.VideoMaxResults),
	)

	requestTimeout := time.Duration(cfg.PollTimeout)*time.Second + pollHeadroom
	tg := telegram.NewClient(cfg.TelegramAPIBase, requestTimeout)

	b := bot.New(tg, agg, db.NewHistory(database), bot.Options{
		HistoryLimit:         cfg.HistoryLimit,
		StatsLimit:           cfg.StatsLimit,
		PollTimeout:          cfg.PollTimeout,
		Sleep:                time.Duration(cfg.SleepSeconds) * time.Second,
		DropPending:          cfg.DropPending,
		PendingWindowSeconds: cfg.PendingWindowSeconds,
		PendingMaxMessages:   cfg.PendingMaxMessages,
		MaxConcurrent:        cfg.MaxConcurrent,
	}, logger)

	logger.Info("starting",
		zap.Int("pid", os.Getpid()),
		zap.String("db_path", cfg.DBPath),
		zap.Int("poll_timeout", cfg.PollTimeout),
		zap.Bool("drop_pending", cfg.DropPending),
	)
	return b.Run(ctx)
}
