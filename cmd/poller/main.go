package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"app_reviews/internal/adapters/itunes"
	"app_reviews/internal/adapters/observability"
	redisad "app_reviews/internal/adapters/redis"
	"app_reviews/internal/app"
	"app_reviews/internal/domain"
	"app_reviews/internal/shared"
	"app_reviews/internal/storage"
)

var (
	pollOnce bool
	pollApps string
)

var rootCmd = &cobra.Command{
	Use:   "poller",
	Short: "Poll the iTunes review feed for tracked apps",
	Long: `Runs the review sync loop: every POLL_INTERVAL each tracked app's feed is
paged back to the lookback window and reviews newer than the latest stored
one are written to the review store.`,
	SilenceUsage: true,
	RunE:         runPoller,
}

func init() {
	rootCmd.Flags().BoolVar(&pollOnce, "once", false, "run one sync cycle and exit")
	rootCmd.Flags().StringVar(&pollApps, "app", "", "comma separated app ids (overrides APP_IDS)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPoller(cmd *cobra.Command, args []string) error {
	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	if pollApps != "" {
		ids, err := shared.ParseAppIDs(pollApps)
		if err != nil {
			return fmt.Errorf("--app: %w", err)
		}
		cfg.AppIDs = ids
	}
	if len(cfg.AppIDs) == 0 {
		return fmt.Errorf("no app ids to poll")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().
		Str("base", cfg.FeedBase).
		Ints64("apps", cfg.AppIDs).
		Dur("interval", cfg.PollInterval).
		Dur("lookback", cfg.Lookback).
		Int("workers", cfg.Workers).
		Bool("once", pollOnce).
		Msg("poller starting")

	reg := observability.InitRegistry()
	if !pollOnce {
		if msrv := observability.Serve(cfg.MetricsAddr, reg); msrv != nil {
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = msrv.Shutdown(shutdownCtx)
			}()
		}
	}

	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	client, err := itunes.New(itunes.Options{
		BaseURL:   cfg.FeedBase,
		Country:   cfg.FeedCountry,
		UserAgent: cfg.FeedUserAgent,
		RPS:       cfg.FeedRPS,
	})
	if err != nil {
		return fmt.Errorf("initialize feed client: %w", err)
	}

	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			// the API falls back to TTL expiry, so polling goes on
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, cache invalidation may fail")
		}
		cache = rc
	}

	syncSvc := app.NewSyncService(client, store, cache, cfg.Lookback, app.WithMaxPages(cfg.FeedMaxPages))
	sched := app.NewScheduler(syncSvc, cfg.AppIDs, cfg.PollInterval, cfg.Workers)

	if pollOnce {
		sum := sched.RunCycle(ctx)
		if sum.Failed > 0 {
			return fmt.Errorf("%d of %d apps failed", sum.Failed, sum.Apps)
		}
		return nil
	}
	return sched.Run(ctx)
}
