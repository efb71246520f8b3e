package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haven-community/trustmod/engine"
	"github.com/haven-community/trustmod/store"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "trustmod",
		Usage:   "content trust and anti-abuse daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/trustmod/trustmod.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		migrateCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for leases, counters, and caches; in-process fallback if empty",
			EnvVars: []string{"TRUSTMOD_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "incoming webhook for moderator escalations; log-only fallback if empty",
			EnvVars: []string{"TRUSTMOD_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":4998",
			EnvVars: []string{"TRUSTMOD_METRICS_LISTEN"},
		},
		&cli.DurationFlag{
			Name:    "score-sweep-period",
			Usage:   "how often to re-score recently reacted articles",
			Value:   time.Minute,
			EnvVars: []string{"TRUSTMOD_SCORE_SWEEP_PERIOD"},
		},
		&cli.DurationFlag{
			Name:    "ring-sweep-period",
			Usage:   "how often to run ring detection over recent reactors",
			Value:   time.Hour,
			EnvVars: []string{"TRUSTMOD_RING_SWEEP_PERIOD"},
		},
		&cli.IntFlag{
			Name:    "sweep-batch-size",
			Usage:   "max entities processed per sweep tick",
			Value:   1000,
			EnvVars: []string{"TRUSTMOD_SWEEP_BATCH_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "feed-event-timebox",
			Usage:   "dedup window for repeated feed events on the same article",
			Value:   5 * time.Minute,
			EnvVars: []string{"TRUSTMOD_FEED_EVENT_TIMEBOX"},
		},
		&cli.IntFlag{
			Name:    "ring-notify-threshold",
			Usage:   "minimum ring size before moderators are notified",
			Value:   5,
			EnvVars: []string{"TRUSTMOD_RING_NOTIFY_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "escalation-quota-day",
			Usage:   "max moderator escalations per day, all subjects combined",
			Value:   50,
			EnvVars: []string{"TRUSTMOD_ESCALATION_QUOTA_DAY"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := store.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}
		if err := store.MigrateDatabase(db); err != nil {
			return err
		}

		engineConfig := engine.DefaultConfig()
		engineConfig.RingNotifyThreshold = cctx.Int("ring-notify-threshold")
		engineConfig.EscalationQuotaDay = cctx.Int("escalation-quota-day")

		srv, err := NewServer(
			db,
			Config{
				RedisURL:         cctx.String("redis-url"),
				SlackWebhookURL:  cctx.String("slack-webhook-url"),
				Logger:           logger,
				ScoreSweepPeriod: cctx.Duration("score-sweep-period"),
				RingSweepPeriod:  cctx.Duration("ring-sweep-period"),
				SweepBatchSize:   cctx.Int("sweep-batch-size"),
				FeedEventTimebox: cctx.Duration("feed-event-timebox"),
				Engine:           engineConfig,
			},
		)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run trust service: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "run database schema migrations and exit",
	Action: func(cctx *cli.Context) error {
		db, err := store.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}
		return store.MigrateDatabase(db)
	},
}
