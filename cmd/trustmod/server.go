package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/haven-community/trustmod/cachestore"
	"github.com/haven-community/trustmod/countstore"
	"github.com/haven-community/trustmod/engine"
	"github.com/haven-community/trustmod/feedevents"
	"github.com/haven-community/trustmod/leasestore"
	"github.com/haven-community/trustmod/notify"
	"github.com/haven-community/trustmod/ringdetect"
	"github.com/haven-community/trustmod/scoring"
	"github.com/haven-community/trustmod/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Server struct {
	logger           *slog.Logger
	engine           *engine.Engine
	scoreSweepPeriod time.Duration
	ringSweepPeriod  time.Duration
	sweepBatchSize   int
}

type Config struct {
	RedisURL         string
	SlackWebhookURL  string
	Logger           *slog.Logger
	ScoreSweepPeriod time.Duration
	RingSweepPeriod  time.Duration
	SweepBatchSize   int
	FeedEventTimebox time.Duration
	Engine           engine.Config
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	var leases leasestore.LeaseStore
	if config.RedisURL != "" {
		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		counters = cnt

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, 30*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		cache = csh

		lse, err := leasestore.NewRedisLeaseStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis leasestore: %v", err)
		}
		leases = lse
	} else {
		logger.Warn("redis not configured; leases and counters are process-local")
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(5_000, 30*time.Minute)
		leases = leasestore.NewMemLeaseStore()
	}

	var notifier notify.Notifier
	if config.SlackWebhookURL != "" {
		notifier = &notify.SlackNotifier{SlackWebhookURL: config.SlackWebhookURL, Logger: logger}
	} else {
		notifier = &notify.SlogNotifier{Logger: logger}
	}

	st := store.NewStore(db)
	eng := &engine.Engine{
		Logger:   logger,
		Store:    st,
		Leases:   leases,
		Counters: counters,
		Cache:    cache,
		Notifier: notifier,
		Ingester: feedevents.NewIngester(logger, st, feedevents.Config{Timebox: config.FeedEventTimebox}),
		Detector: ringdetect.NewDetector(logger, ringdetect.DefaultConfig()),
		Scoring:  scoring.DefaultConfig(),
		Config:   config.Engine,
	}

	s := &Server{
		logger:           logger,
		engine:           eng,
		scoreSweepPeriod: config.ScoreSweepPeriod,
		ringSweepPeriod:  config.RingSweepPeriod,
		sweepBatchSize:   config.SweepBatchSize,
	}
	return s, nil
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Run drives the periodic sweeps until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.runScoreSweep(ctx) })
	eg.Go(func() error { return s.runRingSweep(ctx) })
	return eg.Wait()
}

// runScoreSweep refreshes scores for articles reacted to since the last
// tick. Sweep errors are logged and retried on the next tick rather
// than terminating the daemon.
func (s *Server) runScoreSweep(ctx context.Context) error {
	ticker := time.NewTicker(s.scoreSweepPeriod)
	defer ticker.Stop()
	// first sweep covers one full period back, so a restart re-scores
	// anything reacted to while the daemon was down for less than that
	last := time.Now().Add(-s.scoreSweepPeriod)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := last
			last = time.Now()
			ids, err := s.engine.Store.RecentlyReactedArticleIDs(ctx, cutoff, s.sweepBatchSize)
			if err != nil {
				s.logger.Error("score sweep query failed", "err", err)
				continue
			}
			for _, id := range ids {
				if err := s.engine.RefreshArticleScore(ctx, id); err != nil {
					s.logger.Error("score refresh failed", "err", err, "articleID", id)
				}
			}
			if len(ids) > 0 {
				s.logger.Info("score sweep complete", "articles", len(ids))
			}
		}
	}
}

func (s *Server) runRingSweep(ctx context.Context) error {
	ticker := time.NewTicker(s.ringSweepPeriod)
	defer ticker.Stop()
	last := time.Now().Add(-s.ringSweepPeriod)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := last
			last = time.Now()
			ids, err := s.engine.Store.RecentReactorIDs(ctx, cutoff, s.sweepBatchSize)
			if err != nil {
				s.logger.Error("ring sweep query failed", "err", err)
				continue
			}
			for _, id := range ids {
				if err := s.engine.DetectAndEscalateRing(ctx, id); err != nil {
					s.logger.Error("ring detection failed", "err", err, "userID", id)
				}
			}
			if len(ids) > 0 {
				s.logger.Info("ring sweep complete", "users", len(ids))
			}
		}
	}
}
