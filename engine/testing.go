package engine

import (
	"log/slog"
	"time"

	"github.com/haven-community/trustmod/cachestore"
	"github.com/haven-community/trustmod/countstore"
	"github.com/haven-community/trustmod/feedevents"
	"github.com/haven-community/trustmod/leasestore"
	"github.com/haven-community/trustmod/notify"
	"github.com/haven-community/trustmod/ringdetect"
	"github.com/haven-community/trustmod/scoring"
	"github.com/haven-community/trustmod/store"
)

// EngineTestFixture returns an engine wired entirely to in-memory
// backends: an isolated sqlite database, mem stores, and a log-only
// notifier. Intentionally exported, for use in other packages.
func EngineTestFixture() *Engine {
	db, err := store.SetupDatabase("sqlite://:memory:", 40)
	if err != nil {
		panic(err)
	}
	if err := store.MigrateDatabase(db); err != nil {
		panic(err)
	}
	st := store.NewStore(db)
	logger := slog.Default()
	return &Engine{
		Logger:   logger,
		Store:    st,
		Leases:   leasestore.NewMemLeaseStore(),
		Counters: countstore.NewMemCountStore(),
		Cache:    cachestore.NewMemCacheStore(100, time.Hour),
		Notifier: &notify.SlogNotifier{Logger: logger},
		Ingester: feedevents.NewIngester(logger, st, feedevents.Config{}),
		Detector: ringdetect.NewDetector(logger, ringdetect.DefaultConfig()),
		Scoring:  scoring.DefaultConfig(),
		Config:   DefaultConfig(),
	}
}
