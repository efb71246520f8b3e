// High-volume feed telemetry ingest with sliding-timebox deduplication.
//
// Every valid event is persisted for audit, but within one timebox only
// the first occurrence of a (user, article, category) tuple carries
// weight (counts_for=1); later duplicates are stored with zero weight so
// aggregate metrics are not inflated by double-fires from the client.
package feedevents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haven-community/trustmod/store"
)

const DefaultTimebox = 5 * time.Minute

type Config struct {
	// sliding dedup window; zero means DefaultTimebox
	Timebox time.Duration
}

type Ingester struct {
	Logger *slog.Logger
	Store  *store.Store
	Config Config
}

func NewIngester(logger *slog.Logger, st *store.Store, cfg Config) *Ingester {
	if cfg.Timebox == 0 {
		cfg.Timebox = DefaultTimebox
	}
	return &Ingester{
		Logger: logger,
		Store:  st,
		Config: cfg,
	}
}

// tupleKey identifies the dedup tuple. Anonymous events (nil user)
// coalesce to user id 0 and dedup against each other.
func tupleKey(userID *uint, articleID uint, category string) string {
	var uid uint
	if userID != nil {
		uid = *userID
	}
	return fmt.Sprintf("%d/%d/%s", uid, articleID, category)
}

func validEvent(evt *store.FeedEvent) bool {
	if evt.ArticleID == 0 {
		return false
	}
	if !store.ValidFeedEventCategory(evt.Category) {
		return false
	}
	if evt.ArticlePosition < 0 {
		return false
	}
	return true
}

// BulkUpsert validates, weights, and persists a batch of feed events in
// one bulk insert.
//
// Malformed events are dropped silently (acceptable data loss for
// telemetry); datastore failures propagate so the external queue can
// retry the whole batch.
//
// Two concurrent calls may both see an empty window for the same tuple
// and both assign weight 1. That bounded over-count is an accepted
// throughput trade-off; do not add locking here.
func (ing *Ingester) BulkUpsert(ctx context.Context, events []store.FeedEvent) error {
	start := time.Now()
	defer func() {
		bulkUpsertDuration.Observe(time.Since(start).Seconds())
	}()

	now := time.Now()
	valid := make([]store.FeedEvent, 0, len(events))
	articleIDs := make([]uint, 0, len(events))
	for i := range events {
		evt := events[i]
		if !validEvent(&evt) {
			eventsDroppedCount.Inc()
			ing.Logger.Debug("dropping malformed feed event", "articleID", evt.ArticleID, "category", evt.Category)
			continue
		}
		if evt.CreatedAt.IsZero() {
			evt.CreatedAt = now
		}
		valid = append(valid, evt)
		articleIDs = append(articleIDs, evt.ArticleID)
	}
	if len(valid) == 0 {
		return nil
	}

	// one window query for the whole batch
	existing, err := ing.Store.CountedFeedEventsSince(ctx, articleIDs, now.Add(-ing.Config.Timebox))
	if err != nil {
		return fmt.Errorf("feed event window lookup: %w", err)
	}
	seen := make(map[string]bool, len(existing)+len(valid))
	for _, evt := range existing {
		seen[tupleKey(evt.UserID, evt.ArticleID, evt.Category)] = true
	}

	// first occurrence (window or batch prefix) counts; the rest persist
	// with zero weight
	for i := range valid {
		k := tupleKey(valid[i].UserID, valid[i].ArticleID, valid[i].Category)
		if seen[k] {
			valid[i].CountsFor = 0
			eventsDedupedCount.Inc()
		} else {
			valid[i].CountsFor = 1
			seen[k] = true
		}
		eventsIngestedCount.WithLabelValues(valid[i].Category).Inc()
	}

	if err := ing.Store.BulkInsertFeedEvents(ctx, valid); err != nil {
		return fmt.Errorf("feed event bulk insert: %w", err)
	}
	return nil
}
