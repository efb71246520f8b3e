package feedevents

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsIngestedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trustmod_feed_events_ingested",
	Help: "Number of feed events persisted, by category",
}, []string{"category"})

var eventsDroppedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trustmod_feed_events_dropped_invalid",
	Help: "Number of malformed feed events dropped at ingest",
})

var eventsDedupedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trustmod_feed_events_deduped",
	Help: "Number of feed events persisted with zero weight due to timebox dedup",
})

var bulkUpsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "trustmod_feed_events_bulk_upsert_duration_sec",
	Help: "Duration of feed event bulk upsert calls",
})
