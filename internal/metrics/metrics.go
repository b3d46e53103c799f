package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline counters. Registered once by Init; usable (but unregistered)
// before that, which keeps unit tests free of registry setup.
var (
	EditsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vandalwatch_edits_ingested_total",
		Help: "Edit notifications admitted from the feed",
	})
	FeedParseErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vandalwatch_feed_parse_errors_total",
		Help: "Notifications dropped because no revision id could be parsed",
	})
	EditsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vandalwatch_edits_dropped_total",
		Help: "Edits dropped after exhausting the metadata retry budget",
	})
	EditsScored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vandalwatch_edits_scored_total",
		Help: "Edits scored and published, by channel",
	}, []string{"channel"})
	ClassifierErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vandalwatch_classifier_errors_total",
		Help: "Primary classifier failures (edit not committed to a channel)",
	})
	RevertsDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vandalwatch_reverts_detected_total",
		Help: "Edits identified as reverts, by origin",
	}, []string{"origin"})
	OffendersLocated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vandalwatch_offenders_located_total",
		Help: "Offending edits located behind confirmed reverts",
	})
	ItemsServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vandalwatch_items_served_total",
		Help: "Review items handed to reviewer sessions",
	})
	StaleEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vandalwatch_stale_evictions_total",
		Help: "Cached items evicted after their page moved on",
	})
)

var initOnce sync.Once

// QueueDepth reports the current admission queue length on scrape.
type QueueDepth interface {
	Len() int
}

// Init registers all collectors. Must be called once at startup; queue may
// be nil in tests.
func Init(queue QueueDepth) {
	initOnce.Do(func() {
		prometheus.MustRegister(
			EditsIngested, FeedParseErrors, EditsDropped, EditsScored,
			ClassifierErrors, RevertsDetected, OffendersLocated,
			ItemsServed, StaleEvictions,
		)
		if queue != nil {
			prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "vandalwatch_admission_queue_depth",
				Help: "Items waiting out replication lag in the admission queue",
			}, func() float64 { return float64(queue.Len()) }))
		}
	})
}
