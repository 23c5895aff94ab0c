package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mirrorwatch/crawler/internal/catalog"
)

// metrics mirrors the promauto.NewCounterVec/NewHistogramVec pattern
// used for datastore instrumentation in this codebase's reference
// material (quay-claircore's datastore/postgres/get.go), applied here
// to the crawler's own outcomes instead of database queries.
var (
	directoryVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mirrorcrawler",
		Subsystem: "resultsync",
		Name:      "directory_verdicts_total",
		Help:      "Count of directory verdicts written by outcome.",
	}, []string{"outcome"})

	hostCrawlDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mirrorcrawler",
		Subsystem: "worker",
		Name:      "host_crawl_duration_seconds",
		Help:      "Wall-clock duration of one host's crawl.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"exit_reason"})

	hostsNotUpToDate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mirrorcrawler",
		Subsystem: "worker",
		Name:      "hosts_marked_not_up_to_date_total",
		Help:      "Count of hosts marked not up-to-date, by reason.",
	}, []string{"reason"})
)

// observeHostCrawlDuration records one host crawl's wall-clock cost,
// labeled by how it ended ("success", "host_failure", "timeout",
// "unhandled_exception").
func observeHostCrawlDuration(exitReason string, d time.Duration) {
	hostCrawlDuration.WithLabelValues(exitReason).Observe(d.Seconds())
}

// countHostNotUpToDate records one host being marked not up to date,
// labeled by the short reason category so dashboards can distinguish
// "no_categories_found" from "unhandled_exception".
func countHostNotUpToDate(reason string) {
	hostsNotUpToDate.WithLabelValues(reason).Inc()
}

func observeStats(s catalog.Stats) {
	directoryVerdicts.WithLabelValues("up_to_date").Add(float64(s.UpToDate))
	directoryVerdicts.WithLabelValues("not_up_to_date").Add(float64(s.NotUpToDate))
	directoryVerdicts.WithLabelValues("unchanged").Add(float64(s.Unchanged))
	directoryVerdicts.WithLabelValues("unknown").Add(float64(s.Unknown))
	directoryVerdicts.WithLabelValues("new_dir").Add(float64(s.NewDir))
	directoryVerdicts.WithLabelValues("deleted_on_master").Add(float64(s.DeletedOnMaster))
	directoryVerdicts.WithLabelValues("unreadable").Add(float64(s.Unreadable))
}
