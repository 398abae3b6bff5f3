// Package metrics exposes Prometheus counters for the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	syncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caldav2ical_syncs_total",
		Help: "Completed sync jobs by outcome.",
	}, []string{"status"})

	eventsMergedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caldav2ical_events_merged_total",
		Help: "Events written into the combined calendar artifact.",
	})

	parseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caldav2ical_parse_failures_total",
		Help: "Event payloads skipped because they could not be parsed.",
	})

	dispatchDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caldav2ical_dispatch_dropped_total",
		Help: "Sync dispatches refused because the job queue was full.",
	})
)

// RecordSyncSuccess counts one successfully completed sync job.
func RecordSyncSuccess() {
	syncsTotal.WithLabelValues("ok").Inc()
}

// RecordSyncFailure counts one failed sync job.
func RecordSyncFailure() {
	syncsTotal.WithLabelValues("error").Inc()
}

// RecordEventsMerged counts events that made it into the artifact.
func RecordEventsMerged(n int) {
	eventsMergedTotal.Add(float64(n))
}

// RecordParseFailure counts one skipped, unparseable payload.
func RecordParseFailure() {
	parseFailuresTotal.Inc()
}

// RecordDispatchDropped counts one refused dispatch.
func RecordDispatchDropped() {
	dispatchDroppedTotal.Inc()
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
