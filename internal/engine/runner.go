// Package engine orchestrates sync jobs: the Runner performs one full
// fetch-normalize-merge-persist cycle for one server, the Pool bounds job
// concurrency, and the Scheduler fires jobs on per-server intervals.
package engine

import (
	"context"
	"time"

	"github.com/Omihmed/CalDAV2iCal/internal/dav"
	"github.com/Omihmed/CalDAV2iCal/internal/ics"
	appLog "github.com/Omihmed/CalDAV2iCal/internal/log"
	"github.com/Omihmed/CalDAV2iCal/internal/metrics"
	"github.com/Omihmed/CalDAV2iCal/internal/store"
)

// Fetcher retrieves event payloads for one server within a time window.
type Fetcher interface {
	Fetch(ctx context.Context, srv store.Server, windowStart, windowEnd time.Time) (dav.Result, error)
}

// Runner executes one sync job per invocation. Jobs are fully isolated:
// a failure updates the server's status and the activity log and goes no
// further. Concurrent runs for different servers are safe; concurrent
// runs for the same server are last-writer-wins on the artifact, which
// stays valid at all times thanks to the atomic replace.
type Runner struct {
	store        *store.Store
	fetcher      Fetcher
	artifactPath string
	horizonDays  int
}

// NewRunner wires a Runner against the shared store.
func NewRunner(st *store.Store, fetcher Fetcher, artifactPath string, horizonDays int) *Runner {
	if horizonDays <= 0 {
		horizonDays = 365
	}
	return &Runner{
		store:        st,
		fetcher:      fetcher,
		artifactPath: artifactPath,
		horizonDays:  horizonDays,
	}
}

// Run performs one full sync for the given server. It is invoked from
// the scheduler and from manual "sync now" triggers alike.
func (r *Runner) Run(ctx context.Context, serverID string) {
	srv, ok := r.store.Server(serverID)
	if !ok {
		appLog.Warn("sync requested for unknown server", "server", serverID)
		return
	}

	cutoff := time.Now()
	windowEnd := cutoff.AddDate(0, 0, r.horizonDays)

	result, err := r.fetcher.Fetch(ctx, srv, cutoff, windowEnd)
	if err != nil {
		r.fail(srv, err)
		return
	}

	r.store.Appendf("Found calendar: %s", result.CalendarPath)
	if len(result.Payloads) == 0 {
		r.store.Appendf("No events found in calendar: %s", result.CalendarPath)
	}

	events := make([]*ics.Event, 0, len(result.Payloads))
	for _, payload := range result.Payloads {
		ev, err := ics.Normalize(payload)
		if err != nil {
			// Parse errors are contained here: logged, skipped, job
			// continues with the remaining payloads.
			r.store.Appendf("Error parsing event: %v", err)
			metrics.RecordParseFailure()
			continue
		}
		events = append(events, ics.Materialize(ev, cutoff, windowEnd)...)
	}

	cal, added := ics.BuildCombined(events, cutoff)
	for _, ev := range added {
		r.store.Appendf("Added event %q to combined calendar from: %s", ev.Summary, result.CalendarPath)
	}

	if err := ics.WriteArtifact(r.artifactPath, cal); err != nil {
		r.fail(srv, err)
		return
	}
	r.store.Appendf("Combined calendar written to file: %s", r.artifactPath)

	r.store.SetStatus(srv.ID, store.StatusOK)
	r.store.Appendf("Sync successful for %s", srv.Endpoint)
	appLog.Info("sync completed",
		"server", srv.ID,
		"endpoint", dav.RedactURL(srv.Endpoint),
		"events_merged", len(added),
	)
	metrics.RecordSyncSuccess()
	metrics.RecordEventsMerged(len(added))
}

func (r *Runner) fail(srv store.Server, err error) {
	r.store.SetStatus(srv.ID, store.StatusError)
	r.store.Appendf("Sync failed for %s: %v", srv.Endpoint, err)
	appLog.Error("sync failed", err, "server", srv.ID, "endpoint", dav.RedactURL(srv.Endpoint))
	metrics.RecordSyncFailure()
}
