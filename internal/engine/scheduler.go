package engine

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	appLog "github.com/Omihmed/CalDAV2iCal/internal/log"
	"github.com/Omihmed/CalDAV2iCal/internal/store"
)

// Dispatcher accepts sync jobs; the Pool implements it.
type Dispatcher interface {
	Dispatch(serverID string) bool
}

// Scheduler walks the registry on a fixed tick and dispatches a sync job
// for every server whose interval has elapsed. A server that has never
// synced is treated as infinitely overdue and fires on the first tick.
// There are no catch-up semantics: a missed tick is absorbed into the
// next check.
type Scheduler struct {
	store      *store.Store
	dispatcher Dispatcher
	spec       string
	cron       *cron.Cron
}

// NewScheduler creates a Scheduler ticking on the given cron spec
// (e.g. "@every 1m").
func NewScheduler(st *store.Store, d Dispatcher, spec string) *Scheduler {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Scheduler{store: st, dispatcher: d, spec: spec}
}

// Start begins ticking and keeps going until ctx is canceled. Job
// failures never reach this loop; it terminates only on shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, s.Tick); err != nil {
		return err
	}
	c.Start()
	s.cron = c

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Info("scheduler stopped")
	}()

	appLog.Info("scheduler started", "tick", s.spec)
	return nil
}

// Tick checks every registered server once. For each due server the job
// is dispatched without waiting for completion, and the dispatch time
// immediately becomes the new last-sync so the next tick does not fire a
// duplicate while the job is still running.
func (s *Scheduler) Tick() {
	now := time.Now()
	for _, srv := range s.store.Servers() {
		interval := time.Duration(srv.IntervalMinutes) * time.Minute
		if !srv.LastSync.IsZero() && now.Sub(srv.LastSync) < interval {
			continue
		}
		if s.dispatcher.Dispatch(srv.ID) {
			s.store.SetLastSync(srv.ID, now)
		}
	}
}
