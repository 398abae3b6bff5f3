package engine

import (
	"context"
	"sync"

	appLog "github.com/Omihmed/CalDAV2iCal/internal/log"
	"github.com/Omihmed/CalDAV2iCal/internal/metrics"
)

// JobRunner executes one sync job for one server.
type JobRunner interface {
	Run(ctx context.Context, serverID string)
}

// Pool runs sync jobs on a fixed number of workers fed by a buffered
// queue of server IDs. Dispatch never blocks: when the queue is full the
// dispatch is refused, so a slow batch of jobs cannot stall the
// scheduler tick.
type Pool struct {
	jobs    chan string
	workers int
	runner  JobRunner
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(workers, queueSize int, runner JobRunner) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Pool{
		jobs:    make(chan string, queueSize),
		workers: workers,
		runner:  runner,
	}
}

// Start launches the workers. They run until ctx is canceled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.jobs:
			p.runner.Run(ctx, id)
		}
	}
}

// Dispatch enqueues one sync job for the given server and reports
// whether the job was accepted.
func (p *Pool) Dispatch(serverID string) bool {
	select {
	case p.jobs <- serverID:
		return true
	default:
		appLog.Warn("sync queue full, dispatch refused", "server", serverID)
		metrics.RecordDispatchDropped()
		return false
	}
}

// Wait blocks until all workers have exited after ctx cancellation.
func (p *Pool) Wait() {
	p.wg.Wait()
}
