package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/Omihmed/CalDAV2iCal/internal/engine"
)

type countingRunner struct {
	mu    sync.Mutex
	delay time.Duration
	runs  map[string]int
	done  chan struct{}
}

func newCountingRunner(delay time.Duration) *countingRunner {
	return &countingRunner{
		delay: delay,
		runs:  make(map[string]int),
		done:  make(chan struct{}, 64),
	}
}

func (r *countingRunner) Run(_ context.Context, serverID string) {
	time.Sleep(r.delay)
	r.mu.Lock()
	r.runs[serverID]++
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *countingRunner) count(serverID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[serverID]
}

func (r *countingRunner) waitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-deadline:
			return false
		}
	}
	return true
}

func TestPool(t *testing.T) {
	convey.Convey("Given a started pool", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		runner := newCountingRunner(0)
		pool := engine.NewPool(2, 8, runner)
		pool.Start(ctx)

		convey.Convey("When jobs for different servers are dispatched", func() {
			convey.So(pool.Dispatch("srv-a"), convey.ShouldBeTrue)
			convey.So(pool.Dispatch("srv-b"), convey.ShouldBeTrue)

			convey.Convey("Then both run independently", func() {
				convey.So(runner.waitFor(2, 2*time.Second), convey.ShouldBeTrue)
				convey.So(runner.count("srv-a"), convey.ShouldEqual, 1)
				convey.So(runner.count("srv-b"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a manual and a scheduled job race for the same server", func() {
			convey.So(pool.Dispatch("srv-a"), convey.ShouldBeTrue)
			convey.So(pool.Dispatch("srv-a"), convey.ShouldBeTrue)

			convey.Convey("Then both complete (at-least-once, last writer wins)", func() {
				convey.So(runner.waitFor(2, 2*time.Second), convey.ShouldBeTrue)
				convey.So(runner.count("srv-a"), convey.ShouldEqual, 2)
			})
		})
	})

	convey.Convey("Given a pool whose workers have not started", t, func() {
		runner := newCountingRunner(0)
		pool := engine.NewPool(1, 1, runner)

		convey.Convey("When the queue fills up", func() {
			convey.So(pool.Dispatch("srv-a"), convey.ShouldBeTrue)

			convey.Convey("Then further dispatches are refused without blocking", func() {
				convey.So(pool.Dispatch("srv-b"), convey.ShouldBeFalse)
			})
		})
	})

	convey.Convey("Given a canceled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		runner := newCountingRunner(0)
		pool := engine.NewPool(2, 8, runner)
		pool.Start(ctx)

		convey.Convey("When the context is canceled", func() {
			cancel()

			convey.Convey("Then Wait returns once all workers exit", func() {
				done := make(chan struct{})
				go func() {
					pool.Wait()
					close(done)
				}()
				select {
				case <-done:
				case <-time.After(2 * time.Second):
					t.Fatal("pool did not shut down")
				}
			})
		})
	})
}
