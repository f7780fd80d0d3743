package usecase

import (
	"context"
	"sync"
	"time"

	applogger "SignalCoord/pkg/logger"
)

// CycleRunner drains the signal buffer on a fixed interval and runs one
// decision cycle per tick. Ticks with an empty buffer are skipped.
type CycleRunner struct {
	coord    *Coordinator
	interval time.Duration
	logger   *applogger.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// NewCycleRunner creates a runner; a non-positive interval disables it.
func NewCycleRunner(coord *Coordinator, interval time.Duration, logger *applogger.Logger) *CycleRunner {
	return &CycleRunner{coord: coord, interval: interval, logger: logger}
}

// Enabled reports whether the runner has a positive interval.
func (r *CycleRunner) Enabled() bool { return r.interval > 0 }

// Start launches the background loop. It is a no-op when disabled or running.
// Cycles run on a context detached from ctx cancellation: a cycle in flight
// when ctx ends still reaches the oracle and the bus within its own
// deadlines. Cancelling ctx only stops new ticks.
func (r *CycleRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || !r.Enabled() {
		return nil
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.started = true
	go r.loop(ctx, r.stop, r.done)
	return nil
}

func (r *CycleRunner) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	cycleCtx := context.WithoutCancel(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(cycleCtx)
		}
	}
}

// Tick runs one cycle if there are pending signals. It reports whether a
// cycle ran.
func (r *CycleRunner) Tick(ctx context.Context) bool {
	if r.coord.Buffer().Len() == 0 {
		return false
	}
	dec := r.coord.ProcessPending(ctx)
	if r.logger != nil {
		r.logger.Info("decision cycle complete",
			applogger.String("action", string(dec.Action)),
			applogger.String("path", string(dec.Path)),
			applogger.Any("confidence", dec.Confidence),
			applogger.Strings("agents", dec.Agents),
			applogger.Strings("dissenters", dec.Dissenters),
		)
	}
	return true
}

// Shutdown stops the loop and waits for the in-flight cycle to finish.
func (r *CycleRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
