// Package jobs runs the periodic cycles: each job gets its own ticker
// goroutine and an atomic overlap guard so a slow cycle is never stacked
// behind by the next tick. Overlapping runs are skipped, not queued.
package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/classops/registrar/internal/log"
	"github.com/classops/registrar/internal/metrics"
)

// Job is one periodic cycle.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds one cycle; a timed-out cycle aborts and the next
	// tick is the retry path.
	Timeout time.Duration
	Run     func(ctx context.Context) error

	running atomic.Bool
}

// Runner schedules a set of jobs.
type Runner struct {
	jobs   []*Job
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner constructs a Runner.
func NewRunner(jobs ...*Job) *Runner {
	return &Runner{jobs: jobs, stopCh: make(chan struct{})}
}

// Start begins every job's ticker loop.
func (r *Runner) Start() {
	for _, j := range r.jobs {
		r.wg.Add(1)
		go r.loop(j)
	}
}

// Stop stops all loops and waits for in-flight cycles to return.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Runner) loop(j *Job) {
	defer r.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			RunOnce(j)
		case <-r.stopCh:
			return
		}
	}
}

// RunOnce executes one guarded cycle of a job. The guard is set before
// the cycle and cleared in a deferred block so a panicking or failing
// cycle can never leave the job wedged.
func RunOnce(j *Job) {
	if !j.running.CompareAndSwap(false, true) {
		metrics.JobsSkippedTotal.WithLabelValues(j.Name).Inc()
		log.WithJob(j.Name).Warn().Msg("previous run still in progress, skipping tick")
		return
	}
	defer j.running.Store(false)

	ctx := context.Background()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	logger := log.WithJob(j.Name)
	start := time.Now()
	err := j.Run(ctx)
	elapsed := time.Since(start)
	metrics.JobDuration.WithLabelValues(j.Name).Observe(elapsed.Seconds())

	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(j.Name, "error").Inc()
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("cycle failed, next tick will retry")
		return
	}
	metrics.JobRunsTotal.WithLabelValues(j.Name, "ok").Inc()
	logger.Debug().Dur("elapsed", elapsed).Msg("cycle complete")
}
