package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnceExecutesJob(t *testing.T) {
	var runs atomic.Int32
	j := &Job{
		Name:     "test",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}

	RunOnce(j)
	assert.Equal(t, int32(1), runs.Load())
}

func TestOverlappingRunIsSkippedNotQueued(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var startedOnce sync.Once
	var runs atomic.Int32

	j := &Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			startedOnce.Do(func() { close(started) })
			<-release
			return nil
		},
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		RunOnce(j)
	}()

	<-started
	// A tick arriving mid-cycle must be dropped.
	RunOnce(j)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	wg.Wait()

	// Once the slow cycle returns the guard is clear again.
	RunOnce(j)
	assert.Equal(t, int32(2), runs.Load())
}

func TestFailedCycleClearsGuard(t *testing.T) {
	var runs atomic.Int32
	j := &Job{
		Name:     "flaky",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("cycle blew up")
		},
	}

	RunOnce(j)
	RunOnce(j)
	assert.Equal(t, int32(2), runs.Load(), "a failed cycle must not wedge the job")
}

func TestCycleContextHonoursTimeout(t *testing.T) {
	j := &Job{
		Name:     "bounded",
		Interval: time.Hour,
		Timeout:  10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			deadline, ok := ctx.Deadline()
			require.True(t, ok, "cycle context must carry the job timeout")
			assert.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 50*time.Millisecond)
			return nil
		},
	}
	RunOnce(j)
}

func TestRunnerStopWaitsForInFlightCycle(t *testing.T) {
	inCycle := make(chan struct{})
	var finished atomic.Bool

	j := &Job{
		Name:     "draining",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			select {
			case inCycle <- struct{}{}:
			default:
			}
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
			return nil
		},
	}

	r := NewRunner(j)
	r.Start()
	<-inCycle
	r.Stop()

	assert.True(t, finished.Load(), "Stop must wait for the in-flight cycle")
}
