package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/timeline-comb/app/authors"
)

func staticSource(handles ...string) AuthorSource {
	return func() ([]authors.Author, error) {
		list := make([]authors.Author, len(handles))
		for i, h := range handles {
			list[i] = authors.Author{Handle: h}
		}
		return list, nil
	}
}

func TestSchedulerRunsOnStartAndQueuesOneRequest(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{}, 4)
	release := make(chan struct{})

	run := func(ctx context.Context, list []authors.Author) (RunSummary, error) {
		n := runs.Add(1)
		started <- struct{}{}
		<-release
		return RunSummary{ID: string(rune('0' + n)), State: RunDone}, nil
	}

	s := NewScheduler(run, staticSource("alice"), 0)
	s.Start()
	defer s.Stop()

	<-started
	assert.True(t, s.Running())

	// one request waits behind the running harvest, the next is refused
	require.NoError(t, s.EnqueueRun())
	assert.ErrorIs(t, s.EnqueueRun(), ErrRunPending)

	release <- struct{}{}
	<-started
	close(release)

	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())

	last, ok := s.LastRun()
	require.True(t, ok)
	assert.Equal(t, "2", last.ID)
}

func TestSchedulerRunsNeverOverlap(t *testing.T) {
	var active, overlaps, runs atomic.Int32

	run := func(ctx context.Context, list []authors.Author) (RunSummary, error) {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		runs.Add(1)
		return RunSummary{State: RunDone}, nil
	}

	s := NewScheduler(run, staticSource("alice"), time.Millisecond)
	s.Start()
	for i := 0; i < 20; i++ {
		_ = s.EnqueueRun()
		time.Sleep(time.Millisecond)
	}
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(0), overlaps.Load())
}

func TestSchedulerSkipsRunWithoutAuthors(t *testing.T) {
	tests := []struct {
		name   string
		source AuthorSource
	}{
		{"source error", func() ([]authors.Author, error) { return nil, errors.New("bad yaml") }},
		{"empty list", staticSource()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs atomic.Int32
			run := func(context.Context, []authors.Author) (RunSummary, error) {
				runs.Add(1)
				return RunSummary{}, nil
			}

			s := NewScheduler(run, tt.source, 0)
			s.Start()
			// the startup request has been consumed once a new one is accepted
			require.Eventually(t, func() bool { return s.EnqueueRun() == nil }, time.Second, 5*time.Millisecond)
			s.Stop()

			assert.Equal(t, int32(0), runs.Load())
			_, ok := s.LastRun()
			assert.False(t, ok)
		})
	}
}

func TestSchedulerStopCancelsRun(t *testing.T) {
	started := make(chan struct{})
	run := func(ctx context.Context, list []authors.Author) (RunSummary, error) {
		close(started)
		<-ctx.Done()
		return RunSummary{State: RunAborted}, ctx.Err()
	}

	s := NewScheduler(run, staticSource("alice"), 0)
	s.Start()
	<-started
	s.Stop()

	last, ok := s.LastRun()
	require.True(t, ok)
	assert.Equal(t, RunAborted, last.State)
	assert.ErrorIs(t, s.EnqueueRun(), context.Canceled)
}
