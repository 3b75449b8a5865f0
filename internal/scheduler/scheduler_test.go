package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunAtStart(t *testing.T) {
	var runs atomic.Int64

	s := New(func(context.Context) error {
		runs.Add(1)
		return nil
	}, &Config{
		Interval:   time.Hour,
		RunAtStart: true,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, runs.Load())
}

func TestScheduler_TicksOnInterval(t *testing.T) {
	var runs atomic.Int64

	s := New(func(context.Context) error {
		runs.Add(1)
		return nil
	}, &Config{
		Interval: 20 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx)
	assert.GreaterOrEqual(t, runs.Load(), int64(3))
}

func TestScheduler_OverlappingTickSkipped(t *testing.T) {
	var (
		runs    atomic.Int64
		release = make(chan struct{})
	)

	s := New(func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, &Config{
		Interval: 10 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	// Several intervals pass while the first run is blocked; none of
	// the ticks may start a second one.
	time.Sleep(80 * time.Millisecond)
	close(release)
	cancel()
	<-done

	assert.EqualValues(t, 1, runs.Load())
}

func TestScheduler_InitialDelayHonoursCancel(t *testing.T) {
	s := New(func(context.Context) error {
		t.Fatal("task must not run during the initial delay")
		return nil
	}, &Config{
		Interval:     time.Hour,
		InitialDelay: time.Hour,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
