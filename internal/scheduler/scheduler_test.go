package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunner_RunsImmediatelyAndOnTicks(t *testing.T) {
	var runs atomic.Int64
	r := NewRunner("test", 30*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	time.Sleep(110 * time.Millisecond)
	cancel()
	<-done

	if got := runs.Load(); got < 3 {
		t.Errorf("expected immediate run plus ticks (>=3), got %d", got)
	}
}

func TestRunner_JobErrorsDoNotStopSchedule(t *testing.T) {
	var runs atomic.Int64
	r := NewRunner("flaky", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	time.Sleep(90 * time.Millisecond)
	cancel()
	<-done

	if got := runs.Load(); got < 2 {
		t.Errorf("schedule should continue after errors, got %d runs", got)
	}
}
