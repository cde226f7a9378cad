package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunSurvivesFailingAndPanickingTicks(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, at time.Time) error {
			n := calls.Add(1)
			switch n {
			case 1:
				return errors.New("boom")
			case 2:
				panic("kaboom")
			case 4:
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run should end with context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if calls.Load() < 4 {
		t.Fatalf("ticks after failures should continue, got %d calls", calls.Load())
	}
}

func TestRunStopsDuringStartupDelay(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(context.Context, time.Time) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNextTickAlignment(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2026, 10, 19, 10, 0, 30, 0, time.UTC)
	want := time.Date(2026, 10, 19, 10, 1, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(want) {
		t.Fatalf("aligned next tick = %s, want %s", got, want)
	}

	s = New(Options{Interval: time.Minute}, zerolog.Nop())
	if got := s.nextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("unaligned next tick = %s", got)
	}
}

func TestNewRejectsZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("zero interval should panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}

func TestMissedSlots(t *testing.T) {
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	s.now = func() time.Time { return now }

	cases := []struct {
		next time.Time
		want int64
	}{
		{next: now.Add(time.Second), want: 0},
		{next: now, want: 0},
		{next: now.Add(-time.Second), want: 1},
		{next: now.Add(-150 * time.Second), want: 3},
	}
	for _, tc := range cases {
		if got := s.missedSlots(tc.next); got != tc.want {
			t.Fatalf("missedSlots(%s) = %d, want %d", tc.next, got, tc.want)
		}
	}
}
