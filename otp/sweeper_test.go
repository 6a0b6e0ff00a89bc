package otp_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/passly/otp"
	"go.uber.org/goleak"
)

func TestSweeperRunsUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int64
	s := &otp.Sweeper{
		Target: otp.SweepFunc(func(context.Context) (int64, error) {
			calls.Add(1)
			return 1, nil
		}),
		Interval:   5 * time.Millisecond,
		RunOnStart: true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("sweeper ran %d times, want at least 3", calls.Load())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestSweeperSurvivesErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int64
	s := &otp.Sweeper{
		Target: otp.SweepFunc(func(context.Context) (int64, error) {
			calls.Add(1)
			return 0, errors.New("store unavailable")
		}),
		Interval: 2 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("sweeper stopped after a failed sweep")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestSweeperRequiresTarget(t *testing.T) {
	if err := (&otp.Sweeper{}).Run(context.Background()); err == nil {
		t.Fatal("expected error for missing target")
	}
}
