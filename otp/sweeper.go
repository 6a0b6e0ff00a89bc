package otp

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when Sweeper.Interval is zero.
const DefaultSweepInterval = time.Hour

// Sweepable deletes expired codes.
type Sweepable interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SweepFunc adapts a function to Sweepable.
type SweepFunc func(ctx context.Context) (int64, error)

// SweepExpired calls f.
func (f SweepFunc) SweepExpired(ctx context.Context) (int64, error) {
	return f(ctx)
}

// Sweeper periodically removes expired codes.
type Sweeper struct {
	Target   Sweepable
	Interval time.Duration
	Logger   *slog.Logger
	// RunOnStart sweeps once before the first tick.
	RunOnStart bool
}

// Run sweeps on every tick until ctx is done. A failed sweep is logged and
// the loop keeps going. Run returns nil when ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.Target == nil {
		return errors.New("sweeper target is required")
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "otp_sweeper"))

	logger.InfoContext(ctx, "otp sweeper started", slog.Duration("interval", interval))
	defer logger.Info("otp sweeper stopped")

	if s.RunOnStart {
		s.sweepOnce(ctx, logger)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepOnce(ctx, logger)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context, logger *slog.Logger) {
	deleted, err := s.Target.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.WarnContext(ctx, "otp sweep failed", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		logger.InfoContext(ctx, "otp sweep removed expired codes", slog.Int64("count", deleted))
	}
}
