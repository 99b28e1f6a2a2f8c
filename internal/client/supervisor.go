package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/metrics"
)

// Attempt is one connection lifetime: dial, identify, run until failure.
type Attempt func(ctx context.Context) error

// Supervisor reruns an Attempt after every failure, pausing BaseDelay plus a
// uniform random share of Jitter in between.
type Supervisor struct {
	BaseDelay time.Duration
	Jitter    time.Duration
	Clock     clockwork.Clock
	Logger    *slog.Logger

	// OnRetry is called before each pause.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func NewSupervisor(cfg config.ReconnectConfig, clock clockwork.Clock, logger *slog.Logger) *Supervisor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Supervisor{
		BaseDelay: cfg.BaseDelay,
		Jitter:    cfg.Jitter,
		Clock:     clock,
		Logger:    logger,
	}
}

// Backoff returns the next pause, in [BaseDelay, BaseDelay+Jitter).
func (s *Supervisor) Backoff() time.Duration {
	if s.Jitter <= 0 {
		return s.BaseDelay
	}
	return s.BaseDelay + time.Duration(rand.Int64N(int64(s.Jitter)))
}

// Run executes attempt until ctx is done or the attempt reports
// ErrSourceExhausted. Attempt failures, including panics, are logged and
// retried. It returns ctx.Err() on cancellation and nil on exhaustion.
func (s *Supervisor) Run(ctx context.Context, attempt Attempt) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for n := 1; ; n++ {
		err := s.runOnce(ctx, attempt)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrSourceExhausted) {
			logger.Info("event source exhausted, stopping")
			return nil
		}

		delay := s.Backoff()
		logger.Warn("connection lost, retrying", "attempt", n, "error", err, "retry_in", delay)
		metrics.ClientReconnects.Inc()
		if s.OnRetry != nil {
			s.OnRetry(n, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Clock.After(delay):
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, attempt Attempt) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("attempt panicked: %v", r)
		}
	}()
	err = attempt(ctx)
	if err == nil {
		err = ErrConnectionClosed
	}
	return err
}
