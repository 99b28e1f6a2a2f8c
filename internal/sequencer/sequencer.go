// Package sequencer is a scripted publisher source. It plays a song on a
// loop: each voicing is held for Interval, followed by a silence lasting
// SilenceGap.
package sequencer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/metrics"
	"github.com/humanophone/humanophone/internal/protocol"
)

const defaultBuffer = 16

type Options struct {
	Interval   time.Duration
	SilenceGap time.Duration
	// Loops is the number of passes through the song; 0 repeats forever.
	Loops  int
	Buffer int
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// NewOptions fills Options from the publisher configuration.
func NewOptions(cfg config.PublisherConfig, logger *slog.Logger) Options {
	return Options{
		Interval:   cfg.Interval,
		SilenceGap: cfg.SilenceGap,
		Logger:     logger,
	}
}

// Sequencer emits a song's publications on a channel. Sends never block: if
// the publisher is disconnected and the queue is full, events are dropped
// so the song keeps its tempo.
type Sequencer struct {
	steps  []protocol.Message
	opts   Options
	events chan protocol.Message
}

func New(song Song, opts Options) (*Sequencer, error) {
	steps, err := song.Publications()
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	return &Sequencer{
		steps:  steps,
		opts:   opts,
		events: make(chan protocol.Message, opts.Buffer),
	}, nil
}

// Events implements client.EventSource. The channel is closed when Run
// returns.
func (s *Sequencer) Events() <-chan protocol.Message { return s.events }

// Len returns the number of voicings in one pass.
func (s *Sequencer) Len() int { return len(s.steps) }

// Run plays the song until ctx is done or the configured loops are finished.
func (s *Sequencer) Run(ctx context.Context) {
	defer close(s.events)

	for pass := 0; s.opts.Loops == 0 || pass < s.opts.Loops; pass++ {
		for _, step := range s.steps {
			s.emit(step)
			if !s.wait(ctx, s.opts.Interval) {
				return
			}
			s.emit(protocol.PublishSilence{})
			if !s.wait(ctx, s.opts.SilenceGap) {
				return
			}
		}
	}
	s.opts.Logger.Info("song finished", "loops", s.opts.Loops)
}

func (s *Sequencer) emit(msg protocol.Message) {
	select {
	case s.events <- msg:
	default:
		metrics.SequencerEventsDropped.Inc()
		s.opts.Logger.Debug("event queue full, dropping", "type", msg.Type())
	}
}

func (s *Sequencer) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.opts.Clock.After(d):
		return true
	}
}
