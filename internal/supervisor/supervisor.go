// Package supervisor keeps a listening channel available for an identity,
// replacing it whenever the previous one closes.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"pipelink/internal/channel"
	"pipelink/internal/logging"
)

// DefaultPollInterval is how often the supervisor checks for a live channel.
const DefaultPollInterval = 500 * time.Millisecond

// Factory builds a fresh idle channel and registers its handlers.
type Factory[T any] func() *channel.Channel[T]

// Publisher is told about channels as they come and go.
type Publisher[T any] interface {
	Set(identity string, ch *channel.Channel[T])
	Clear(identity string, ch *channel.Channel[T])
}

// Option configures a Supervisor.
type Option func(*settings)

type settings struct {
	interval time.Duration
	backoff  Backoff
	logger   *slog.Logger
	rng      *rand.Rand
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBackoff overrides DefaultBackoff.
func WithBackoff(b Backoff) Option {
	return func(s *settings) { s.backoff = b }
}

// WithLogger sets the supervisor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// Supervisor owns the listening channel for one identity.
type Supervisor[T any] struct {
	identity  string
	factory   Factory[T]
	publisher Publisher[T]
	cfg       settings
	logger    *slog.Logger

	mu          sync.Mutex
	current     *channel.Channel[T]
	generation  uint64
	failures    int
	nextAttempt time.Time
	lastErr     error

	wg sync.WaitGroup
}

// New builds a supervisor. publisher may be nil.
func New[T any](identity string, factory Factory[T], publisher Publisher[T], opts ...Option) *Supervisor[T] {
	cfg := settings{
		interval: DefaultPollInterval,
		backoff:  DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Supervisor[T]{
		identity:  identity,
		factory:   factory,
		publisher: publisher,
		cfg:       cfg,
		logger: logging.NewComponentLogger(cfg.logger, "supervisor").With(
			logging.String(logging.FieldIdentity, identity)),
	}
}

// Identity returns the supervised identity.
func (s *Supervisor[T]) Identity() string { return s.identity }

// Current returns the live channel, or nil between channels.
func (s *Supervisor[T]) Current() *channel.Channel[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Generation counts channels created so far.
func (s *Supervisor[T]) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Snapshot describes the supervisor for status reporting.
type Snapshot struct {
	Identity   string `json:"identity"`
	State      string `json:"state"`
	Generation uint64 `json:"generation"`
	Failures   int    `json:"failures"`
	LastError  string `json:"lastError,omitempty"`
}

// Snapshot returns the current status.
func (s *Supervisor[T]) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Identity:   s.identity,
		State:      "waiting",
		Generation: s.generation,
		Failures:   s.failures,
	}
	if s.current != nil {
		snap.State = s.current.State().String()
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// Run polls until ctx is cancelled, creating a channel whenever none is
// live. The live channel is disposed on return.
func (s *Supervisor[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.interval)
	defer ticker.Stop()

	s.logger.Debug("supervisor started", logging.Duration("poll_interval", s.cfg.interval))
	for {
		s.poll(ctx)
		select {
		case <-ctx.Done():
			if ch := s.Current(); ch != nil {
				ch.Dispose()
			}
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Supervisor[T]) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	if s.current != nil || time.Now().Before(s.nextAttempt) {
		s.mu.Unlock()
		return
	}
	ch := s.factory()
	s.current = ch
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	// Published before it listens: sends queue until the peer arrives.
	if s.publisher != nil {
		s.publisher.Set(s.identity, ch)
	}
	s.wg.Add(1)
	go s.serve(ctx, ch, gen)
}

func (s *Supervisor[T]) serve(ctx context.Context, ch *channel.Channel[T], gen uint64) {
	defer s.wg.Done()

	err := ch.StartListening(ctx, s.identity)
	switch {
	case err == nil:
		s.mu.Lock()
		s.failures = 0
		s.lastErr = nil
		s.mu.Unlock()
		s.logger.Debug("channel ready", logging.Int64("generation", int64(gen)))
	case errors.Is(err, channel.ErrChannelClosed) || ctx.Err() != nil:
		// Disposed while waiting for a peer; replace it on the next tick.
		s.logger.Debug("listener closed before a peer arrived", logging.Int64("generation", int64(gen)))
	default:
		s.mu.Lock()
		s.failures++
		s.lastErr = err
		delay := s.cfg.backoff.Delay(s.failures, s.cfg.rng)
		s.nextAttempt = time.Now().Add(delay)
		failures := s.failures
		s.mu.Unlock()
		logging.WarnWithContext(s.logger, "listen failed", "supervisor_listen_failed",
			logging.Error(err),
			logging.Int("attempt", failures),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldImpact, "clients cannot connect until the identity is free"),
			logging.String(logging.FieldErrorHint, "check for another process holding the identity lock"))
	}

	<-ch.Done()
	if s.publisher != nil {
		s.publisher.Clear(s.identity, ch)
	}
	s.mu.Lock()
	if s.current == ch {
		s.current = nil
	}
	s.mu.Unlock()
}
