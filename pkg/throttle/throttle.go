// Package throttle serializes edits to the same external message.
//
// The chat platform rate-limits frequent edits of a single message, and
// readers only care about the latest state, so the serializer keeps one
// pending payload per target and overwrites it as newer edits arrive.
// Per target, exactly one drain loop issues edits, spaced by a minimum
// interval. This is the only place in the codebase that guarantees
// ordering, and it guarantees it per target key only.
package throttle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned when edits are queued after shutdown.
var ErrClosed = errors.New("throttle: serializer closed")

const defaultInterval = 2 * time.Second

// IssueFunc performs one edit against the target key. Implementations
// are expected to wrap the platform call with pkg/retry.
type IssueFunc[T any] func(ctx context.Context, key string, payload T) error

// Serializer coalesces and spaces edits per target key. Callers block
// in Queue until an edit reflecting their payload, or a newer one, has
// been issued.
type Serializer[T any] struct {
	issue    IssueFunc[T]
	logger   *slog.Logger
	targets  map[string]*target[T]
	rootCtx  context.Context
	cancel   context.CancelFunc
	interval time.Duration
	mu       sync.Mutex
	closed   bool
}

// batch is the single pending slot for a target plus everyone waiting
// on it. Newer payloads overwrite the slot; their callers join the
// same waiter list.
type batch[T any] struct {
	payload T
	waiters []chan error
}

type target[T any] struct {
	pending    *batch[T]
	lastIssued time.Time
	draining   bool
}

// Option configures a Serializer.
type Option func(*config)

type config struct {
	logger   *slog.Logger
	interval time.Duration
}

// WithInterval sets the minimum spacing between issued edits for a
// single target. Default: 2s.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets the logger for drain failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Serializer. Call Close on shutdown to abort in-flight
// throttle waits.
func New[T any](issue IssueFunc[T], opts ...Option) *Serializer[T] {
	cfg := &config{
		logger:   slog.New(slog.DiscardHandler),
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	return &Serializer[T]{
		issue:    issue,
		logger:   cfg.logger,
		targets:  make(map[string]*target[T]),
		rootCtx:  rootCtx,
		cancel:   cancel,
		interval: cfg.interval,
	}
}

// Queue registers payload as the latest desired state for key and
// blocks until a drain loop has issued it (or a newer payload for the
// same key). Returning nil means the target now reflects the caller's
// payload or something more recent.
//
// A canceled ctx releases only the caller; the pending edit still
// drains so the external message does not go stale.
func (s *Serializer[T]) Queue(ctx context.Context, key string, payload T) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	tgt, ok := s.targets[key]
	if !ok {
		tgt = &target[T]{}
		s.targets[key] = tgt
	}

	done := make(chan error, 1)
	if tgt.pending == nil {
		tgt.pending = &batch[T]{payload: payload, waiters: []chan error{done}}
	} else {
		tgt.pending.payload = payload
		tgt.pending.waiters = append(tgt.pending.waiters, done)
	}

	if !tgt.draining {
		tgt.draining = true
		go s.drain(key, tgt)
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// drain issues pending payloads for one target until none remain.
func (s *Serializer[T]) drain(key string, tgt *target[T]) {
	for {
		s.mu.Lock()
		if tgt.pending == nil {
			tgt.draining = false
			s.mu.Unlock()
			return
		}
		wait := time.Until(tgt.lastIssued.Add(s.interval))
		if wait > 0 {
			s.mu.Unlock()
			select {
			case <-s.rootCtx.Done():
				s.abandon(tgt)
				return
			case <-time.After(wait):
			}
			continue
		}

		p := tgt.pending
		tgt.pending = nil
		tgt.lastIssued = time.Now()
		s.mu.Unlock()

		err := s.issue(s.rootCtx, key, p.payload)
		if err != nil {
			s.logger.ErrorContext(s.rootCtx, "edit drain failed",
				slog.String("target", key),
				slog.Any("error", err),
			)
		}
		for _, w := range p.waiters {
			w <- err
		}
	}
}

// abandon releases a target's waiters during shutdown.
func (s *Serializer[T]) abandon(tgt *target[T]) {
	s.mu.Lock()
	p := tgt.pending
	tgt.pending = nil
	tgt.draining = false
	s.mu.Unlock()

	if p == nil {
		return
	}
	for _, w := range p.waiters {
		w <- ErrClosed
	}
}

// Close aborts throttle waits and rejects further edits. Edits already
// being issued finish; their waiters are notified as usual.
func (s *Serializer[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
}
