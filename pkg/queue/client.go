package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/astralis-bot/astralis/pkg/logger"
)

// Client enqueues jobs without processing them. Services that trigger
// refreshes depend on this (through the Enqueuer interface) so they can
// be constructed before the manager that runs the handlers.
type Client struct {
	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	logger *slog.Logger
}

// ClientOption configures the insert-only client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	logger *slog.Logger
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates an insert-only queue client.
func NewClient(pool *pgxpool.Pool, opts ...ClientOption) (*Client, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}

	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewNope()
	}

	// No Queues and no Workers puts River in insert-only mode.
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Logger: cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("queue: create insert-only client: %w", err)
	}

	return &Client{pool: pool, client: client, logger: cfg.logger}, nil
}

// Enqueue submits a job. Task-name validation happens on the worker
// side for insert-only clients.
func (c *Client) Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) error {
	args, insertOpts, err := buildJobArgs(name, payload, opts...)
	if err != nil {
		return err
	}
	if _, err := c.client.Insert(ctx, args, insertOpts); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

// EnqueueTx submits a job inside tx; the job becomes visible only when
// the transaction commits.
func (c *Client) EnqueueTx(ctx context.Context, tx pgx.Tx, name string, payload any, opts ...EnqueueOption) error {
	args, insertOpts, err := buildJobArgs(name, payload, opts...)
	if err != nil {
		return err
	}
	if _, err := c.client.InsertTx(ctx, tx, args, insertOpts); err != nil {
		return fmt.Errorf("queue: enqueue tx: %w", err)
	}
	return nil
}

// Healthcheck returns a probe verifying the queue's backing store.
func (c *Client) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		return c.pool.Ping(ctx)
	}
}

func buildJobArgs(name string, payload any, opts ...EnqueueOption) (*botJobArgs, *river.InsertOpts, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("queue: marshal payload: %w", err)
		}
	}

	args := &botJobArgs{TaskName: name, Payload: raw}

	cfg := &enqueueConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	insertOpts := &river.InsertOpts{}
	if cfg.queue != "" {
		insertOpts.Queue = cfg.queue
	}
	if cfg.notBefore != nil {
		insertOpts.ScheduledAt = *cfg.notBefore
	}
	if cfg.maxAttempts > 0 {
		insertOpts.MaxAttempts = cfg.maxAttempts
	}
	if cfg.coalesceFor > 0 {
		// ByArgs makes the coalesce key (carried in the args) part of
		// the uniqueness tuple, so distinct resources never collapse
		// into each other.
		insertOpts.UniqueOpts = river.UniqueOpts{ByArgs: true, ByPeriod: cfg.coalesceFor}
		if cfg.coalesceKey != "" {
			args.UniqueKey = cfg.coalesceKey
		}
	}

	return args, insertOpts, nil
}
