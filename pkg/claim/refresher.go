package claim

import (
	"context"
	"log/slog"

	"github.com/astralis-bot/astralis/pkg/platform"
	"github.com/astralis-bot/astralis/pkg/retry"
	"github.com/astralis-bot/astralis/pkg/throttle"
)

// Outcome reports which path a refresh took.
type Outcome string

const (
	// OutcomeUpdated means the existing message was edited (common case).
	OutcomeUpdated Outcome = "updated"
	// OutcomeCreated means a new message was created and claimed.
	OutcomeCreated Outcome = "created"
	// OutcomeReconciled means this worker lost the claim race and folded
	// its content into the winner's message.
	OutcomeReconciled Outcome = "reconciled"
)

// claimRounds bounds recovery when a claim keeps missing because of
// concurrent clears.
const claimRounds = 3

// Refresher drives rendered content into a resource's single message,
// creating, editing or reconciling as needed.
type Refresher struct {
	store   Store
	api     platform.Client
	invoker *retry.Invoker
	edits   *throttle.Serializer[platform.Content]
	logger  *slog.Logger
}

// Option configures a Refresher.
type Option func(*refresherConfig)

type refresherConfig struct {
	invoker      *retry.Invoker
	logger       *slog.Logger
	throttleOpts []throttle.Option
}

// WithInvoker substitutes the retry invoker used for create, edit and
// delete calls.
func WithInvoker(iv *retry.Invoker) Option {
	return func(c *refresherConfig) {
		if iv != nil {
			c.invoker = iv
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *refresherConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithThrottle forwards options to the per-target edit serializer.
func WithThrottle(opts ...throttle.Option) Option {
	return func(c *refresherConfig) {
		c.throttleOpts = append(c.throttleOpts, opts...)
	}
}

// New creates a Refresher over a Store and platform client. Call Close
// on shutdown.
func New(store Store, api platform.Client, opts ...Option) *Refresher {
	cfg := &refresherConfig{
		invoker: retry.New(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := &Refresher{
		store:   store,
		api:     api,
		invoker: cfg.invoker,
		logger:  cfg.logger,
	}

	throttleOpts := append([]throttle.Option{throttle.WithLogger(cfg.logger)}, cfg.throttleOpts...)
	r.edits = throttle.New(r.issueEdit, throttleOpts...)

	return r
}

// Close releases the edit serializer.
func (r *Refresher) Close() {
	r.edits.Close()
}

// issueEdit performs one serialized edit, retried per classification.
func (r *Refresher) issueEdit(ctx context.Context, key string, content platform.Content) error {
	channelID, msgID, err := SplitEditKey(key)
	if err != nil {
		return err
	}
	return r.invoker.Do(ctx, "edit message "+key, func(ctx context.Context) error {
		return r.api.EditMessage(ctx, channelID, msgID, content)
	})
}

// Refresh makes key's message show content, creating the message if the
// resource does not own one yet. channelID is where a new message would
// be posted; an existing message is edited wherever it already lives.
//
// Safe to run concurrently for the same key and to re-run after partial
// failure: at most one message ever ends up claimed, and duplicates are
// edited-into or deleted.
func (r *Refresher) Refresh(ctx context.Context, key Key, channelID string, content platform.Content) (Outcome, error) {
	rec, err := r.store.Current(ctx, key)
	if err != nil {
		return "", err
	}

	if rec.MessageID != "" {
		err := r.edits.Queue(ctx, EditKey(rec.ChannelID, rec.MessageID), content)
		if err == nil {
			return OutcomeUpdated, nil
		}
		if !platform.IsNotFound(err) {
			return "", err
		}

		// The message is gone externally. Clear our sighting, but only
		// while it still names the id we just failed to edit.
		if err := r.store.ClearIf(ctx, key, rec.MessageID); err != nil {
			return "", err
		}
		r.logger.InfoContext(ctx, "stale message cleared",
			slog.String("resource", key.String()),
			slog.String("message_id", string(rec.MessageID)),
		)
	}

	return r.create(ctx, key, channelID, content)
}

// create posts a new message and settles ownership of it.
func (r *Refresher) create(ctx context.Context, key Key, channelID string, content platform.Content) (Outcome, error) {
	id, err := retry.Do(ctx, r.invoker, "create message for "+key.String(), func(ctx context.Context) (platform.MessageID, error) {
		return r.api.CreateMessage(ctx, channelID, content)
	})
	if err != nil {
		return "", err
	}

	for range claimRounds {
		claimed, err := r.store.Claim(ctx, key, channelID, id)
		if err != nil {
			return "", err
		}
		if claimed {
			return OutcomeCreated, nil
		}

		winner, err := r.store.Current(ctx, key)
		if err != nil {
			return "", err
		}

		switch winner.MessageID {
		case "":
			// Claimed and cleared again between our attempts; the row is
			// free once more, so try to claim our message for it.
			continue
		case id:
			// Someone recorded our own message id, likely a retried run
			// of this very handler. Ownership is settled.
			return OutcomeCreated, nil
		}

		// Lost the race. The winning message must still end up showing
		// our rendered content, since ours may be the newest state.
		r.logger.InfoContext(ctx, "reconciling duplicate message",
			slog.String("resource", key.String()),
			slog.String("winner", string(winner.MessageID)),
			slog.String("duplicate", string(id)),
			slog.Any("error", ErrStaleClaim),
		)

		editErr := r.edits.Queue(ctx, EditKey(winner.ChannelID, winner.MessageID), content)
		r.deleteBestEffort(ctx, channelID, id)
		if editErr != nil && !platform.IsNotFound(editErr) {
			return "", editErr
		}
		return OutcomeReconciled, nil
	}

	return "", ErrUnsettled
}

// deleteBestEffort removes this worker's duplicate message. A leftover
// duplicate is an acceptable degraded outcome, so failures are logged
// and swallowed.
func (r *Refresher) deleteBestEffort(ctx context.Context, channelID string, id platform.MessageID) {
	err := r.invoker.Do(ctx, "delete duplicate message "+string(id), func(ctx context.Context) error {
		return r.api.DeleteMessage(ctx, channelID, id)
	})
	if err != nil && !platform.IsNotFound(err) {
		r.logger.WarnContext(ctx, "duplicate message not deleted",
			slog.String("channel_id", channelID),
			slog.String("message_id", string(id)),
			slog.Any("error", err),
		)
	}
}
