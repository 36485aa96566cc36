// Package projection turns feature state into pinned-down external
// messages. A Projection composes a state loader, a content renderer,
// and a channel resolver on top of the message-claim refresher; feature
// packages instantiate one per rendered surface.
package projection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/astralis-bot/astralis/pkg/claim"
	"github.com/astralis-bot/astralis/pkg/platform"
)

// LoadFunc fetches the current state to render.
type LoadFunc[S any] func(ctx context.Context, tenantID, resourceID string) (S, error)

// RenderFunc turns state into message content. Rendering is pure, so a
// refresh is always an idempotent re-render of current state.
type RenderFunc[S any] func(state S) platform.Content

// ChannelFunc resolves the tenant's target channel for this surface.
// An empty channel id means the tenant has not configured one.
type ChannelFunc func(ctx context.Context, tenantID string) (string, error)

// PinStore is the pin bookkeeping subset of the message store.
type PinStore interface {
	// BeginPin marks the pin attempt and returns the message to pin.
	// ok is false when there is nothing to pin or a pin was already
	// attempted.
	BeginPin(ctx context.Context, key claim.Key) (channelID string, id platform.MessageID, ok bool, err error)

	// MarkPinned records a successful pin.
	MarkPinned(ctx context.Context, key claim.Key) error
}

// Projection maintains one external message per (tenant, resource).
type Projection[S any] struct {
	feature   string
	load      LoadFunc[S]
	render    RenderFunc[S]
	channel   ChannelFunc
	refresher *claim.Refresher
	store     PinStore
	api       platform.Client
	pin       bool
	log       *slog.Logger
}

// ProjectionOption configures a Projection.
type ProjectionOption func(*projectionConfig)

type projectionConfig struct {
	pin bool
	log *slog.Logger
}

// WithPin pins the message after it is first created.
func WithPin() ProjectionOption {
	return func(c *projectionConfig) { c.pin = true }
}

// WithLogger sets the projection logger.
func WithLogger(l *slog.Logger) ProjectionOption {
	return func(c *projectionConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// New builds a projection for one feature surface.
func New[S any](
	feature string,
	store PinStore,
	refresher *claim.Refresher,
	api platform.Client,
	load LoadFunc[S],
	render RenderFunc[S],
	channel ChannelFunc,
	opts ...ProjectionOption,
) *Projection[S] {
	cfg := &projectionConfig{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Projection[S]{
		feature:   feature,
		load:      load,
		render:    render,
		channel:   channel,
		refresher: refresher,
		store:     store,
		api:       api,
		pin:       cfg.pin,
		log:       cfg.log,
	}
}

// Refresh re-renders the projection's message from current state. A
// tenant without a configured channel is skipped, not failed, so one
// unconfigured guild never poisons a shared job.
func (p *Projection[S]) Refresh(ctx context.Context, tenantID, resourceID string) error {
	channelID, err := p.channel(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("projection: resolve channel for %s: %w", tenantID, err)
	}
	if channelID == "" {
		p.log.InfoContext(ctx, "projection skipped, no channel configured",
			slog.String("feature", p.feature),
			slog.String("tenant_id", tenantID),
		)
		return nil
	}

	state, err := p.load(ctx, tenantID, resourceID)
	if err != nil {
		return fmt.Errorf("projection: load %s state: %w", p.feature, err)
	}

	key := claim.Key{TenantID: tenantID, Feature: p.feature, ResourceID: resourceID}
	outcome, err := p.refresher.Refresh(ctx, key, channelID, p.render(state))
	if err != nil {
		return fmt.Errorf("projection: refresh %s: %w", key, err)
	}

	if p.pin && outcome == claim.OutcomeCreated {
		p.ensurePinned(ctx, key)
	}
	return nil
}

// ensurePinned pins the claimed message at most once. Pinning is
// cosmetic, so failures are logged and swallowed.
func (p *Projection[S]) ensurePinned(ctx context.Context, key claim.Key) {
	channelID, id, ok, err := p.store.BeginPin(ctx, key)
	if err != nil {
		p.log.WarnContext(ctx, "pin bookkeeping failed", slog.String("key", key.String()), slog.Any("error", err))
		return
	}
	if !ok {
		return
	}
	if err := p.api.PinMessage(ctx, channelID, id); err != nil {
		p.log.WarnContext(ctx, "pin failed", slog.String("key", key.String()), slog.Any("error", err))
		return
	}
	if err := p.store.MarkPinned(ctx, key); err != nil {
		p.log.WarnContext(ctx, "pin bookkeeping failed", slog.String("key", key.String()), slog.Any("error", err))
	}
}
