// Package jobs defines the payload envelope shared by every background
// job the bot enqueues. Feature packages embed Envelope in their own
// payload structs so that tenant, feature, action, and correlation id
// travel with every job in a uniform shape.
package jobs

import (
	"context"
	"errors"
	"log/slog"
)

var (
	// ErrMissingCorrelationID is returned when a payload carries no correlation id.
	ErrMissingCorrelationID = errors.New("jobs: missing correlation id")
	// ErrMissingTenantID is returned when a payload carries no tenant id.
	ErrMissingTenantID = errors.New("jobs: missing tenant id")
	// ErrMissingFeature is returned when a payload carries no feature tag.
	ErrMissingFeature = errors.New("jobs: missing feature tag")
	// ErrMissingAction is returned when a payload carries no action tag.
	ErrMissingAction = errors.New("jobs: missing action tag")
)

// Envelope carries the fields common to every job payload. UserID is
// optional; the remaining fields are required and checked by Validate.
type Envelope struct {
	CorrelationID string `json:"correlation_id"`
	TenantID      string `json:"tenant_id"`
	UserID        string `json:"user_id,omitempty"`
	Feature       string `json:"feature"`
	Action        string `json:"action"`
}

// Validate reports whether the envelope carries all required fields.
// Payload structs that embed Envelope and need extra checks should call
// this first and join their own errors after it.
func (e Envelope) Validate() error {
	var errs []error
	if e.CorrelationID == "" {
		errs = append(errs, ErrMissingCorrelationID)
	}
	if e.TenantID == "" {
		errs = append(errs, ErrMissingTenantID)
	}
	if e.Feature == "" {
		errs = append(errs, ErrMissingFeature)
	}
	if e.Action == "" {
		errs = append(errs, ErrMissingAction)
	}
	return errors.Join(errs...)
}

// Tick is the payload template of recurring fan-out jobs. Ticks are
// global (one per schedule firing, not per tenant), so only the
// feature and action tags are required; handlers mint their own
// correlation ids per fanned-out request.
type Tick struct {
	Feature string `json:"feature"`
	Action  string `json:"action"`
}

// Validate reports whether the tick carries its feature and action tags.
func (t Tick) Validate() error {
	var errs []error
	if t.Feature == "" {
		errs = append(errs, ErrMissingFeature)
	}
	if t.Action == "" {
		errs = append(errs, ErrMissingAction)
	}
	return errors.Join(errs...)
}

type ctxKey struct{}

// WithCorrelationID stores a correlation id in the context so that log
// records emitted deeper in the call stack can carry it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// CorrelationIDFromContext extracts a correlation id previously stored
// with WithCorrelationID. Returns the empty string when absent.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// LogExtractor is a logger context extractor that surfaces the
// correlation id on every record logged within a job's context.
func LogExtractor(ctx context.Context) (slog.Attr, bool) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return slog.String("correlation_id", id), true
	}
	return slog.Attr{}, false
}
