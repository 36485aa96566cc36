package platform

import "context"

// MessageID identifies a message on the chat platform.
type MessageID string

// Content is the renderable body of a message. Features render their
// view models into this shape; the client serializes it for the wire.
type Content struct {
	Body  string `json:"content,omitempty"`
	Embed *Embed `json:"embed,omitempty"`
}

// Embed is a rich-content panel attached to a message.
type Embed struct {
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"description,omitempty"`
	Color  int     `json:"color,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
}

// Field is a labeled line inside an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Client is the message API consumed by the projection layer.
//
// CreateMessage and EditMessage surface *APIError on failure so callers
// can classify. DeleteMessage and PinMessage are used best-effort only;
// their failures are logged by callers, never escalated.
type Client interface {
	CreateMessage(ctx context.Context, channelID string, content Content) (MessageID, error)
	EditMessage(ctx context.Context, channelID string, id MessageID, content Content) error
	DeleteMessage(ctx context.Context, channelID string, id MessageID) error
	PinMessage(ctx context.Context, channelID string, id MessageID) error
}
