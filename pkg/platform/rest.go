package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// RESTConfig holds chat-platform API credentials, populated from the
// environment.
type RESTConfig struct {
	BaseURL  string        `env:"CHAT_API_BASE_URL,required"`
	BotToken string        `env:"CHAT_API_BOT_TOKEN,required"`
	Timeout  time.Duration `env:"CHAT_API_TIMEOUT" envDefault:"10s"`
}

// ErrMissingToken is returned when a REST client is built without credentials.
var ErrMissingToken = errors.New("platform: bot token is required")

// REST is the HTTP implementation of Client.
type REST struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewREST creates a REST client for the chat platform message API.
func NewREST(cfg RESTConfig) (*REST, error) {
	if cfg.BotToken == "" {
		return nil, ErrMissingToken
	}
	return &REST{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.BotToken,
	}, nil
}

type createMessageResponse struct {
	ID MessageID `json:"id"`
}

func (c *REST) CreateMessage(ctx context.Context, channelID string, content Content) (MessageID, error) {
	var resp createMessageResponse
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	if err := c.do(ctx, http.MethodPost, path, &content, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *REST) EditMessage(ctx context.Context, channelID string, id MessageID, content Content) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, id)
	return c.do(ctx, http.MethodPatch, path, &content, nil)
}

func (c *REST) DeleteMessage(ctx context.Context, channelID string, id MessageID) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *REST) PinMessage(ctx context.Context, channelID string, id MessageID) error {
	path := fmt.Sprintf("/channels/%s/pins/%s", channelID, id)
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

func (c *REST) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("platform: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("platform: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors pass through untouched so pkg/backoff can
		// recognize resets, refusals, timeouts and DNS failures.
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("platform: decode response: %w", err)
			}
		}
		return nil
	}

	return c.apiError(resp)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *REST) apiError(resp *http.Response) error {
	ae := &APIError{Status: resp.StatusCode}

	var body errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		ae.Code = body.Code
		ae.Message = body.Message
	}

	// Retry-After is seconds, possibly fractional on this platform.
	// Round up so we never retry earlier than the server asked.
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil && secs > 0 {
			ae.RetryAfter = time.Duration(math.Ceil(secs*1000)) * time.Millisecond
		}
	}

	return ae
}
