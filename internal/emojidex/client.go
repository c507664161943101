// Package emojidex fetches standard emoji short-codes from the public emojidex
// directory, with a bundled list to fall back on when it is unreachable.
package emojidex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	// DefaultURL is the emojidex endpoint listing unicode emoji.
	DefaultURL     = "https://www.emojidex.com/api/v1/utf_emoji"
	defaultTimeout = 10 * time.Second
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("emojidex unavailable")

// StatusError reports a non-200 response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("emojidex: unexpected status %s", e.Status)
}

// Source lists standard emoji short-codes.
type Source interface {
	StandardEmoji(ctx context.Context) ([]string, error)
}

// entry is one element of the emojidex response. Only the base name is used.
type entry struct {
	Base string `json:"base"`
}

// Client is an HTTP client for the emojidex directory. Repeated failures open
// a circuit breaker so a dead directory does not slow every vocabulary refresh.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
	fallback   Source

	breaker *gobreaker.CircuitBreaker[[]string]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithURL overrides the directory URL.
func WithURL(url string) Option {
	return func(cl *Client) {
		cl.url = url
	}
}

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// WithFallback sets the source consulted when the directory fails.
func WithFallback(s Source) Option {
	return func(cl *Client) {
		cl.fallback = s
	}
}

// NewClient creates an emojidex client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		url:        DefaultURL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        "emojidex",
		MaxRequests: 1,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a directory failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c
}

// StandardEmoji returns the base names of all standard emoji. When the
// directory fails and a fallback is configured, the fallback's list is
// returned instead.
func (c *Client) StandardEmoji(ctx context.Context) ([]string, error) {
	names, err := c.breaker.Execute(func() ([]string, error) {
		return c.fetch(ctx)
	})
	if err == nil {
		return names, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if c.fallback == nil || ctx.Err() != nil {
		return nil, err
	}
	c.logger.Warn("emojidex fetch failed, using bundled emoji", "error", err)
	return c.fallback.StandardEmoji(ctx)
}

func (c *Client) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("emojidex request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var entries []entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode emojidex response: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if name := normalize(e.Base); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// normalize turns an emojidex base name ("thumbs up") into Slack's
// short-code form ("thumbs_up").
func normalize(base string) string {
	return strings.ReplaceAll(strings.TrimSpace(base), " ", "_")
}
