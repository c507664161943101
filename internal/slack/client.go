package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/slack-go/slack"
)

// defaultTimeout bounds a single Web API call.
const defaultTimeout = 30 * time.Second

// Clients builds Slack Web API clients bound to one token each. A client is
// never re-pointed at another token, so calls made for one user cannot leak
// into another user's request.
type Clients struct {
	httpClient *http.Client
	apiURL     string
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// ClientsOption configures Clients.
type ClientsOption func(*Clients)

// WithHTTPClient sets the HTTP client used for all API calls.
func WithHTTPClient(c *http.Client) ClientsOption {
	return func(cl *Clients) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the Web API base URL (for testing). It must end in a
// slash.
func WithAPIURL(u string) ClientsOption {
	return func(cl *Clients) {
		cl.apiURL = u
	}
}

// WithSlackLogger sets the structured logger.
func WithSlackLogger(l *slog.Logger) ClientsOption {
	return func(cl *Clients) {
		cl.logger = l
	}
}

// WithBackOff sets the retry policy for emoji.list (for testing).
func WithBackOff(fn func() backoff.BackOff) ClientsOption {
	return func(cl *Clients) {
		cl.newBackOff = fn
	}
}

// NewClients creates a client factory.
func NewClients(opts ...ClientsOption) *Clients {
	c := &Clients{
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiURL:     slack.APIURL,
		logger:     slog.Default(),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// API returns a Web API client acting with token.
func (c *Clients) API(token string) *slack.Client {
	return slack.New(token,
		slack.OptionHTTPClient(c.httpClient),
		slack.OptionAPIURL(c.apiURL),
	)
}

// Emoji returns the emoji directory of the workspace token belongs to.
func (c *Clients) Emoji(token string) *EmojiDirectory {
	return &EmojiDirectory{
		httpClient: c.httpClient,
		apiURL:     c.apiURL,
		token:      token,
		logger:     c.logger,
		newBackOff: c.newBackOff,
	}
}

// HTTPClient returns the shared HTTP client, for calls made outside a
// token-bound client such as OAuth exchanges and response URLs.
func (c *Clients) HTTPClient() *http.Client {
	return c.httpClient
}

// Respond posts an ephemeral reply through a slash command or shortcut
// response URL.
func (c *Clients) Respond(ctx context.Context, responseURL, text string) error {
	msg := &slack.WebhookMessage{
		Text:         text,
		ResponseType: slack.ResponseTypeEphemeral,
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, c.httpClient, msg); err != nil {
		return fmt.Errorf("slack respond: %w", err)
	}
	return nil
}
