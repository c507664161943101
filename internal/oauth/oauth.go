// Package oauth implements the Slack OAuth v2 install flow: the install link
// that sends a user to Slack's consent screen and the redirect endpoint that
// exchanges the code for tokens and stores the installation.
package oauth

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/ccaruceru/slack-multireact/internal/store"
)

// AuthorizeURL is Slack's OAuth v2 consent screen.
const AuthorizeURL = "https://slack.com/oauth/v2/authorize"

var (
	// DefaultBotScopes are needed for the slash command and emoji.list.
	DefaultBotScopes = []string{"commands", "emoji:read"}
	// DefaultUserScopes let the app react on the user's behalf.
	DefaultUserScopes = []string{"reactions:read", "reactions:write"}
)

// Handler serves the install and redirect endpoints.
type Handler struct {
	clientID      string
	clientSecret  string
	redirectURL   string
	botScopes     []string
	userScopes    []string
	states        *store.StateStore
	installations *store.Installations
	httpClient    *http.Client
	authorizeURL  string
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithRedirectURL sets the redirect_uri sent to Slack. Empty means the one
// configured in the app settings.
func WithRedirectURL(u string) Option {
	return func(h *Handler) {
		h.redirectURL = u
	}
}

// WithScopes overrides the requested bot and user scopes.
func WithScopes(bot, user []string) Option {
	return func(h *Handler) {
		h.botScopes = bot
		h.userScopes = user
	}
}

// WithHTTPClient sets the HTTP client used for the code exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) {
		h.httpClient = c
	}
}

// WithClock sets a custom time function (for testing).
func WithClock(fn func() time.Time) Option {
	return func(h *Handler) {
		h.now = fn
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// NewHandler creates the OAuth handler of one Slack app.
func NewHandler(clientID, clientSecret string, states *store.StateStore, installations *store.Installations, opts ...Option) *Handler {
	h := &Handler{
		clientID:      clientID,
		clientSecret:  clientSecret,
		botScopes:     DefaultBotScopes,
		userScopes:    DefaultUserScopes,
		states:        states,
		installations: installations,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		authorizeURL:  AuthorizeURL,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Install redirects to Slack's consent screen with a fresh state value.
func (h *Handler) Install(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state, err := h.states.Issue(r.Context())
	if err != nil {
		h.logger.Error("failed to issue oauth state", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.authorizeLink(state), http.StatusFound)
}

func (h *Handler) authorizeLink(state string) string {
	q := url.Values{
		"client_id":  {h.clientID},
		"scope":      {strings.Join(h.botScopes, ",")},
		"user_scope": {strings.Join(h.userScopes, ",")},
		"state":      {state},
	}
	if h.redirectURL != "" {
		q.Set("redirect_uri", h.redirectURL)
	}
	return h.authorizeURL + "?" + q.Encode()
}

// Redirect completes an installation.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	if reason := q.Get("error"); reason != "" {
		h.logger.Info("installation cancelled", "reason", reason)
		h.failure(w, http.StatusOK, reason)
		return
	}

	ok, err := h.states.Consume(r.Context(), q.Get("state"))
	if err != nil {
		h.logger.Error("failed to check oauth state", "error", err)
		h.failure(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if !ok {
		h.logger.Warn("invalid or expired oauth state")
		h.failure(w, http.StatusBadRequest, "invalid_state")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.failure(w, http.StatusBadRequest, "missing_code")
		return
	}

	inst, err := h.exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth exchange failed", "error", err)
		h.failure(w, http.StatusInternalServerError, "exchange_failed")
		return
	}
	if err := h.installations.Save(r.Context(), inst); err != nil {
		h.logger.Error("failed to save installation", "error", err)
		h.failure(w, http.StatusInternalServerError, "storage_error")
		return
	}

	h.logger.Info("app installed",
		"team", inst.TeamID,
		"enterprise", inst.EnterpriseID,
		"user", inst.UserID,
	)
	h.success(w, inst)
}

func (h *Handler) exchange(ctx context.Context, code string) (*store.Installation, error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, h.httpClient, h.clientID, h.clientSecret, code, h.redirectURL)
	if err != nil {
		return nil, fmt.Errorf("oauth.v2.access: %w", err)
	}
	return &store.Installation{
		AppID:               resp.AppID,
		EnterpriseID:        resp.Enterprise.ID,
		EnterpriseName:      resp.Enterprise.Name,
		TeamID:              resp.Team.ID,
		TeamName:            resp.Team.Name,
		IsEnterpriseInstall: resp.IsEnterpriseInstall,
		BotToken:            resp.AccessToken,
		BotUserID:           resp.BotUserID,
		BotScopes:           resp.Scope,
		UserID:              resp.AuthedUser.ID,
		UserToken:           resp.AuthedUser.AccessToken,
		UserScopes:          resp.AuthedUser.Scope,
		InstalledAt:         h.now().UTC(),
	}, nil
}

const pageTemplate = `<html>
<head><title>%s</title></head>
<body>
<h2>%s</h2>
<p>%s</p>
</body>
</html>
`

func (h *Handler) success(w http.ResponseWriter, inst *store.Installation) {
	link := fmt.Sprintf("slack://app?team=%s&id=%s", url.QueryEscape(inst.TeamID), url.QueryEscape(inst.AppID))
	if inst.IsEnterpriseInstall {
		link = "https://app.slack.com/manage/" + url.PathEscape(inst.EnterpriseID) + "/integrations/profile/" +
			url.PathEscape(inst.AppID) + "/workspaces/add"
	}
	body := fmt.Sprintf(`Thank you! You can now <a href="%s">open the app in Slack</a>.`, html.EscapeString(link))
	writePage(w, http.StatusOK, "Installation completed", "Multi Reaction Add is installed", body)
}

func (h *Handler) failure(w http.ResponseWriter, status int, reason string) {
	body := fmt.Sprintf(`Something went wrong (%s). <a href="./install">Try again</a>.`, html.EscapeString(reason))
	writePage(w, status, "Installation failed", "Installation failed", body)
}

func writePage(w http.ResponseWriter, status int, title, heading, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, pageTemplate, html.EscapeString(title), html.EscapeString(heading), body)
}
