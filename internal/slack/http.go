package slack

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// maxBodyBytes caps request bodies accepted on the events endpoint.
const maxBodyBytes = 1 << 20

// EventsHandler serves Slack's request URL: Events API callbacks, slash
// commands and interactivity payloads. Every request is verified against the
// signing secret and acknowledged with 200 before the work starts.
type EventsHandler struct {
	dispatcher
	signingSecret string
}

// EventsOption configures an EventsHandler.
type EventsOption func(*EventsHandler)

// WithEventsLogger sets the structured logger.
func WithEventsLogger(l *slog.Logger) EventsOption {
	return func(h *EventsHandler) {
		h.logger = l
	}
}

// WithEventsDedup sets the retry deduplication set.
func WithEventsDedup(d *Dedup) EventsOption {
	return func(h *EventsHandler) {
		h.dedup = d
	}
}

// WithWorkTimeout bounds the work done for one request.
func WithWorkTimeout(d time.Duration) EventsOption {
	return func(h *EventsHandler) {
		h.timeout = d
	}
}

// NewEventsHandler creates the HTTP request URL handler.
func NewEventsHandler(signingSecret string, handler Handler, opts ...EventsOption) *EventsHandler {
	h := &EventsHandler{
		dispatcher: dispatcher{
			handler: handler,
			dedup:   NewDedup(),
			timeout: defaultWorkTimeout,
			logger:  slog.Default(),
		},
		signingSecret: signingSecret,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.verify(r.Header, body); err != nil {
		h.logger.Warn("rejected unsigned request", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		h.serveEvent(w, r, body)
		return
	}
	h.serveForm(w, r, body)
}

func (h *EventsHandler) verify(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

func (h *EventsHandler) serveEvent(w http.ResponseWriter, r *http.Request, body []byte) {
	evt, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		// Signed by Slack but of a type we do not subscribe to; a non-200
		// reply would only make Slack retry it.
		h.logger.Warn("unparseable event", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	switch evt.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))

	case slackevents.AppRateLimited:
		h.logger.Warn("event delivery rate limited by Slack", "team", evt.TeamID)
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusOK)
		h.event(r.Context(), evt)
	}
}

func (h *EventsHandler) serveForm(w http.ResponseWriter, r *http.Request, body []byte) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if payload := form.Get("payload"); payload != "" {
		var cb slack.InteractionCallback
		if err := json.Unmarshal([]byte(payload), &cb); err != nil {
			h.logger.Warn("unparseable interaction", "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		h.interaction(r.Context(), cb)
		return
	}

	if form.Get("command") != "" {
		r.Body = io.NopCloser(bytes.NewReader(body))
		cmd, err := slack.SlashCommandParse(r)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		h.command(r.Context(), cmd)
		return
	}

	http.Error(w, "bad request", http.StatusBadRequest)
}
