package slack

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// SocketListener receives Slack requests over Socket Mode instead of the
// HTTP request URL.
type SocketListener struct {
	dispatcher
	socket *socketmode.Client
}

// NewSocketListener creates a Socket Mode listener. appToken is the
// xapp-... app-level token.
func NewSocketListener(appToken string, handler Handler, clients *Clients, logger *slog.Logger) *SocketListener {
	if logger == nil {
		logger = slog.Default()
	}
	api := slack.New("",
		slack.OptionAppLevelToken(appToken),
		slack.OptionHTTPClient(clients.httpClient),
		slack.OptionAPIURL(clients.apiURL),
	)
	return &SocketListener{
		dispatcher: dispatcher{
			handler: handler,
			dedup:   NewDedup(),
			timeout: defaultWorkTimeout,
			logger:  logger,
		},
		socket: socketmode.New(api),
	}
}

// Listen runs the Socket Mode connection until ctx is cancelled.
func (l *SocketListener) Listen(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-l.socket.Events:
				if !ok {
					return
				}
				l.handleSocketEvent(ctx, evt)
			}
		}
	}()

	return l.socket.RunContext(ctx)
}

// handleSocketEvent acknowledges a request envelope, then dispatches it.
func (l *SocketListener) handleSocketEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		l.socket.Ack(*evt.Request)
		if e, ok := evt.Data.(slackevents.EventsAPIEvent); ok {
			l.event(ctx, e)
		}

	case socketmode.EventTypeInteractive:
		l.socket.Ack(*evt.Request)
		if cb, ok := evt.Data.(slack.InteractionCallback); ok {
			l.interaction(ctx, cb)
		}

	case socketmode.EventTypeSlashCommand:
		l.socket.Ack(*evt.Request)
		if cmd, ok := evt.Data.(slack.SlashCommand); ok {
			l.command(ctx, cmd)
		}

	case socketmode.EventTypeConnecting:
		l.logger.Info("connecting to Slack")

	case socketmode.EventTypeConnected:
		l.logger.Info("connected to Slack")

	case socketmode.EventTypeConnectionError:
		l.logger.Error("slack connection error")

	default:
		// Hello, disconnect and other envelope types need no handling.
	}
}
