package slack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// defaultWorkTimeout bounds the work done for one acknowledged request.
const defaultWorkTimeout = 2 * time.Minute

// Handler receives Slack requests after they have been acknowledged.
type Handler interface {
	Command(ctx context.Context, cmd slack.SlashCommand)
	Shortcut(ctx context.Context, cb slack.InteractionCallback)
	Event(ctx context.Context, evt slackevents.EventsAPIEvent)
}

// dispatcher runs handler work in the background once a transport has
// acknowledged the request, and tracks it for shutdown.
type dispatcher struct {
	handler Handler
	dedup   *Dedup
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

func (d *dispatcher) run(parent context.Context, kind string, work func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("handler panic", "kind", kind, "panic", r)
			}
		}()
		work(ctx)
	}()
}

func (d *dispatcher) command(parent context.Context, cmd slack.SlashCommand) {
	d.run(parent, "command", func(ctx context.Context) { d.handler.Command(ctx, cmd) })
}

func (d *dispatcher) interaction(parent context.Context, cb slack.InteractionCallback) {
	switch cb.Type {
	case slack.InteractionTypeMessageAction, slack.InteractionTypeShortcut:
		d.run(parent, "shortcut", func(ctx context.Context) { d.handler.Shortcut(ctx, cb) })
	default:
		d.logger.Debug("ignoring interaction", "type", string(cb.Type), "callback_id", cb.CallbackID)
	}
}

// event dispatches an Events API callback unless it is a retry of one
// already handled.
func (d *dispatcher) event(parent context.Context, evt slackevents.EventsAPIEvent) {
	if evt.Type != slackevents.CallbackEvent {
		return
	}
	if cb, ok := evt.Data.(*slackevents.EventsAPICallbackEvent); ok && !d.dedup.First(cb.EventID) {
		d.logger.Debug("duplicate event skipped", "event_id", cb.EventID)
		return
	}
	d.run(parent, "event", func(ctx context.Context) { d.handler.Event(ctx, evt) })
}

// Wait blocks until all dispatched work has finished or ctx is done.
func (d *dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
