package bot

import (
	"context"

	"github.com/slack-go/slack"

	"github.com/ccaruceru/slack-multireact/internal/emoji"
	"github.com/ccaruceru/slack-multireact/internal/reaction"
	islack "github.com/ccaruceru/slack-multireact/internal/slack"
)

// ViewsAPI is the part of the Web API used with the bot token.
type ViewsAPI interface {
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	PublishViewContext(ctx context.Context, req slack.PublishViewContextRequest) (*slack.ViewResponse, error)
}

// Platform hands out Slack clients bound to one token each, so a user's
// delegated token is never shared with another request.
type Platform interface {
	BotAPI(token string) ViewsAPI
	UserAPI(token string) reaction.API
	Emoji(token string) emoji.Directory
	Respond(ctx context.Context, responseURL, text string) error
}

// NewPlatform adapts a Slack client factory to Platform.
func NewPlatform(c *islack.Clients) Platform {
	return &platform{clients: c}
}

type platform struct {
	clients *islack.Clients
}

func (p *platform) BotAPI(token string) ViewsAPI {
	return p.clients.API(token)
}

func (p *platform) UserAPI(token string) reaction.API {
	return p.clients.API(token)
}

func (p *platform) Emoji(token string) emoji.Directory {
	return p.clients.Emoji(token)
}

func (p *platform) Respond(ctx context.Context, responseURL, text string) error {
	return p.clients.Respond(ctx, responseURL, text)
}
