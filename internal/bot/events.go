package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	islack "github.com/ccaruceru/slack-multireact/internal/slack"
	"github.com/ccaruceru/slack-multireact/internal/store"
)

// HandleEvent handles the Events API callbacks the app subscribes to.
func (b *Bot) HandleEvent(ctx context.Context, evt slackevents.EventsAPIEvent) error {
	ws := store.Workspace{EnterpriseID: evt.EnterpriseID, TeamID: evt.TeamID}

	switch e := evt.InnerEvent.Data.(type) {
	case *slackevents.AppHomeOpenedEvent:
		return b.publishHome(ctx, ws, e)

	case *slackevents.TokensRevokedEvent:
		return b.revokeTokens(ctx, ws, e.Tokens.Oauth)

	case *slackevents.AppUninstalledEvent:
		b.vocab.Forget(ws.ID())
		if err := b.installations.DeleteAll(ctx, ws); err != nil {
			return fmt.Errorf("delete installations: %w", err)
		}
		b.logger.Info("app uninstalled", "team", ws.TeamID, "enterprise", ws.EnterpriseID)
		return nil

	case *slackevents.EmojiChangedEvent:
		b.vocab.Invalidate(ws.ID())
		b.logger.Debug("emoji vocabulary invalidated", "team", ws.TeamID, "subtype", e.Subtype)
		return nil

	default:
		b.logger.Debug("ignoring event", "type", evt.InnerEvent.Type)
		return nil
	}
}

func (b *Bot) publishHome(ctx context.Context, ws store.Workspace, e *slackevents.AppHomeOpenedEvent) error {
	if e.Tab != "" && e.Tab != "home" {
		return nil
	}
	inst, err := b.installations.FindBot(ctx, ws)
	if err != nil {
		return fmt.Errorf("find bot installation: %w", err)
	}
	req := slack.PublishViewContextRequest{
		UserID: e.User,
		View:   islack.HomeView(b.command, b.appURL),
	}
	if _, err := b.platform.BotAPI(inst.BotToken).PublishViewContext(ctx, req); err != nil {
		return fmt.Errorf("publish home: %w", err)
	}
	b.logger.Info("home tab published", "user", e.User)
	return nil
}

// revokeTokens deletes what is kept for users whose delegated tokens were
// revoked: their saved reactions and installer records.
func (b *Bot) revokeTokens(ctx context.Context, ws store.Workspace, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	err := errors.Join(
		b.reactions.Delete(ctx, ws, userIDs...),
		b.installations.DeleteInstaller(ctx, ws, userIDs...),
	)
	if err != nil {
		return fmt.Errorf("delete user data: %w", err)
	}
	b.logger.Info("deleted user data", "users", userIDs)
	return nil
}
