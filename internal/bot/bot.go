// Package bot implements the slash command, message shortcut and Events API
// handlers of the multireact app.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/ccaruceru/slack-multireact/internal/emoji"
	"github.com/ccaruceru/slack-multireact/internal/reaction"
	islack "github.com/ccaruceru/slack-multireact/internal/slack"
	"github.com/ccaruceru/slack-multireact/internal/store"
)

const (
	// MaxReactions is the most reactions Slack lets one user add to a message.
	MaxReactions = 23

	DefaultCommand    = "/multireact"
	DefaultCallbackID = "add_reactions"
)

// User-facing replies.
const (
	msgTooMany = "Slow down! You tried to save more than 23 reactions :racing_car:\n" +
		"Try using less reactions this time :checkered_flag:"
	msgInvalid = "Oh no! You did not provide any valid reactions :open_mouth:\n" +
		"Make sure you type the reactions starting with `:`, " +
		"or use the Emoji button (:slightly_smiling_face:) to add one."
	msgUnicodeHint = "\nEmoji pasted as characters can't be saved, pick them from the Emoji button instead."
	msgSaved       = "Great! Your new reactions are saved :sunglasses: Type `%s` to see them at any time."
	msgCurrent     = "Your current reactions are: %s. Type `%s <new list of emojis>` to change them."
	msgNone        = "You do not have any reactions set :anguished:\nType `%s <list of emojis>` to set one."
	msgNoEmoji     = "Sorry, I couldn't check your emojis right now :disappointed: Please try again in a minute."
	msgFailure     = "Sorry, something went wrong :disappointed: Please try again later."
	msgNoUserToken = "I can't add reactions for you yet :key: Please install the app again to grant access."
)

// Vocabulary is the emoji vocabulary cache.
type Vocabulary interface {
	Vocabulary(ctx context.Context, workspaceID string, dir emoji.Directory) (*emoji.Snapshot, error)
	Invalidate(workspaceID string)
	Forget(workspaceID string)
}

// Bot handles acknowledged Slack requests. It implements islack.Handler.
type Bot struct {
	reactions     *store.Reactions
	installations *store.Installations
	vocab         Vocabulary
	platform      Platform
	applier       *reaction.Applier
	command       string
	callbackID    string
	appURL        string
	logger        *slog.Logger
}

var _ islack.Handler = (*Bot)(nil)

// Option configures a Bot.
type Option func(*Bot)

// WithCommand sets the slash command name shown in replies.
func WithCommand(cmd string) Option {
	return func(b *Bot) {
		b.command = cmd
	}
}

// WithCallbackID sets the callback id of the message shortcut.
func WithCallbackID(id string) Option {
	return func(b *Bot) {
		b.callbackID = id
	}
}

// WithAppURL sets the public URL serving /img, used for App Home screenshots.
func WithAppURL(u string) Option {
	return func(b *Bot) {
		b.appURL = u
	}
}

// WithApplier sets the reaction applier.
func WithApplier(a *reaction.Applier) Option {
	return func(b *Bot) {
		b.applier = a
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		b.logger = l
	}
}

// New creates a Bot.
func New(reactions *store.Reactions, installations *store.Installations, vocab Vocabulary, platform Platform, opts ...Option) *Bot {
	b := &Bot{
		reactions:     reactions,
		installations: installations,
		vocab:         vocab,
		platform:      platform,
		command:       DefaultCommand,
		callbackID:    DefaultCallbackID,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.applier == nil {
		b.applier = reaction.NewApplier(reaction.WithLogger(b.logger))
	}
	return b
}

// Command handles the slash command.
func (b *Bot) Command(ctx context.Context, cmd slack.SlashCommand) {
	if err := b.HandleCommand(ctx, cmd); err != nil {
		b.logger.Error("command failed", "user", cmd.UserID, "team", cmd.TeamID, "error", err)
	}
}

// Shortcut handles the message shortcut.
func (b *Bot) Shortcut(ctx context.Context, cb slack.InteractionCallback) {
	if cb.CallbackID != b.callbackID {
		b.logger.Debug("ignoring shortcut", "callback_id", cb.CallbackID)
		return
	}
	if err := b.HandleShortcut(ctx, cb); err != nil {
		b.logger.Error("shortcut failed", "user", cb.User.ID, "team", cb.Team.ID, "error", err)
	}
}

// Event handles an Events API callback.
func (b *Bot) Event(ctx context.Context, evt slackevents.EventsAPIEvent) {
	if err := b.HandleEvent(ctx, evt); err != nil {
		b.logger.Error("event failed", "type", evt.InnerEvent.Type, "team", evt.TeamID, "error", err)
	}
}

// HandleCommand saves the reactions in the command text, or shows the saved
// ones when the text is blank.
func (b *Bot) HandleCommand(ctx context.Context, cmd slack.SlashCommand) error {
	ws := store.Workspace{
		EnterpriseID:        cmd.EnterpriseID,
		TeamID:              cmd.TeamID,
		IsEnterpriseInstall: cmd.IsEnterpriseInstall,
	}
	if strings.TrimSpace(cmd.Text) != "" {
		return b.save(ctx, ws, cmd)
	}
	return b.display(ctx, ws, cmd)
}

func (b *Bot) save(ctx context.Context, ws store.Workspace, cmd slack.SlashCommand) error {
	candidates := emoji.Parse(cmd.Text)

	var valid []string
	if len(candidates) > 0 {
		snap, err := b.vocabulary(ctx, ws)
		if err != nil {
			b.respond(ctx, cmd.ResponseURL, msgNoEmoji)
			return fmt.Errorf("load emoji vocabulary: %w", err)
		}
		valid = emoji.Validate(candidates, snap)
	}

	switch {
	case len(valid) > MaxReactions:
		b.logger.Info("too many reactions", "user", cmd.UserID, "count", len(valid))
		b.respond(ctx, cmd.ResponseURL, msgTooMany)
		return nil

	case len(valid) == 0:
		b.logger.Info("no valid reactions", "user", cmd.UserID)
		msg := msgInvalid
		if emoji.ContainsUnicode(cmd.Text) {
			msg += msgUnicodeHint
		}
		b.respond(ctx, cmd.ResponseURL, msg)
		return nil
	}

	if err := b.reactions.Save(ctx, ws, cmd.UserID, valid); err != nil {
		b.respond(ctx, cmd.ResponseURL, msgFailure)
		return err
	}
	b.logger.Info("reactions saved", "user", cmd.UserID, "reactions", emoji.Join(valid))
	b.respond(ctx, cmd.ResponseURL, fmt.Sprintf(msgSaved, b.command))
	return nil
}

func (b *Bot) display(ctx context.Context, ws store.Workspace, cmd slack.SlashCommand) error {
	codes, ok, err := b.reactions.Get(ctx, ws, cmd.UserID)
	if err != nil {
		b.respond(ctx, cmd.ResponseURL, msgFailure)
		return err
	}
	if !ok {
		b.logger.Info("no reactions saved", "user", cmd.UserID)
		b.respond(ctx, cmd.ResponseURL, fmt.Sprintf(msgNone, b.command))
		return nil
	}
	b.logger.Info("reactions loaded", "user", cmd.UserID, "reactions", emoji.Join(codes))
	b.respond(ctx, cmd.ResponseURL, fmt.Sprintf(msgCurrent, emoji.Render(codes), b.command))
	return nil
}

// vocabulary returns the workspace's emoji snapshot, listing emoji with the
// bot token of the installation.
func (b *Bot) vocabulary(ctx context.Context, ws store.Workspace) (*emoji.Snapshot, error) {
	inst, err := b.installations.FindBot(ctx, ws)
	if err != nil {
		return nil, fmt.Errorf("find bot installation: %w", err)
	}
	return b.vocab.Vocabulary(ctx, ws.ID(), b.platform.Emoji(inst.BotToken))
}

// HandleShortcut adds the user's saved reactions that are missing from the
// message the shortcut was used on, acting with the user's own token.
func (b *Bot) HandleShortcut(ctx context.Context, cb slack.InteractionCallback) error {
	ws := store.Workspace{
		EnterpriseID:        cb.Enterprise.ID,
		TeamID:              cb.Team.ID,
		IsEnterpriseInstall: cb.IsEnterpriseInstall,
	}
	userID := cb.User.ID

	saved, ok, err := b.reactions.Get(ctx, ws, userID)
	if err != nil {
		return err
	}
	if !ok {
		b.logger.Info("no reactions saved", "user", userID)
		return b.openNoReactions(ctx, ws, cb.TriggerID)
	}

	installer, err := b.installations.FindInstaller(ctx, ws, userID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && installer.UserToken == "") {
		b.respond(ctx, cb.ResponseURL, msgNoUserToken)
		return fmt.Errorf("no user token for %s", userID)
	}
	if err != nil {
		return fmt.Errorf("find user installation: %w", err)
	}

	item := slack.NewRefToMessage(cb.Channel.ID, cb.MessageTs)
	results, err := b.applier.Apply(ctx, b.platform.UserAPI(installer.UserToken), item, userID, saved)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Outcome == reaction.Failed {
			failed++
		}
	}
	b.logger.Info("reactions applied",
		"user", userID,
		"channel", cb.Channel.ID,
		"message", cb.MessageTs,
		"attempted", len(results),
		"failed", failed,
	)
	return nil
}

func (b *Bot) openNoReactions(ctx context.Context, ws store.Workspace, triggerID string) error {
	inst, err := b.installations.FindBot(ctx, ws)
	if err != nil {
		return fmt.Errorf("find bot installation: %w", err)
	}
	if _, err := b.platform.BotAPI(inst.BotToken).OpenViewContext(ctx, triggerID, islack.NoReactionsModal(b.command)); err != nil {
		return fmt.Errorf("open view: %w", err)
	}
	return nil
}

// respond sends an ephemeral reply. Failures are only logged.
func (b *Bot) respond(ctx context.Context, responseURL, text string) {
	if responseURL == "" {
		return
	}
	if err := b.platform.Respond(ctx, responseURL, text); err != nil {
		b.logger.Warn("failed to reply", "error", err)
	}
}
