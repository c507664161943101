package reaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/ratelimit"
)

// errAlreadyReacted is the Slack error code for a duplicate reaction.
const errAlreadyReacted = "already_reacted"

// Default pacing between consecutive reactions.add calls of one apply.
const (
	DefaultRate = 5
	DefaultPer  = time.Second
)

// API is the part of the Slack Web API an apply needs. *slack.Client
// satisfies it.
type API interface {
	GetReactionsContext(ctx context.Context, item slack.ItemRef, params slack.GetReactionsParameters) ([]slack.ItemReaction, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}

var _ API = (*slack.Client)(nil)

// Outcome classifies the result of one reactions.add call.
type Outcome int

const (
	Success Outcome = iota
	AlreadyReacted
	Failed
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case AlreadyReacted:
		return "already_reacted"
	default:
		return "failed"
	}
}

// Result is the outcome of adding one reaction. Err is set only for Failed.
type Result struct {
	Name    string
	Outcome Outcome
	Err     error
}

// Classify maps a reactions.add error to an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}
	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) && slackErr.Err == errAlreadyReacted {
		return AlreadyReacted
	}
	return Failed
}

// Applier adds saved reactions to messages.
type Applier struct {
	rate   int
	per    time.Duration
	logger *slog.Logger
}

// Option configures an Applier.
type Option func(*Applier)

// WithPacing sets how many reactions.add calls one apply may issue per
// window. A rate of zero or less disables pacing.
func WithPacing(rate int, per time.Duration) Option {
	return func(a *Applier) {
		a.rate = rate
		a.per = per
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Applier) {
		a.logger = l
	}
}

// NewApplier creates an Applier.
func NewApplier(opts ...Option) *Applier {
	a := &Applier{
		rate:   DefaultRate,
		per:    DefaultPer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Applier) limiter() ratelimit.Limiter {
	if a.rate <= 0 || a.per <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(a.rate, ratelimit.Per(a.per), ratelimit.WithoutSlack)
}

// Apply adds to the message every saved reaction userID has not placed yet.
// api must act with userID's own token.
//
// Calls are issued one at a time in saved order. A failed call is logged and
// the rest are still attempted. The returned error is only set when the
// existing reactions cannot be read, in which case nothing is added.
func (a *Applier) Apply(ctx context.Context, api API, item slack.ItemRef, userID string, saved []string) ([]Result, error) {
	present, err := api.GetReactionsContext(ctx, item, slack.GetReactionsParameters{Full: true})
	if err != nil {
		return nil, fmt.Errorf("get reactions: %w", err)
	}

	missing := Diff(saved, AppliedBy(present, userID))
	if len(missing) == 0 {
		a.logger.Info("all reactions already present",
			"user", userID,
			"channel", item.Channel,
			"message", item.Timestamp,
		)
		return nil, nil
	}

	rl := a.limiter()
	results := make([]Result, 0, len(missing))
	for _, name := range missing {
		if ctx.Err() != nil {
			results = append(results, Result{Name: name, Outcome: Failed, Err: ctx.Err()})
			continue
		}
		rl.Take()

		err := api.AddReactionContext(ctx, name, item)
		res := Result{Name: name, Outcome: Classify(err)}
		switch res.Outcome {
		case Success:
			a.logger.Info("reaction added",
				"user", userID,
				"reaction", name,
				"channel", item.Channel,
				"message", item.Timestamp,
			)
		case AlreadyReacted:
			a.logger.Debug("reaction already present", "user", userID, "reaction", name)
		case Failed:
			res.Err = err
			a.logger.Error("failed to add reaction",
				"user", userID,
				"reaction", name,
				"channel", item.Channel,
				"message", item.Timestamp,
				"error", err,
			)
		}
		results = append(results, res)
	}
	return results, nil
}
