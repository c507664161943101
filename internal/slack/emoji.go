package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/slack-go/slack"

	"github.com/ccaruceru/slack-multireact/internal/emoji"
)

const (
	// maxListAttempts bounds emoji.list retries after rate limiting or network
	// errors.
	maxListAttempts = 3
	// maxRetryWait is the longest Retry-After honored in place. Longer ones
	// end the attempt and are reported as emoji.RetryLaterError.
	maxRetryWait = 2 * time.Second
)

// emojiListResponse is the emoji.list payload with include_categories=true.
// slack-go's GetEmojiContext does not request categories.
type emojiListResponse struct {
	OK         bool              `json:"ok"`
	Error      string            `json:"error"`
	Emoji      map[string]string `json:"emoji"`
	Categories []struct {
		Name       string   `json:"name"`
		EmojiNames []string `json:"emoji_names"`
	} `json:"categories"`
}

// EmojiDirectory lists a workspace's emoji through emoji.list. It implements
// emoji.Directory.
type EmojiDirectory struct {
	httpClient *http.Client
	apiURL     string
	token      string
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

var _ emoji.Directory = (*EmojiDirectory)(nil)

// ListEmoji returns the workspace's custom emoji names and built-in emoji
// categories. Transport errors are retried with exponential backoff and
// short rate limits after their Retry-After; Slack API errors and long rate
// limits are not retried.
func (d *EmojiDirectory) ListEmoji(ctx context.Context) (*emoji.Listing, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), maxListAttempts-1), ctx)

	var resp *emojiListResponse
	err := backoff.RetryNotify(func() error {
		var err error
		resp, err = d.list(ctx)
		var rle *slack.RateLimitedError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &rle):
			if rle.RetryAfter > maxRetryWait {
				return backoff.Permanent(err)
			}
			return waitRetryAfter(ctx, rle.RetryAfter, err)
		case errors.As(err, new(slack.SlackErrorResponse)):
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		default:
			return err
		}
	}, b, func(err error, next time.Duration) {
		d.logger.Warn("retrying emoji.list", "error", err, "delay", next.String())
	})
	if err != nil {
		var rle *slack.RateLimitedError
		if errors.As(err, &rle) {
			return nil, &emoji.RetryLaterError{After: rle.RetryAfter, Err: err}
		}
		return nil, err
	}

	listing := &emoji.Listing{
		Custom:     make([]string, 0, len(resp.Emoji)),
		Categories: make([]emoji.Category, 0, len(resp.Categories)),
	}
	for name := range resp.Emoji {
		listing.Custom = append(listing.Custom, name)
	}
	for _, c := range resp.Categories {
		listing.Categories = append(listing.Categories, emoji.Category{Name: c.Name, EmojiNames: c.EmojiNames})
	}
	return listing, nil
}

// waitRetryAfter sleeps for the delay Slack asked for and returns err so the
// call is retried.
func waitRetryAfter(ctx context.Context, delay time.Duration, err error) error {
	if delay <= 0 {
		return err
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return backoff.Permanent(ctx.Err())
	case <-t.C:
		return err
	}
}

func (d *EmojiDirectory) list(ctx context.Context) (*emojiListResponse, error) {
	form := url.Values{"include_categories": {"true"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+"emoji.list", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+d.token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emoji.list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, &slack.RateLimitedError{RetryAfter: time.Duration(secs) * time.Second}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("emoji.list: unexpected status %s", resp.Status)
	}

	var body emojiListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode emoji.list: %w", err)
	}
	if !body.OK {
		return nil, slack.SlackErrorResponse{Err: body.Error}
	}
	return &body, nil
}
