package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ccaruceru/slack-multireact/internal/emoji"
)

// Reactions stores each user's saved reaction list as one space-joined
// value. A save always replaces the whole list.
type Reactions struct {
	kv       KV
	clientID string
}

// NewReactions creates a reaction list store for one Slack app.
func NewReactions(kv KV, clientID string) *Reactions {
	return &Reactions{kv: kv, clientID: clientID}
}

// Get returns the user's saved list. ok is false when none was saved.
func (r *Reactions) Get(ctx context.Context, ws Workspace, userID string) (codes []string, ok bool, err error) {
	key := UserKey(r.clientID, ws.EnterpriseID, ws.TeamID, userID)
	value, err := r.kv.Read(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read reactions: %w", err)
	}
	codes = emoji.Split(value)
	return codes, len(codes) > 0, nil
}

// Save replaces the user's saved list.
func (r *Reactions) Save(ctx context.Context, ws Workspace, userID string, codes []string) error {
	key := UserKey(r.clientID, ws.EnterpriseID, ws.TeamID, userID)
	if err := r.kv.Write(ctx, key, emoji.Join(codes)); err != nil {
		return fmt.Errorf("save reactions: %w", err)
	}
	return nil
}

// Delete removes the saved lists of the given users.
func (r *Reactions) Delete(ctx context.Context, ws Workspace, userIDs ...string) error {
	var errs []error
	for _, id := range userIDs {
		key := UserKey(r.clientID, ws.EnterpriseID, ws.TeamID, id)
		if err := r.kv.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
