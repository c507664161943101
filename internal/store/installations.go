package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Installation is what an OAuth v2 exchange leaves behind: the bot token of
// the workspace and the delegated token of the user who installed.
type Installation struct {
	AppID               string    `json:"app_id"`
	EnterpriseID        string    `json:"enterprise_id,omitempty"`
	EnterpriseName      string    `json:"enterprise_name,omitempty"`
	TeamID              string    `json:"team_id,omitempty"`
	TeamName            string    `json:"team_name,omitempty"`
	IsEnterpriseInstall bool      `json:"is_enterprise_install"`
	BotToken            string    `json:"bot_token,omitempty"`
	BotUserID           string    `json:"bot_user_id,omitempty"`
	BotScopes           string    `json:"bot_scopes,omitempty"`
	UserID              string    `json:"user_id,omitempty"`
	UserToken           string    `json:"user_token,omitempty"`
	UserScopes          string    `json:"user_scopes,omitempty"`
	InstalledAt         time.Time `json:"installed_at"`
}

// Workspace returns the workspace the installation belongs to.
func (i *Installation) Workspace() Workspace {
	return Workspace{
		EnterpriseID:        i.EnterpriseID,
		TeamID:              i.TeamID,
		IsEnterpriseInstall: i.IsEnterpriseInstall,
	}
}

// Installations persists installation records under
// <clientID>/<enterprise|none>-<team|none>/.
type Installations struct {
	kv       KV
	clientID string
}

// NewInstallations creates an installation store for one Slack app.
func NewInstallations(kv KV, clientID string) *Installations {
	return &Installations{kv: kv, clientID: clientID}
}

// Save writes the bot record, the latest installer record and the
// per-user installer record.
func (s *Installations) Save(ctx context.Context, inst *Installation) error {
	ws := inst.Workspace()

	bot := *inst
	bot.UserID, bot.UserToken, bot.UserScopes = "", "", ""
	if err := s.put(ctx, botKey(s.clientID, ws), &bot); err != nil {
		return err
	}
	if err := s.put(ctx, installerKey(s.clientID, ws), inst); err != nil {
		return err
	}
	if inst.UserID != "" {
		if err := s.put(ctx, userInstallerKey(s.clientID, ws, inst.UserID), inst); err != nil {
			return err
		}
	}
	return nil
}

// FindBot returns the bot record for the workspace, falling back to an
// org-wide install of its enterprise.
func (s *Installations) FindBot(ctx context.Context, ws Workspace) (*Installation, error) {
	return s.find(ctx, ws, func(w Workspace) string { return botKey(s.clientID, w) })
}

// FindInstaller returns the installer record of userID in the workspace,
// falling back to an org-wide install of its enterprise.
func (s *Installations) FindInstaller(ctx context.Context, ws Workspace, userID string) (*Installation, error) {
	return s.find(ctx, ws, func(w Workspace) string { return userInstallerKey(s.clientID, w, userID) })
}

// DeleteInstaller removes the per-user installer records of the given users.
// Users without a record in the workspace are looked up in an org-wide
// install of its enterprise, as FindInstaller does.
func (s *Installations) DeleteInstaller(ctx context.Context, ws Workspace, userIDs ...string) error {
	var errs []error
	for _, id := range userIDs {
		key, err := s.resolve(ctx, ws, func(w Workspace) string { return userInstallerKey(s.clientID, w, id) })
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeleteAll removes every installation record of the workspace, or of the
// org-wide install serving it. Other keys under the same directory, such as
// saved reactions sharing the backend, are left alone.
func (s *Installations) DeleteAll(ctx context.Context, ws Workspace) error {
	botRecord, err := s.resolve(ctx, ws, func(w Workspace) string { return botKey(s.clientID, w) })
	if err != nil {
		return err
	}
	dir := strings.TrimSuffix(botRecord, "bot-latest")

	keys, err := s.kv.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("list installations: %w", err)
	}
	var errs []error
	for _, k := range keys {
		if !isInstallationRecord(strings.TrimPrefix(k, dir)) {
			continue
		}
		if err := s.kv.Delete(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resolve returns the key of the workspace's own record when it exists and
// the org-wide one otherwise.
func (s *Installations) resolve(ctx context.Context, ws Workspace, key func(Workspace) string) (string, error) {
	own := key(ws)
	if ws.IsEnterpriseInstall || ws.EnterpriseID == "" {
		return own, nil
	}
	ok, err := s.kv.Exists(ctx, own)
	if err != nil {
		return "", fmt.Errorf("check installation %s: %w", own, err)
	}
	if ok {
		return own, nil
	}
	return key(Workspace{EnterpriseID: ws.EnterpriseID, IsEnterpriseInstall: true}), nil
}

func isInstallationRecord(name string) bool {
	return name == "bot-latest" || strings.HasPrefix(name, "installer-")
}

func (s *Installations) find(ctx context.Context, ws Workspace, key func(Workspace) string) (*Installation, error) {
	inst, err := s.get(ctx, key(ws))
	if !errors.Is(err, ErrNotFound) || ws.IsEnterpriseInstall || ws.EnterpriseID == "" {
		return inst, err
	}
	org := Workspace{EnterpriseID: ws.EnterpriseID, IsEnterpriseInstall: true}
	return s.get(ctx, key(org))
}

func (s *Installations) get(ctx context.Context, key string) (*Installation, error) {
	raw, err := s.kv.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	var inst Installation
	if err := json.NewDecoder(strings.NewReader(raw)).Decode(&inst); err != nil {
		return nil, fmt.Errorf("decode installation %s: %w", key, err)
	}
	return &inst, nil
}

func (s *Installations) put(ctx context.Context, key string, inst *Installation) error {
	b, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("encode installation: %w", err)
	}
	if err := s.kv.Write(ctx, key, string(b)); err != nil {
		return fmt.Errorf("save installation: %w", err)
	}
	return nil
}
