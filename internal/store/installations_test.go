package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInstallations_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	s := NewInstallations(kv, "111.222")

	inst := &Installation{
		AppID:       "A1",
		TeamID:      "T1",
		BotToken:    "xoxb-1",
		BotUserID:   "UBOT",
		UserID:      "U1",
		UserToken:   "xoxp-1",
		UserScopes:  "reactions:read,reactions:write",
		InstalledAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.Save(ctx, inst); err != nil {
		t.Fatalf("Save: %v", err)
	}

	keys, _ := kv.List(ctx, "")
	want := []string{
		"111.222/none-T1/bot-latest",
		"111.222/none-T1/installer-U1-latest",
		"111.222/none-T1/installer-latest",
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %q, want %q", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	bot, err := s.FindBot(ctx, Workspace{TeamID: "T1"})
	if err != nil {
		t.Fatalf("FindBot: %v", err)
	}
	if bot.BotToken != "xoxb-1" || bot.UserToken != "" {
		t.Errorf("bot record = %+v", bot)
	}

	installer, err := s.FindInstaller(ctx, Workspace{TeamID: "T1"}, "U1")
	if err != nil {
		t.Fatalf("FindInstaller: %v", err)
	}
	if installer.UserToken != "xoxp-1" {
		t.Errorf("installer token = %q", installer.UserToken)
	}

	if _, err := s.FindInstaller(ctx, Workspace{TeamID: "T1"}, "U2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown installer = %v, want ErrNotFound", err)
	}
}

func TestInstallations_EnterpriseFallback(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	s := NewInstallations(kv, "c")

	s.Save(ctx, &Installation{
		EnterpriseID:        "E1",
		TeamID:              "T1",
		IsEnterpriseInstall: true,
		BotToken:            "xoxb-org",
		UserID:              "U1",
		UserToken:           "xoxp-org",
	})

	if ok, _ := kv.Exists(ctx, "c/E1-none/bot-latest"); !ok {
		t.Fatal("org-wide install should be stored without team")
	}

	bot, err := s.FindBot(ctx, Workspace{EnterpriseID: "E1", TeamID: "T9"})
	if err != nil {
		t.Fatalf("FindBot via enterprise: %v", err)
	}
	if bot.BotToken != "xoxb-org" {
		t.Errorf("bot token = %q", bot.BotToken)
	}

	if _, err := s.FindBot(ctx, Workspace{TeamID: "T9"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("workspace outside the enterprise = %v, want ErrNotFound", err)
	}
}

func TestInstallations_Delete(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	s := NewInstallations(kv, "c")
	ws := Workspace{TeamID: "T1"}

	s.Save(ctx, &Installation{TeamID: "T1", BotToken: "b", UserID: "U1", UserToken: "p1"})
	s.Save(ctx, &Installation{TeamID: "T1", BotToken: "b", UserID: "U2", UserToken: "p2"})
	s.Save(ctx, &Installation{TeamID: "T2", BotToken: "b2", UserID: "U3", UserToken: "p3"})

	if err := s.DeleteInstaller(ctx, ws, "U1"); err != nil {
		t.Fatalf("DeleteInstaller: %v", err)
	}
	if _, err := s.FindInstaller(ctx, ws, "U1"); !errors.Is(err, ErrNotFound) {
		t.Error("U1 installer should be gone")
	}
	if _, err := s.FindInstaller(ctx, ws, "U2"); err != nil {
		t.Errorf("U2 installer should remain: %v", err)
	}

	if err := s.DeleteAll(ctx, ws); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if keys, _ := kv.List(ctx, "c/none-T1/"); len(keys) != 0 {
		t.Errorf("T1 records left: %q", keys)
	}
	if _, err := s.FindBot(ctx, Workspace{TeamID: "T2"}); err != nil {
		t.Errorf("other workspace should be untouched: %v", err)
	}
}

func TestInstallations_DeleteAllKeepsReactionsOnSharedBackend(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	inst := NewInstallations(kv, "c")
	reactions := NewReactions(kv, "c")
	ws := Workspace{TeamID: "T1"}

	inst.Save(ctx, &Installation{TeamID: "T1", BotToken: "b", UserID: "U1", UserToken: "p1"})
	if err := reactions.Save(ctx, ws, "U2", []string{"wave", "smile"}); err != nil {
		t.Fatal(err)
	}

	if err := inst.DeleteAll(ctx, ws); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}

	if _, err := inst.FindBot(ctx, ws); !errors.Is(err, ErrNotFound) {
		t.Error("bot record should be gone")
	}
	codes, ok, err := reactions.Get(ctx, ws, "U2")
	if err != nil || !ok || len(codes) != 2 {
		t.Errorf("saved reactions after uninstall = %q, %v, %v", codes, ok, err)
	}
}

func TestInstallations_DeleteOrgWideInstall(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	s := NewInstallations(kv, "c")
	ws := Workspace{EnterpriseID: "E1", TeamID: "T1"}

	s.Save(ctx, &Installation{EnterpriseID: "E1", IsEnterpriseInstall: true, BotToken: "xoxb-org", UserID: "U1", UserToken: "xoxp-1"})
	s.Save(ctx, &Installation{EnterpriseID: "E1", IsEnterpriseInstall: true, BotToken: "xoxb-org", UserID: "U2", UserToken: "xoxp-2"})

	if err := s.DeleteInstaller(ctx, ws, "U1"); err != nil {
		t.Fatalf("DeleteInstaller: %v", err)
	}
	if _, err := s.FindInstaller(ctx, ws, "U1"); !errors.Is(err, ErrNotFound) {
		t.Error("revoked org-wide installer should be gone")
	}
	if _, err := s.FindInstaller(ctx, ws, "U2"); err != nil {
		t.Errorf("U2 installer should remain: %v", err)
	}

	if err := s.DeleteAll(ctx, ws); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if keys, _ := kv.List(ctx, "c/E1-none/"); len(keys) != 0 {
		t.Errorf("org records left: %q", keys)
	}
}
