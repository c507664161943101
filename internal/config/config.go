// Package config handles loading and validation of the multireact
// configuration file and its environment overrides.
package config

import (
	"fmt"
	"time"
)

// Transport modes.
const (
	ModeHTTP   = "http"
	ModeSocket = "socket"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config is the complete process configuration.
type Config struct {
	Server    Server    `json:"server" toml:"server"`
	Slack     Slack     `json:"slack" toml:"slack"`
	Store     Store     `json:"store" toml:"store"`
	Emoji     Emoji     `json:"emoji" toml:"emoji"`
	Reactions Reactions `json:"reactions" toml:"reactions"`
	Log       Log       `json:"log" toml:"log"`
}

type Server struct {
	Port            int      `json:"port" toml:"port"`                       // default 8080
	PublicURL       string   `json:"publicURL" toml:"public_url"`            // serves /img for the Home tab
	ImageDir        string   `json:"imageDir" toml:"image_dir"`              // default "resources/img"
	ShutdownTimeout Duration `json:"shutdownTimeout" toml:"shutdown_timeout"` // default 10s
}

type Slack struct {
	ClientID      string `json:"clientID" toml:"client_id"`
	ClientSecret  string `json:"clientSecret" toml:"client_secret"`
	SigningSecret string `json:"signingSecret" toml:"signing_secret"` // http mode
	AppToken      string `json:"appToken" toml:"app_token"`           // xapp-, socket mode
	Mode          string `json:"mode" toml:"mode"`                    // "http" (default) or "socket"
	Command       string `json:"command" toml:"command"`              // default "/multireact"
	CallbackID    string `json:"callbackID" toml:"callback_id"`       // default "add_reactions"
	APIURL        string `json:"apiURL" toml:"api_url"`
}

// Store selects the persistence backend. With GCS, reactions, installations
// and OAuth state may live in separate buckets; empty ones share Bucket.
type Store struct {
	Backend            string `json:"backend" toml:"backend"` // default "sqlite"
	Path               string `json:"path" toml:"path"`       // sqlite database file
	Bucket             string `json:"bucket" toml:"bucket"`
	InstallationBucket string `json:"installationBucket" toml:"installation_bucket"`
	StateBucket        string `json:"stateBucket" toml:"state_bucket"`
}

type Emoji struct {
	TTL               Duration `json:"ttl" toml:"ttl"` // default 60s
	BackgroundRefresh bool     `json:"backgroundRefresh" toml:"background_refresh"`
	StandardURL       string   `json:"standardURL" toml:"standard_url"`
	DisableBundled    bool     `json:"disableBundled" toml:"disable_bundled"`
}

// Reactions paces reactions.add calls: Rate calls per Per.
type Reactions struct {
	Rate int      `json:"rate" toml:"rate"` // default 5
	Per  Duration `json:"per" toml:"per"`   // default 1s
}

type Log struct {
	Level  string `json:"level" toml:"level"`   // debug, info, warn, error
	Format string `json:"format" toml:"format"` // auto, json, text
}

// Duration is a time.Duration written as a string such as "90s" in config
// files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
