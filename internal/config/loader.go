package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// KeyConfigFile is the viper key holding the config file path.
const KeyConfigFile = "config"

// envPrefix prefixes the generated environment variable of every key.
const envPrefix = "MULTIREACT"

// envVarPattern matches ${VAR_NAME} references in string values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// field maps a viper key to the config value it overrides. env lists extra
// environment variable names accepted besides the generated MULTIREACT_ one.
type field struct {
	key string
	env []string
	ptr any
}

func fields(c *Config) []field {
	return []field{
		{"server.port", []string{"PORT"}, &c.Server.Port},
		{"server.public_url", nil, &c.Server.PublicURL},
		{"server.image_dir", nil, &c.Server.ImageDir},
		{"server.shutdown_timeout", nil, &c.Server.ShutdownTimeout},

		{"slack.client_id", []string{"SLACK_CLIENT_ID"}, &c.Slack.ClientID},
		{"slack.client_secret", []string{"SLACK_CLIENT_SECRET"}, &c.Slack.ClientSecret},
		{"slack.signing_secret", []string{"SLACK_SIGNING_SECRET"}, &c.Slack.SigningSecret},
		{"slack.app_token", []string{"SLACK_APP_TOKEN"}, &c.Slack.AppToken},
		{"slack.mode", nil, &c.Slack.Mode},
		{"slack.command", nil, &c.Slack.Command},
		{"slack.callback_id", nil, &c.Slack.CallbackID},
		{"slack.api_url", nil, &c.Slack.APIURL},

		{"store.backend", nil, &c.Store.Backend},
		{"store.path", nil, &c.Store.Path},
		{"store.bucket", []string{"USER_DATA_BUCKET_NAME"}, &c.Store.Bucket},
		{"store.installation_bucket", []string{"SLACK_INSTALLATION_BUCKET"}, &c.Store.InstallationBucket},
		{"store.state_bucket", []string{"SLACK_STATE_BUCKET"}, &c.Store.StateBucket},

		{"emoji.ttl", nil, &c.Emoji.TTL},
		{"emoji.background_refresh", nil, &c.Emoji.BackgroundRefresh},
		{"emoji.standard_url", nil, &c.Emoji.StandardURL},
		{"emoji.disable_bundled", nil, &c.Emoji.DisableBundled},

		{"reactions.rate", nil, &c.Reactions.Rate},
		{"reactions.per", nil, &c.Reactions.Per},

		{"log.level", []string{"LOG_LEVEL"}, &c.Log.Level},
		{"log.format", nil, &c.Log.Format},
	}
}

// envName returns the generated environment variable of a key, e.g.
// MULTIREACT_SLACK_CLIENT_ID for slack.client_id.
func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// BindEnv registers the environment variables of every config key on v.
func BindEnv(v *viper.Viper) error {
	if err := v.BindEnv(KeyConfigFile, envName(KeyConfigFile)); err != nil {
		return err
	}
	for _, f := range fields(&Config{}) {
		names := append([]string{envName(f.key)}, f.env...)
		if err := v.BindEnv(append([]string{f.key}, names...)...); err != nil {
			return fmt.Errorf("bind %s: %w", f.key, err)
		}
	}
	return nil
}

// Load reads the config file named by KeyConfigFile, if any, applies the
// values set in v (flags and environment), fills in defaults and validates
// the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	if path := v.GetString(KeyConfigFile); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := applyOverrides(v, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// loadFile reads a JSON or TOML file, chosen by extension, resolves ${VAR}
// references, and unmarshals it into dest.
func loadFile(path string, dest *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	resolved := resolveEnvVars(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(resolved, dest); err != nil {
			return fmt.Errorf("parse TOML: %w", err)
		}
	default:
		if err := json.Unmarshal([]byte(resolved), dest); err != nil {
			return fmt.Errorf("parse JSON: %w", err)
		}
	}
	return nil
}

// resolveEnvVars replaces all ${VAR_NAME} patterns in s with the
// corresponding environment variable values. Unset variables resolve to "".
func resolveEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1] // strip ${ and }
		return os.Getenv(varName)
	})
}

func applyOverrides(v *viper.Viper, cfg *Config) error {
	for _, f := range fields(cfg) {
		if !v.IsSet(f.key) {
			continue
		}
		switch p := f.ptr.(type) {
		case *string:
			*p = v.GetString(f.key)
		case *int:
			*p = v.GetInt(f.key)
		case *bool:
			*p = v.GetBool(f.key)
		case *Duration:
			if err := p.UnmarshalText([]byte(v.GetString(f.key))); err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ImageDir == "" {
		cfg.Server.ImageDir = "resources/img"
	}
	if cfg.Server.ShutdownTimeout.Duration == 0 {
		cfg.Server.ShutdownTimeout.Duration = 10 * time.Second
	}
	cfg.Server.PublicURL = strings.TrimSuffix(cfg.Server.PublicURL, "/")

	if cfg.Slack.Mode == "" {
		cfg.Slack.Mode = ModeHTTP
	}
	if cfg.Slack.Command == "" {
		cfg.Slack.Command = "/multireact"
	}
	if cfg.Slack.CallbackID == "" {
		cfg.Slack.CallbackID = "add_reactions"
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendSQLite
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join("data", "multireact.db")
	}
	if cfg.Store.InstallationBucket == "" {
		cfg.Store.InstallationBucket = cfg.Store.Bucket
	}
	if cfg.Store.StateBucket == "" {
		cfg.Store.StateBucket = cfg.Store.InstallationBucket
	}

	if cfg.Emoji.TTL.Duration == 0 {
		cfg.Emoji.TTL.Duration = 60 * time.Second
	}

	// A negative rate disables pacing.
	if cfg.Reactions.Rate == 0 {
		cfg.Reactions.Rate = 5
	}
	if cfg.Reactions.Per.Duration == 0 {
		cfg.Reactions.Per.Duration = time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "auto"
	}
}

// validate checks that all required fields are present and consistent.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Slack.ClientID == "" {
		errs = append(errs, "slack.client_id is required")
	}
	if cfg.Slack.ClientSecret == "" {
		errs = append(errs, "slack.client_secret is required")
	}

	switch cfg.Slack.Mode {
	case ModeHTTP:
		if cfg.Slack.SigningSecret == "" {
			errs = append(errs, "slack.signing_secret is required in http mode")
		}
	case ModeSocket:
		if !strings.HasPrefix(cfg.Slack.AppToken, "xapp-") {
			errs = append(errs, "slack.app_token (xapp-...) is required in socket mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("slack.mode %q is not one of http, socket", cfg.Slack.Mode))
	}
	if !strings.HasPrefix(cfg.Slack.Command, "/") {
		errs = append(errs, "slack.command must start with /")
	}

	switch cfg.Store.Backend {
	case BackendSQLite, BackendMemory:
	case BackendGCS:
		if cfg.Store.Bucket == "" {
			errs = append(errs, "store.bucket is required for the gcs backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q is not one of sqlite, gcs, memory", cfg.Store.Backend))
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", cfg.Server.Port))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "auto", "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not one of auto, json, text", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid fields:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
