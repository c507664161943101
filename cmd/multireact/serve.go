package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/ccaruceru/slack-multireact/internal/bot"
	"github.com/ccaruceru/slack-multireact/internal/config"
	"github.com/ccaruceru/slack-multireact/internal/emoji"
	"github.com/ccaruceru/slack-multireact/internal/emojidex"
	"github.com/ccaruceru/slack-multireact/internal/lifecycle"
	"github.com/ccaruceru/slack-multireact/internal/logging"
	"github.com/ccaruceru/slack-multireact/internal/oauth"
	"github.com/ccaruceru/slack-multireact/internal/reaction"
	"github.com/ccaruceru/slack-multireact/internal/server"
	islack "github.com/ccaruceru/slack-multireact/internal/slack"
	"github.com/ccaruceru/slack-multireact/internal/store"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack app",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger, err := logging.New(os.Stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			if code := serve(cfg, logger); code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 0, "HTTP port (default 8080, or $PORT)")
	flags.String("mode", "", "event transport: http or socket")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	v.BindPFlag("server.port", flags.Lookup("port"))
	v.BindPFlag("slack.mode", flags.Lookup("mode"))
	v.BindPFlag("log.level", flags.Lookup("log-level"))
	return cmd
}

// serve runs the app until a signal arrives and returns the exit code.
func serve(cfg *config.Config, logger *slog.Logger) int {
	mgr := lifecycle.NewManager(shutdownConfig(cfg.Server.ShutdownTimeout.Duration), logger.With("component", "lifecycle"))

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	mgr.OnShutdown("slack handlers", a.waitHandlers)
	mgr.OnShutdown("store", func(context.Context) error { return a.close() })

	logger.Info("multireact starting",
		"version", version,
		"mode", cfg.Slack.Mode,
		"store", cfg.Store.Backend,
		"command", cfg.Slack.Command,
	)
	return mgr.Run(a.run)
}

// shutdownConfig gives the server d to drain and the hooks d after that.
func shutdownConfig(d time.Duration) lifecycle.ShutdownConfig {
	sc := lifecycle.DefaultShutdownConfig()
	if d > 0 {
		sc.GracePeriod = d + 5*time.Second
		sc.ForceTimeout = d
	}
	return sc
}

// app is the assembled process: stores, caches, transports and the HTTP
// server.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	cache  *emoji.Cache
	server *server.Server
	events *islack.EventsHandler  // http mode
	socket *islack.SocketListener // socket mode
	close  func() error
}

// kvs holds the key-value namespaces used by the app.
type kvs struct {
	reactions     store.KV
	installations store.KV
	states        store.KV
	ready         server.Pinger
	close         func() error
}

func openKVs(ctx context.Context, cfg config.Store) (*kvs, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := store.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &kvs{
			reactions:     store.WithPrefix(db, "reactions/"),
			installations: store.WithPrefix(db, "installations/"),
			states:        store.WithPrefix(db, "states/"),
			ready:         db,
			close:         db.Close,
		}, nil

	case config.BackendGCS:
		client, err := storage.NewClient(ctx, option.WithUserAgent("slack-multireact/"+version))
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		return gcsKVs(func(bucket string) store.KV { return store.NewGCS(client, bucket) }, cfg, client.Close), nil

	default:
		mem := store.NewMemory()
		return &kvs{
			reactions:     store.WithPrefix(mem, "reactions/"),
			installations: store.WithPrefix(mem, "installations/"),
			states:        store.WithPrefix(mem, "states/"),
			close:         func() error { return nil },
		}, nil
	}
}

// gcsKVs lays the namespaces out over buckets. Namespaces sharing a bucket
// are kept apart by key prefix.
func gcsKVs(bucket func(name string) store.KV, cfg config.Store, closeFn func() error) *kvs {
	reactions := bucket(cfg.Bucket)
	installations := bucket(cfg.InstallationBucket)
	if cfg.InstallationBucket == cfg.Bucket {
		reactions = store.WithPrefix(reactions, "reactions/")
		installations = store.WithPrefix(installations, "installations/")
	}
	return &kvs{
		reactions:     reactions,
		installations: installations,
		states:        store.WithPrefix(bucket(cfg.StateBucket), "states/"),
		close:         closeFn,
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	kv, err := openKVs(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reactions := store.NewReactions(kv.reactions, cfg.Slack.ClientID)
	installations := store.NewInstallations(kv.installations, cfg.Slack.ClientID)
	states := store.NewStateStore(kv.states)

	dexOpts := []emojidex.Option{emojidex.WithLogger(logger.With("component", "emojidex"))}
	if cfg.Emoji.StandardURL != "" {
		dexOpts = append(dexOpts, emojidex.WithURL(cfg.Emoji.StandardURL))
	}
	if !cfg.Emoji.DisableBundled {
		dexOpts = append(dexOpts, emojidex.WithFallback(&emojidex.Bundled{}))
	}

	cacheOpts := []emoji.CacheOption{
		emoji.WithTTL(cfg.Emoji.TTL.Duration),
		emoji.WithCacheLogger(logger.With("component", "emoji")),
	}
	if cfg.Emoji.BackgroundRefresh {
		cacheOpts = append(cacheOpts, emoji.WithBackgroundRefresh())
	}
	cache := emoji.NewCache(emojidex.NewClient(dexOpts...), cacheOpts...)

	clientOpts := []islack.ClientsOption{islack.WithSlackLogger(logger.With("component", "slack"))}
	if cfg.Slack.APIURL != "" {
		clientOpts = append(clientOpts, islack.WithAPIURL(cfg.Slack.APIURL))
	}
	clients := islack.NewClients(clientOpts...)

	applier := reaction.NewApplier(
		reaction.WithPacing(cfg.Reactions.Rate, cfg.Reactions.Per.Duration),
		reaction.WithLogger(logger.With("component", "reaction")),
	)

	b := bot.New(reactions, installations, cache, bot.NewPlatform(clients),
		bot.WithCommand(cfg.Slack.Command),
		bot.WithCallbackID(cfg.Slack.CallbackID),
		bot.WithAppURL(cfg.Server.PublicURL),
		bot.WithApplier(applier),
		bot.WithLogger(logger.With("component", "bot")),
	)

	oauthOpts := []oauth.Option{
		oauth.WithHTTPClient(clients.HTTPClient()),
		oauth.WithLogger(logger.With("component", "oauth")),
	}
	if cfg.Server.PublicURL != "" {
		oauthOpts = append(oauthOpts, oauth.WithRedirectURL(cfg.Server.PublicURL+"/slack/oauth_redirect"))
	}
	installer := oauth.NewHandler(cfg.Slack.ClientID, cfg.Slack.ClientSecret, states, installations, oauthOpts...)

	a := &app{cfg: cfg, logger: logger, cache: cache, close: kv.close}

	transportLog := logger.With("component", "transport")
	routes := server.Routes{
		Install:       installer.Install,
		OAuthRedirect: installer.Redirect,
		ImageDir:      cfg.Server.ImageDir,
		Ready:         kv.ready,
	}
	switch cfg.Slack.Mode {
	case config.ModeSocket:
		a.socket = islack.NewSocketListener(cfg.Slack.AppToken, b, clients, transportLog)
	default:
		a.events = islack.NewEventsHandler(cfg.Slack.SigningSecret, b, islack.WithEventsLogger(transportLog))
		routes.Events = a.events
	}

	a.server = server.New(":"+strconv.Itoa(cfg.Server.Port), routes, logger.With("component", "server"))
	return a, nil
}

// run serves until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.server.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.cache.Run(gctx)
	})
	if a.socket != nil {
		g.Go(func() error {
			err := a.socket.Listen(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("socket mode: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// waitHandlers waits for acknowledged Slack requests still being handled.
func (a *app) waitHandlers(ctx context.Context) error {
	if a.socket != nil {
		return a.socket.Wait(ctx)
	}
	return a.events.Wait(ctx)
}
