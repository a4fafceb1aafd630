// Package bot is the composition root: it owns the registry, module cache,
// event bus and loaders, and bridges the Discord session onto the bus.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/guild-warden/internal/builtin"
	"github.com/keshon/guild-warden/internal/config"
	"github.com/keshon/guild-warden/internal/events"
	"github.com/keshon/guild-warden/internal/jobs"
	"github.com/keshon/guild-warden/internal/loader"
	"github.com/keshon/guild-warden/internal/metrics"
	"github.com/keshon/guild-warden/internal/permission"
	"github.com/keshon/guild-warden/internal/plugin"
	"github.com/keshon/guild-warden/internal/plugin/lua"
	"github.com/keshon/guild-warden/internal/plugin/manifest"
	"github.com/keshon/guild-warden/internal/storage"
	"github.com/keshon/guild-warden/internal/watch"
)

// Bot implements plugin.Client for every loaded plugin.
type Bot struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *storage.Storage
	metrics  *metrics.Metrics
	registry *plugin.Registry
	resolver *permission.Resolver
	cache    *plugin.Cache
	bus      *events.Bus
	commands *loader.Commands
	events   *loader.Events
	jobs     *jobs.Manager

	mu      sync.RWMutex
	session *discordgo.Session
}

// New wires a bot. store and m may be nil.
func New(cfg *config.Config, store *storage.Storage, m *metrics.Metrics, logger zerolog.Logger) *Bot {
	b := &Bot{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		metrics:  m,
		registry: plugin.NewRegistry(),
		resolver: permission.NewResolver(cfg.PermLevels),
		cache:    plugin.NewCache(),
		bus:      events.New(logger.With().Str("component", "events").Logger()),
		jobs:     jobs.NewManager(logger.With().Str("component", "jobs").Logger()),
	}

	b.cache.Register(lua.Ext, lua.NewImporter())
	manifests := manifest.NewImporter(builtin.Catalog())
	for _, ext := range manifest.Extensions {
		b.cache.Register(ext, manifests)
	}

	b.commands = loader.NewCommands(b, b.cache,
		loader.WithLogger(logger.With().Str("component", "commands").Logger()),
		loader.WithMetrics(m),
		loader.WithIgnore(cfg.CommandsIgnore...),
	)
	b.events = loader.NewEvents(b, b.cache, b.bus,
		loader.WithLogger(logger.With().Str("component", "events").Logger()),
		loader.WithMetrics(m),
	)
	return b
}

func (b *Bot) Config() *config.Config            { return b.cfg }
func (b *Bot) Commands() *plugin.Registry        { return b.registry }
func (b *Bot) Loader() plugin.CommandLoader      { return b.commands }
func (b *Bot) Permissions() *permission.Resolver { return b.resolver }
func (b *Bot) Store() *storage.Storage           { return b.store }
func (b *Bot) Metrics() *metrics.Metrics         { return b.metrics }
func (b *Bot) Logger() zerolog.Logger            { return b.logger }

// Platform returns the live session, or nil before Open and after Close.
func (b *Bot) Platform() plugin.Platform {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return nil
	}
	return b.session
}

// Bus returns the event bus.
func (b *Bot) Bus() *events.Bus { return b.bus }

// CommandLoader returns the command loader.
func (b *Bot) CommandLoader() *loader.Commands { return b.commands }

// EventLoader returns the event loader.
func (b *Bot) EventLoader() *loader.Events { return b.events }

// Init loads every command and binds every event handler. A directory that
// cannot be walked is fatal; per-file failures are only reported, unless
// strict events are configured.
func (b *Bot) Init(ctx context.Context) (cmds, evs *loader.Report, err error) {
	cmds, err = b.commands.LoadAll(ctx, b.cfg.CommandsDir)
	if err != nil {
		return cmds, nil, err
	}
	evs, err = b.events.BindAll(ctx, b.cfg.EventsDir)
	if err != nil {
		return cmds, evs, err
	}
	if b.cfg.StrictEvents && evs.Failed() > 0 {
		return cmds, evs, fmt.Errorf("event handlers failed to bind: %w", evs.Err())
	}
	return cmds, evs, nil
}

// Run loads plugins, connects to Discord and serves until ctx is done, then
// shuts every command down. Plugins loaded before a startup failure are
// shut down before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	cmds, evs, err := b.Init(ctx)
	if err != nil {
		return b.abort(err)
	}
	b.logger.Info().
		Int("commands", len(cmds.Loaded)).
		Int("command_failures", cmds.Failed()).
		Int("events", len(evs.Loaded)).
		Int("event_failures", evs.Failed()).
		Msg("plugins loaded")

	if b.cfg.MetricsAddr != "" && b.metrics != nil {
		if err := b.jobs.Start(ctx, "metrics", func(ctx context.Context) error {
			return b.metrics.Serve(ctx, b.cfg.MetricsAddr, b.logger)
		}); err != nil {
			return b.abort(err)
		}
	}
	if b.cfg.WatchCommands {
		w := watch.New(b.cfg.CommandsDir, b.commands, b.registry, watch.DefaultDebounce, b.logger)
		if err := b.jobs.Start(ctx, "watch", w.Run); err != nil {
			return b.abort(err)
		}
	}

	if err := b.open(ctx); err != nil {
		return b.abort(err)
	}

	<-ctx.Done()
	b.logger.Info().Str("jobs", b.jobs.Status()).Msg("shutdown signal received, cleaning up")
	b.jobs.StopAll()
	b.close()
	return b.shutdown()
}

// abort stops background jobs and shuts plugins down after a startup
// failure, returning err.
func (b *Bot) abort(err error) error {
	b.jobs.StopAll()
	if serr := b.shutdown(); serr != nil {
		b.logger.Warn().Err(serr).Msg("shutdown after failed start")
	}
	return err
}

func (b *Bot) open(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	b.bridge(ctx, dg)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	b.mu.Lock()
	b.session = dg
	b.mu.Unlock()
	return nil
}

func (b *Bot) close() {
	b.mu.Lock()
	dg := b.session
	b.session = nil
	b.mu.Unlock()
	if dg != nil {
		if err := dg.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to close Discord session")
		}
	}
}

// shutdown unloads every command, running shutdown hooks within the
// configured timeout, and unbinds all event handlers.
func (b *Bot) shutdown() error {
	timeout := b.cfg.HookTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, desc := range b.registry.All() {
		if err := b.commands.Unload(ctx, "", desc.Name); err != nil {
			errs = append(errs, err)
			b.logger.Warn().Err(err).Str("command", desc.Name).Msg("shutdown failed")
		}
	}
	n := b.events.UnbindAll()
	b.logger.Info().Int("handlers", n).Msg("event handlers unbound")
	return errors.Join(errs...)
}

// Shutdown releases plugins loaded by Init without a session, e.g. for
// offline checks.
func (b *Bot) Shutdown() error { return b.shutdown() }
