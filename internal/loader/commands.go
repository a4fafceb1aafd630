// Package loader discovers plugin files on disk, constructs them through the
// module cache and wires them into the bot: commands into the registry,
// event handlers onto the event bus.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/keshon/guild-warden/internal/plugin"
)

// Commands loads, unloads and reloads command plugins.
type Commands struct {
	client plugin.Client
	cache  *plugin.Cache
	opts   options

	mu   sync.Mutex
	busy map[string]bool
}

// NewCommands returns a loader registering into client.Commands().
func NewCommands(client plugin.Client, cache *plugin.Cache, opts ...Option) *Commands {
	return &Commands{
		client: client,
		cache:  cache,
		opts:   buildOptions(opts),
		busy:   make(map[string]bool),
	}
}

// LoadAll walks root recursively and loads every file with a registered
// importer. Per-file failures are collected in the report; an error is
// returned only when the walk itself fails.
func (l *Commands) LoadAll(ctx context.Context, root string) (*Report, error) {
	report := &Report{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !l.cache.Handles(path) || l.ignored(root, path) {
			return nil
		}

		report.Attempted++
		desc, err := l.load(ctx, filepath.Dir(path), d.Name())
		if err != nil {
			report.Failures = append(report.Failures, err)
			l.opts.logger.Warn().Err(err).Str("path", path).Msg("command failed to load")
			return nil
		}
		report.Loaded = append(report.Loaded, desc.Name)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("walk commands directory %s: %w", root, err)
	}

	l.opts.logger.Info().
		Int("loaded", len(report.Loaded)).
		Int("failed", report.Failed()).
		Str("root", root).
		Msg("commands loaded")
	return report, nil
}

// Load imports dir/file, constructs the command, runs its Init hook and
// registers it. Failures are returned as *LoadError.
func (l *Commands) Load(ctx context.Context, dir, file string) error {
	_, err := l.load(ctx, dir, file)
	return err
}

func (l *Commands) load(ctx context.Context, dir, file string) (*plugin.Descriptor, error) {
	path := plugin.CanonicalPath(filepath.Join(dir, file))

	desc, err := l.construct(ctx, path)
	l.opts.metrics.ObserveLoad("command", err)
	if err != nil {
		// A failed import must not pin a broken module in the cache.
		l.cache.Evict(path)
		return nil, &LoadError{File: file, Path: path, Err: err}
	}
	l.opts.metrics.SetCommands(l.client.Commands().Len())
	return desc, nil
}

func (l *Commands) construct(ctx context.Context, path string) (*plugin.Descriptor, error) {
	var (
		cmd plugin.Command
		gen uint64
	)
	err := guard(func() error {
		mod, g, err := l.cache.Import(path)
		if err != nil {
			return err
		}
		inst, err := mod.Instantiate(l.client)
		if err != nil {
			return err
		}
		c, ok := inst.(plugin.Command)
		if !ok {
			closeInstance(inst)
			return fmt.Errorf("%w (got %T)", ErrNotCommand, inst)
		}
		cmd, gen = c, g
		return nil
	})
	if err != nil {
		return nil, err
	}
	registered := false
	defer func() {
		if !registered {
			closeInstance(cmd)
		}
	}()

	name := strings.TrimSpace(cmd.Help().Name)
	if name == "" {
		return nil, errors.New("command declares no name")
	}
	conf := cmd.Conf()
	if conf == nil {
		return nil, errors.New("command declares no conf")
	}
	conf.Location = filepath.Dir(path)

	if !l.acquire(name) {
		return nil, ErrBusy
	}
	defer l.release(name)

	if init, ok := cmd.(plugin.Initializer); ok {
		if err := guard(func() error { return init.Init(ctx, l.client) }); err != nil {
			return nil, fmt.Errorf("init: %w", err)
		}
	}

	registry := l.client.Commands()
	prev, replacing := registry.Get(name)
	if replacing && prev.Path != path {
		l.opts.logger.Warn().
			Str("command", name).
			Str("previous", prev.Path).
			Str("path", path).
			Msg("command name already registered, replacing")
	}

	desc := &plugin.Descriptor{
		Name:       name,
		Location:   conf.Location,
		Path:       path,
		Generation: gen,
		LoadedAt:   time.Now(),
		Command:    cmd,
	}
	registry.Set(desc)
	registered = true
	if replacing && prev.Command != cmd {
		closeInstance(prev.Command)
	}

	l.opts.logger.Debug().Str("command", name).Str("path", path).Uint64("generation", gen).Msg("command registered")
	return desc, nil
}

// Unload shuts a command down, evicts its module so the next load reads the
// file again, and removes it from the registry. dir defaults to the
// directory the command was loaded from.
func (l *Commands) Unload(ctx context.Context, dir, name string) error {
	registry := l.client.Commands()
	if !registry.Has(name) {
		return &NotFoundError{Name: name}
	}

	if !l.acquire(name) {
		return ErrBusy
	}
	defer l.release(name)

	desc, ok := registry.Get(name)
	if !ok {
		return &NotFoundError{Name: name}
	}

	if sd, ok := desc.Command.(plugin.Shutdowner); ok {
		if err := guard(func() error { return sd.Shutdown(ctx, l.client) }); err != nil {
			return &ShutdownError{Name: name, Err: err}
		}
	}

	l.cache.Evict(desc.Path)
	if dir != "" {
		if alt := plugin.CanonicalPath(filepath.Join(dir, filepath.Base(desc.Path))); alt != desc.Path {
			l.cache.Evict(alt)
		}
	}
	registry.Delete(name)
	l.opts.metrics.SetCommands(registry.Len())

	l.opts.logger.Info().Str("command", name).Str("path", desc.Path).Msg("command unloaded")
	return nil
}

// Reload unloads name and loads it again from the file it came from.
func (l *Commands) Reload(ctx context.Context, name string) error {
	desc, ok := l.client.Commands().Get(name)
	if !ok {
		return &NotFoundError{Name: name}
	}
	if err := l.Unload(ctx, desc.Location, name); err != nil {
		return err
	}
	return l.Load(ctx, filepath.Dir(desc.Path), filepath.Base(desc.Path))
}

// Handles reports whether path would be picked up by LoadAll under root.
func (l *Commands) Handles(root, path string) bool {
	return l.cache.Handles(path) && !l.ignored(root, path)
}

func (l *Commands) ignored(root, path string) bool {
	if len(l.opts.ignore) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range l.opts.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// closeInstance frees interpreter resources held by an instance that was
// rejected, never made it into the registry, or was replaced. Shutdown hooks
// are not run.
func closeInstance(inst any) {
	if c, ok := inst.(interface{ Close() }); ok {
		c.Close()
	}
}

func (l *Commands) acquire(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy[name] {
		return false
	}
	l.busy[name] = true
	return true
}

func (l *Commands) release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.busy, name)
}
