// Package watch reloads command plugins when their files change on disk.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/keshon/guild-warden/internal/plugin"
)

// DefaultDebounce is how long changes are collected before they are applied.
const DefaultDebounce = 500 * time.Millisecond

// Loader is what the watcher drives. *loader.Commands satisfies it.
type Loader interface {
	Handles(root, path string) bool
	Load(ctx context.Context, dir, file string) error
	Unload(ctx context.Context, dir, name string) error
	Reload(ctx context.Context, name string) error
}

// Watcher watches a commands directory tree.
type Watcher struct {
	root     string
	loader   Loader
	registry *plugin.Registry
	debounce time.Duration
	logger   zerolog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashes map[string]string
}

// New returns a watcher over root. Loaded commands are looked up in registry
// by the path they were loaded from.
func New(root string, l Loader, registry *plugin.Registry, debounce time.Duration, logger zerolog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		loader:   l,
		registry: registry,
		debounce: debounce,
		logger:   logger.With().Str("component", "watch").Logger(),
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}
	w.logger.Info().Str("root", w.root).Dur("debounce", w.debounce).Msg("watching commands")

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(fsw, ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); path != root && strings.HasPrefix(base, ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
		}
		return nil
	})
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, ev.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", ev.Name).Msg("failed to watch new directory")
			}
			return
		}
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return
	}
	if !w.loader.Handles(w.root, ev.Name) {
		return
	}

	w.pendingMu.Lock()
	w.pending[ev.Name] |= ev.Op
	w.pendingMu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path := range batch {
		if ctx.Err() != nil {
			return
		}
		w.apply(ctx, path)
	}
}

// apply brings the registry in line with the file at path: a missing file
// unloads its command, a new file loads, a changed file reloads.
func (w *Watcher) apply(ctx context.Context, path string) {
	path = plugin.CanonicalPath(path)
	desc, loaded := w.registry.FindByPath(path)
	log := w.logger.With().Str("path", path).Logger()

	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		delete(w.hashes, path)
		if !loaded {
			return
		}
		if err := w.loader.Unload(ctx, "", desc.Name); err != nil {
			log.Warn().Err(err).Msg("unload after delete failed")
			return
		}
		log.Info().Str("command", desc.Name).Msg("command file removed, unloaded")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to read changed file")
		return
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	if old, ok := w.hashes[path]; ok && old == hash && loaded {
		return
	}
	w.hashes[path] = hash

	if loaded {
		if err := w.loader.Reload(ctx, desc.Name); err != nil {
			log.Warn().Err(err).Str("command", desc.Name).Msg("reload failed")
			return
		}
		log.Info().Str("command", desc.Name).Msg("command reloaded")
		return
	}
	if err := w.loader.Load(ctx, filepath.Dir(path), filepath.Base(path)); err != nil {
		log.Warn().Err(err).Msg("load failed")
		return
	}
	log.Info().Msg("command loaded")
}
