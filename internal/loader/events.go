package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/keshon/guild-warden/internal/events"
	"github.com/keshon/guild-warden/internal/plugin"
)

// Binding is one handler subscribed on the bus.
type Binding struct {
	Event   string
	Path    string
	ID      uint64
	Handler plugin.Handler
}

// Events binds handler plugins from a flat directory to the event bus.
type Events struct {
	client plugin.Client
	cache  *plugin.Cache
	bus    *events.Bus
	opts   options

	mu       sync.Mutex
	bindings []Binding
}

// NewEvents returns an event loader subscribing on bus.
func NewEvents(client plugin.Client, cache *plugin.Cache, bus *events.Bus, opts ...Option) *Events {
	return &Events{
		client: client,
		cache:  cache,
		bus:    bus,
		opts:   buildOptions(opts),
	}
}

// BindAll binds every file directly inside dir. Subdirectories are skipped.
// Each file is attempted once; failures are collected and never stop the
// pass. An error is returned only when dir cannot be read.
func (l *Events) BindAll(ctx context.Context, dir string) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &Report{}, fmt.Errorf("read events directory %s: %w", dir, err)
	}

	report := &Report{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		report.Attempted++
		b, err := l.Bind(ctx, dir, e.Name())
		if err != nil {
			report.Failures = append(report.Failures, err)
			l.opts.logger.Warn().Err(err).Str("file", e.Name()).Msg("event handler failed to bind")
			continue
		}
		report.Loaded = append(report.Loaded, b.Event)
	}

	l.opts.logger.Info().
		Int("bound", len(report.Loaded)).
		Int("failed", report.Failed()).
		Str("dir", dir).
		Msg("event handlers bound")
	return report, nil
}

// Bind imports dir/file, subscribes the handler under the event name it
// declares, then evicts the module: only the live instance stays around.
func (l *Events) Bind(ctx context.Context, dir, file string) (Binding, error) {
	path := plugin.CanonicalPath(filepath.Join(dir, file))
	defer l.cache.Evict(path)

	var h plugin.Handler
	err := guard(func() error {
		mod, _, err := l.cache.Import(path)
		if err != nil {
			return err
		}
		inst, err := mod.Instantiate(l.client)
		if err != nil {
			return err
		}
		handler, ok := inst.(plugin.Handler)
		if !ok {
			closeInstance(inst)
			return fmt.Errorf("%w (got %T)", ErrNotHandler, inst)
		}
		h = handler
		return nil
	})
	if err == nil && strings.TrimSpace(h.Name()) == "" {
		closeInstance(h)
		err = errors.New("handler declares no event name")
	}
	l.opts.metrics.ObserveLoad("event", err)
	if err != nil {
		return Binding{}, &BindError{File: file, Path: path, Err: err}
	}

	name := strings.TrimSpace(h.Name())
	id := l.bus.On(name, func(ctx context.Context, args ...any) error {
		return h.Run(ctx, args...)
	})
	b := Binding{Event: name, Path: path, ID: id, Handler: h}

	l.mu.Lock()
	l.bindings = append(l.bindings, b)
	l.mu.Unlock()

	l.opts.logger.Debug().Str("event", name).Str("path", path).Msg("event handler bound")
	return b, nil
}

// Bindings returns the live bindings in bind order.
func (l *Events) Bindings() []Binding {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Binding, len(l.bindings))
	copy(out, l.bindings)
	return out
}

// UnbindAll removes every binding from the bus and returns how many were
// removed. Handlers holding resources (a Close method) are released.
func (l *Events) UnbindAll() int {
	l.mu.Lock()
	bindings := l.bindings
	l.bindings = nil
	l.mu.Unlock()

	n := 0
	for _, b := range bindings {
		if l.bus.Off(b.ID) {
			n++
		}
		closeInstance(b.Handler)
	}
	return n
}
