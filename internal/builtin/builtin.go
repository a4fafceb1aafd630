// Package builtin holds the compiled-in plugin kinds YAML manifests refer to.
// Every kind registers itself from an init function.
package builtin

import (
	"context"
	"errors"
	"strings"

	"github.com/keshon/guild-warden/internal/plugin"
	"github.com/keshon/guild-warden/internal/plugin/manifest"
)

var catalog = manifest.NewCatalog()

// Catalog returns the catalog of built-in kinds.
func Catalog() *manifest.Catalog { return catalog }

// errUsage is returned as a reply, not as a failure.
var errUsage = errors.New("usage")

type runFunc func(ctx context.Context, c plugin.Client, inv *plugin.Invocation) error

// Command is a built-in command instance.
type Command struct {
	client plugin.Client
	help   plugin.Help
	conf   *plugin.Conf
	run    runFunc
}

func (b *Command) Help() plugin.Help  { return b.help }
func (b *Command) Conf() *plugin.Conf { return b.conf }

func (b *Command) Run(ctx context.Context, inv *plugin.Invocation) error {
	err := b.run(ctx, b.client, inv)
	if errors.Is(err, errUsage) {
		return inv.Respond("Usage: " + b.help.Usage)
	}
	return err
}

// registerCommand adds a command kind. Each instantiation copies the
// defaults so manifests never share a Conf.
func registerCommand(help plugin.Help, conf plugin.Conf, run runFunc) {
	catalog.Register(help.Name, func(c plugin.Client, m *manifest.Manifest) (any, error) {
		h := help
		cf := conf
		cf.Aliases = append([]string(nil), conf.Aliases...)
		cf.Extra = map[string]any{}
		m.ApplyCommand(&h, &cf)
		return &Command{client: c, help: h, conf: &cf, run: run}, nil
	})
}

// Handler is a built-in event handler instance.
type Handler struct {
	event string
	run   func(ctx context.Context, args ...any) error
}

func (h *Handler) Name() string { return h.event }

func (h *Handler) Run(ctx context.Context, args ...any) error { return h.run(ctx, args...) }

// registerHandler adds an event kind. build receives the manifest so
// options such as the target channel kind can be overridden.
func registerHandler(kind, event string, build func(c plugin.Client, m *manifest.Manifest) func(ctx context.Context, args ...any) error) {
	catalog.Register(kind, func(c plugin.Client, m *manifest.Manifest) (any, error) {
		return &Handler{event: event, run: build(c, m)}, nil
	})
}

func firstArg[T any](args []any) (T, bool) {
	var zero T
	if len(args) == 0 {
		return zero, false
	}
	v, ok := args[0].(T)
	return v, ok
}

// stripMention turns "<#123>", "<@&123>" or "<@!123>" into "123".
func stripMention(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<") || !strings.HasSuffix(s, ">") {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "<"), ">")
	return strings.TrimLeft(s, "#@&!")
}
