package builtin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/keshon/guild-warden/internal/plugin"
)

func init() {
	registerCommand(
		plugin.Help{Name: "reload", Description: "Reloads a command from its file.", Usage: "reload <command>", Category: "System"},
		plugin.Conf{Enabled: true, PermLevel: "Bot Admin"},
		runReload,
	)
	registerCommand(
		plugin.Help{Name: "load", Description: "Loads a command file from the commands directory.", Usage: "load <file>", Category: "System"},
		plugin.Conf{Enabled: true, PermLevel: "Bot Admin"},
		runLoad,
	)
	registerCommand(
		plugin.Help{Name: "unload", Description: "Unloads a command.", Usage: "unload <command>", Category: "System"},
		plugin.Conf{Enabled: true, PermLevel: "Bot Admin"},
		runUnload,
	)
}

var errNoLoader = errors.New("no loader available")

// canonicalName maps an alias to the registered name.
func canonicalName(c plugin.Client, name string) string {
	name = strings.ToLower(name)
	if desc, ok := c.Commands().Resolve(name); ok {
		return desc.Name
	}
	return name
}

func runReload(ctx context.Context, c plugin.Client, inv *plugin.Invocation) error {
	if len(inv.Args) == 0 {
		return errUsage
	}
	if c.Loader() == nil {
		return errNoLoader
	}
	name := canonicalName(c, inv.Args[0])
	if err := c.Loader().Reload(ctx, name); err != nil {
		return inv.Respond(err.Error())
	}
	return inv.Respond(fmt.Sprintf("The command `%s` has been reloaded.", name))
}

func runUnload(ctx context.Context, c plugin.Client, inv *plugin.Invocation) error {
	if len(inv.Args) == 0 {
		return errUsage
	}
	if c.Loader() == nil {
		return errNoLoader
	}
	name := canonicalName(c, inv.Args[0])
	if err := c.Loader().Unload(ctx, "", name); err != nil {
		return inv.Respond(err.Error())
	}
	return inv.Respond(fmt.Sprintf("The command `%s` has been unloaded.", name))
}

func runLoad(ctx context.Context, c plugin.Client, inv *plugin.Invocation) error {
	if len(inv.Args) == 0 {
		return errUsage
	}
	if c.Loader() == nil {
		return errNoLoader
	}
	rel := filepath.Clean(filepath.FromSlash(inv.Args[0]))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return inv.Respond("Files must be inside the commands directory.")
	}

	dir := c.Config().CommandsDir
	if err := c.Loader().Load(ctx, filepath.Join(dir, filepath.Dir(rel)), filepath.Base(rel)); err != nil {
		return inv.Respond(err.Error())
	}
	return inv.Respond(fmt.Sprintf("Loaded `%s`.", rel))
}
