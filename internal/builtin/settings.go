package builtin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/keshon/guild-warden/internal/plugin"
)

var errNoStore = errors.New("storage is not configured")

func init() {
	registerCommand(
		plugin.Help{Name: "setchannel", Description: "Sets the channel used for a purpose, e.g. logs.", Usage: "setchannel <kind> <#channel|none>", Category: "Settings"},
		plugin.Conf{Enabled: true, GuildOnly: true, PermLevel: "Administrator"},
		runSetChannel,
	)
	registerCommand(
		plugin.Help{Name: "setrole", Description: "Sets the role used for a purpose, e.g. welcome.", Usage: "setrole <kind> <@role|none>", Category: "Settings"},
		plugin.Conf{Enabled: true, GuildOnly: true, PermLevel: "Administrator"},
		runSetRole,
	)
	registerCommand(
		plugin.Help{Name: "disable", Description: "Disables a command on this server.", Usage: "disable <command>", Category: "Settings"},
		plugin.Conf{Enabled: true, GuildOnly: true, PermLevel: "Administrator"},
		toggle(false),
	)
	registerCommand(
		plugin.Help{Name: "enable", Description: "Enables a command on this server.", Usage: "enable <command>", Category: "Settings"},
		plugin.Conf{Enabled: true, GuildOnly: true, PermLevel: "Administrator"},
		toggle(true),
	)
	registerCommand(
		plugin.Help{Name: "history", Description: "Shows recently run commands.", Usage: "history [count]", Category: "Moderation"},
		plugin.Conf{Enabled: true, GuildOnly: true, PermLevel: "Moderator"},
		runHistory,
	)
}

func isNone(s string) bool {
	switch strings.ToLower(s) {
	case "none", "off", "-":
		return true
	}
	return false
}

func runSetChannel(_ context.Context, c plugin.Client, inv *plugin.Invocation) error {
	if len(inv.Args) < 2 {
		return errUsage
	}
	store := c.Store()
	if store == nil {
		return errNoStore
	}
	kind, target := strings.ToLower(inv.Args[0]), inv.Args[1]
	if isNone(target) {
		if err := store.SetChannel(inv.GuildID, kind, ""); err != nil {
			return err
		}
		return inv.Respond(fmt.Sprintf("Cleared the `%s` channel.", kind))
	}
	id := stripMention(target)
	if err := store.SetChannel(inv.GuildID, kind, id); err != nil {
		return err
	}
	return inv.Respond(fmt.Sprintf("The `%s` channel is now <#%s>.", kind, id))
}

func runSetRole(_ context.Context, c plugin.Client, inv *plugin.Invocation) error {
	if len(inv.Args) < 2 {
		return errUsage
	}
	store := c.Store()
	if store == nil {
		return errNoStore
	}
	kind, target := strings.ToLower(inv.Args[0]), inv.Args[1]
	if isNone(target) {
		if err := store.SetRole(inv.GuildID, kind, ""); err != nil {
			return err
		}
		return inv.Respond(fmt.Sprintf("Cleared the `%s` role.", kind))
	}
	id := stripMention(target)
	if err := store.SetRole(inv.GuildID, kind, id); err != nil {
		return err
	}
	return inv.Respond(fmt.Sprintf("The `%s` role is now <@&%s>.", kind, id))
}

func toggle(enable bool) runFunc {
	return func(_ context.Context, c plugin.Client, inv *plugin.Invocation) error {
		if len(inv.Args) == 0 {
			return errUsage
		}
		store := c.Store()
		if store == nil {
			return errNoStore
		}
		desc, ok := c.Commands().Resolve(strings.ToLower(inv.Args[0]))
		if !ok {
			return inv.Respond(fmt.Sprintf("%s does not exist.", inv.Args[0]))
		}
		if enable {
			if err := store.EnableCommand(inv.GuildID, desc.Name); err != nil {
				return err
			}
			return inv.Respond(fmt.Sprintf("`%s` is enabled.", desc.Name))
		}
		if desc.Name == "enable" || desc.Name == inv.Command {
			return inv.Respond(fmt.Sprintf("`%s` cannot be disabled.", desc.Name))
		}
		if err := store.DisableCommand(inv.GuildID, desc.Name); err != nil {
			return err
		}
		return inv.Respond(fmt.Sprintf("`%s` is disabled.", desc.Name))
	}
}

func runHistory(_ context.Context, c plugin.Client, inv *plugin.Invocation) error {
	store := c.Store()
	if store == nil {
		return errNoStore
	}
	count := 10
	if len(inv.Args) > 0 {
		n, err := strconv.Atoi(inv.Args[0])
		if err != nil || n < 1 {
			return errUsage
		}
		count = n
	}
	history, err := store.FetchCommandHistory(inv.GuildID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return inv.Respond("No commands have been run yet.")
	}
	if len(history) > count {
		history = history[len(history)-count:]
	}

	var sb strings.Builder
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		sb.WriteString(fmt.Sprintf("`%s` %s ran `%s`", h.Datetime.Format("2006-01-02 15:04"), h.Username, h.Command))
		if len(h.Args) > 0 {
			sb.WriteString(" " + strings.Join(h.Args, " "))
		}
		sb.WriteString("\n")
	}
	return inv.Respond(strings.TrimRight(sb.String(), "\n"))
}
