package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/guild-warden/internal/config"
	"github.com/keshon/guild-warden/internal/plugin"
)

func init() {
	registerCommand(
		plugin.Help{Name: "ping", Description: "Replies with the message round trip.", Usage: "ping", Category: "Information"},
		plugin.Conf{Enabled: true, PermLevel: "User"},
		runPing,
	)
	registerCommand(
		plugin.Help{Name: "help", Description: "Lists the commands you can run.", Usage: "help [command]", Category: "Information"},
		plugin.Conf{Enabled: true, PermLevel: "User", Aliases: []string{"h", "halp"}},
		runHelp,
	)
	registerCommand(
		plugin.Help{Name: "level", Description: "Shows your permission level.", Usage: "level", Category: "Information"},
		plugin.Conf{Enabled: true, PermLevel: "User", Aliases: []string{"mylevel"}},
		runLevel,
	)
}

func runPing(_ context.Context, _ plugin.Client, inv *plugin.Invocation) error {
	if m, ok := inv.Data.(*discordgo.MessageCreate); ok && m.Message != nil && !m.Timestamp.IsZero() {
		latency := time.Since(m.Timestamp).Milliseconds()
		return inv.Respond(fmt.Sprintf("Pong! Latency is `%dms`.", latency))
	}
	return inv.Respond("Pong!")
}

func runLevel(_ context.Context, c plugin.Client, inv *plugin.Invocation) error {
	return inv.Respond(fmt.Sprintf("Your permission level is: %d - %s", inv.Level, c.Permissions().Name(inv.Level)))
}

func runHelp(_ context.Context, c plugin.Client, inv *plugin.Invocation) error {
	if len(inv.Args) > 0 {
		desc, ok := c.Commands().Resolve(strings.ToLower(inv.Args[0]))
		if !ok || !visible(c, inv, desc.Command) {
			return inv.Respond(fmt.Sprintf("No command named `%s`.", inv.Args[0]))
		}
		return inv.Respond(helpDetail(desc.Command))
	}
	return inv.Respond(helpIndex(c, inv))
}

// visible reports whether the caller could run cmd where they asked for help.
func visible(c plugin.Client, inv *plugin.Invocation, cmd plugin.Command) bool {
	conf := cmd.Conf()
	if !conf.Enabled || (conf.GuildOnly && inv.GuildID == "") {
		return false
	}
	required, ok := c.Permissions().LevelOf(conf.PermLevel)
	return ok && required <= inv.Level
}

func helpIndex(c plugin.Client, inv *plugin.Invocation) string {
	byCategory := make(map[string][]plugin.Help)
	for _, desc := range c.Commands().All() {
		if !visible(c, inv, desc.Command) {
			continue
		}
		h := desc.Command.Help()
		cat := h.Category
		if cat == "" {
			cat = "Other"
		}
		byCategory[cat] = append(byCategory[cat], h)
	}

	cats := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		wi, wj := config.CategoryWeight(cats[i]), config.CategoryWeight(cats[j])
		if wi != wj {
			return wi < wj
		}
		return cats[i] < cats[j]
	})

	prefix := "!"
	if cfg := c.Config(); cfg != nil {
		prefix = cfg.Prefix
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Command list** (use `%shelp <command>` for details)\n\n", prefix))
	for _, cat := range cats {
		sb.WriteString(fmt.Sprintf("**%s**\n", cat))
		for _, h := range byCategory[cat] {
			sb.WriteString(fmt.Sprintf("`%s` - %s\n", h.Name, h.Description))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func helpDetail(cmd plugin.Command) string {
	h, conf := cmd.Help(), cmd.Conf()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**%s**\n%s\n", h.Name, h.Description))
	if h.Usage != "" {
		sb.WriteString(fmt.Sprintf("Usage: `%s`\n", h.Usage))
	}
	if len(conf.Aliases) > 0 {
		sb.WriteString(fmt.Sprintf("Aliases: %s\n", strings.Join(conf.Aliases, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Level: %s", conf.PermLevel))
	return sb.String()
}
