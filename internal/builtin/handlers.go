package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/guild-warden/internal/dispatch"
	"github.com/keshon/guild-warden/internal/events"
	"github.com/keshon/guild-warden/internal/plugin"
	"github.com/keshon/guild-warden/internal/plugin/manifest"
)

func init() {
	registerHandler("message", events.Message, buildMessage)
	registerHandler("ready", events.Ready, buildReady)
	registerHandler("welcome", events.GuildMemberAdd, buildWelcome)
	registerHandler("farewell", events.GuildMemberRemove, buildFarewell)
}

// buildMessage runs the command dispatcher on every message.
func buildMessage(c plugin.Client, _ *manifest.Manifest) func(ctx context.Context, args ...any) error {
	d := dispatch.New(c, dispatch.WithMiddleware(dispatch.WithHistory(c.Store(), c.Logger())))
	return func(ctx context.Context, args ...any) error {
		ev, ok := firstArg[*plugin.MessageEvent](args)
		if !ok {
			return fmt.Errorf("message: unexpected payload %T", args)
		}
		_, err := d.Handle(ctx, ev)
		return err
	}
}

func buildReady(c plugin.Client, _ *manifest.Manifest) func(ctx context.Context, args ...any) error {
	return func(_ context.Context, args ...any) error {
		logger := c.Logger()
		log := logger.Info().Int("commands", c.Commands().Len())
		if r, ok := firstArg[*discordgo.Ready](args); ok && r.User != nil {
			log = log.Str("user", r.User.Username).Int("guilds", len(r.Guilds))
		}
		log.Msg("ready to serve")
		return nil
	}
}

// buildWelcome posts a join line to the guild's log channel and grants the
// welcome role, when either is configured.
//
// Options: channel (default "logs"), role (default "welcome"),
// message (default "{user} ({id}) joined."), a template with {user},
// {id} and {mention} placeholders.
func buildWelcome(c plugin.Client, m *manifest.Manifest) func(ctx context.Context, args ...any) error {
	channelKind := m.String("channel", "logs")
	roleKind := m.String("role", "welcome")
	tmpl := m.String("message", "{user} ({id}) joined.")

	return func(_ context.Context, args ...any) error {
		ev, ok := firstArg[*discordgo.GuildMemberAdd](args)
		if !ok || ev.Member == nil || ev.User == nil {
			return fmt.Errorf("guildMemberAdd: unexpected payload")
		}
		return announceMember(c, ev.Member, channelKind, roleKind, tmpl)
	}
}

// buildFarewell posts a leave line to the guild's log channel.
func buildFarewell(c plugin.Client, m *manifest.Manifest) func(ctx context.Context, args ...any) error {
	channelKind := m.String("channel", "logs")
	tmpl := m.String("message", "{user} ({id}) left.")

	return func(_ context.Context, args ...any) error {
		ev, ok := firstArg[*discordgo.GuildMemberRemove](args)
		if !ok || ev.Member == nil || ev.User == nil {
			return fmt.Errorf("guildMemberRemove: unexpected payload")
		}
		return announceMember(c, ev.Member, channelKind, "", tmpl)
	}
}

func announceMember(c plugin.Client, member *discordgo.Member, channelKind, roleKind, tmpl string) error {
	store, p := c.Store(), c.Platform()
	if store == nil || p == nil {
		return nil
	}
	guildID := member.GuildID

	if channelID, ok, err := store.Channel(guildID, channelKind); err != nil {
		return err
	} else if ok {
		text := strings.NewReplacer(
			"{user}", member.User.Username,
			"{id}", member.User.ID,
			"{mention}", member.User.Mention(),
		).Replace(tmpl)
		if _, err := p.ChannelMessageSend(channelID, text); err != nil {
			return fmt.Errorf("post to %s channel: %w", channelKind, err)
		}
	}

	if roleKind == "" {
		return nil
	}
	roleID, ok, err := store.Role(guildID, roleKind)
	if err != nil || !ok {
		return err
	}
	if err := p.GuildMemberRoleAdd(guildID, member.User.ID, roleID); err != nil {
		return fmt.Errorf("grant %s role: %w", roleKind, err)
	}
	return nil
}
