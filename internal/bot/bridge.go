package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/guild-warden/internal/dispatch"
	"github.com/keshon/guild-warden/internal/events"
	"github.com/keshon/guild-warden/internal/plugin"
)

// bridge re-emits session events on the bus under their handler names.
func (b *Bot) bridge(ctx context.Context, dg *discordgo.Session) {
	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.Ready) { b.emit(ctx, events.Ready, e) })
	dg.AddHandler(func(s *discordgo.Session, e *discordgo.MessageCreate) {
		b.emit(ctx, events.MessageCreate, e)
		b.emit(ctx, events.Message, b.messageEvent(s, e))
	})
	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageUpdate) { b.emit(ctx, events.MessageUpdate, e) })
	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageDelete) { b.emit(ctx, events.MessageDelete, e) })
	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) { b.emit(ctx, events.GuildCreate, e) })
	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildDelete) { b.emit(ctx, events.GuildDelete, e) })
	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) { b.emit(ctx, events.GuildMemberAdd, e) })
	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberRemove) { b.emit(ctx, events.GuildMemberRemove, e) })
	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageReactionAdd) { b.emit(ctx, events.ReactionAdd, e) })
}

func (b *Bot) emit(ctx context.Context, name string, args ...any) {
	b.metrics.ObserveEvent(name)
	b.bus.Emit(ctx, name, args...)
}

func (b *Bot) messageEvent(s *discordgo.Session, m *discordgo.MessageCreate) *plugin.MessageEvent {
	ev := &plugin.MessageEvent{MessageCreate: m}
	if s != nil && s.State != nil {
		ev.Caller = dispatch.CallerFromState(s.State, m)
		if s.State.User != nil {
			ev.SelfID = s.State.User.ID
		}
	} else {
		ev.Caller = dispatch.CallerFromState(nil, m)
	}
	return ev
}
