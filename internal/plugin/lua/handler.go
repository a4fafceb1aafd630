package lua

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	lua "github.com/yuin/gopher-lua"

	"github.com/keshon/guild-warden/internal/plugin"
)

// Handler is a Lua-backed plugin.Handler.
type Handler struct {
	st   *state
	tbl  *lua.LTable
	name string
}

func newHandler(st *state, tbl *lua.LTable, name string) (plugin.Handler, error) {
	if _, ok := tbl.RawGetString("run").(*lua.LFunction); !ok {
		st.close()
		return nil, fmt.Errorf("event handler %q has no run function", name)
	}
	return &Handler{st: st, tbl: tbl, name: name}, nil
}

// Name is the event the script subscribes to.
func (h *Handler) Name() string { return h.name }

// Run converts the event arguments to tables and calls the script's run.
func (h *Handler) Run(ctx context.Context, args ...any) error {
	L := h.st.L
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = eventValue(L, a)
	}
	ret, err := h.st.call(ctx, h.tbl.RawGetString("run"), largs...)
	if err != nil {
		return err
	}
	return fail(ret)
}

// Close releases the interpreter.
func (h *Handler) Close() { h.st.close() }

// eventValue flattens the discordgo payloads scripts care about.
func eventValue(L *lua.LState, v any) lua.LValue {
	tbl := L.NewTable()
	set := func(k, v string) { tbl.RawSetString(k, lua.LString(v)) }

	switch e := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(e)
	case int:
		return lua.LNumber(e)
	case bool:
		return lua.LBool(e)
	case *discordgo.GuildMemberAdd:
		setMember(set, e.Member)
	case *discordgo.GuildMemberRemove:
		setMember(set, e.Member)
	case *plugin.MessageEvent:
		if e.MessageCreate != nil {
			setMessage(set, e.Message)
		}
		if e.Caller != nil {
			tbl.RawSetString("owner", lua.LBool(e.Caller.IsGuildOwner()))
		}
	case *discordgo.MessageCreate:
		setMessage(set, e.Message)
	case *discordgo.MessageUpdate:
		setMessage(set, e.Message)
	case *discordgo.MessageDelete:
		setMessage(set, e.Message)
	case *discordgo.GuildCreate:
		if e.Guild != nil {
			set("guild_id", e.ID)
			set("name", e.Name)
		}
	case *discordgo.GuildDelete:
		if e.Guild != nil {
			set("guild_id", e.ID)
		}
	case *discordgo.Ready:
		if e.User != nil {
			set("username", e.User.Username)
		}
		tbl.RawSetString("guilds", lua.LNumber(len(e.Guilds)))
	case *discordgo.MessageReactionAdd:
		if e.MessageReaction != nil {
			set("user_id", e.UserID)
			set("message_id", e.MessageID)
			set("channel_id", e.ChannelID)
			set("guild_id", e.GuildID)
			set("emoji", e.Emoji.Name)
		}
	default:
		set("type", fmt.Sprintf("%T", v))
	}
	return tbl
}

func setMember(set func(k, v string), m *discordgo.Member) {
	if m == nil {
		return
	}
	set("guild_id", m.GuildID)
	if m.User != nil {
		set("user_id", m.User.ID)
		set("username", m.User.Username)
	}
}

func setMessage(set func(k, v string), m *discordgo.Message) {
	if m == nil {
		return
	}
	set("id", m.ID)
	set("guild_id", m.GuildID)
	set("channel_id", m.ChannelID)
	set("content", m.Content)
	if m.Author != nil {
		set("author_id", m.Author.ID)
		set("username", m.Author.Username)
	}
}
