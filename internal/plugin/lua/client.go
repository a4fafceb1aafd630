package lua

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/keshon/guild-warden/internal/plugin"
)

// clientTable exposes the services context to scripts as the global "client".
func clientTable(L *lua.LState, c plugin.Client) *lua.LTable {
	tbl := L.NewTable()
	if c == nil {
		return tbl
	}
	if cfg := c.Config(); cfg != nil {
		tbl.RawSetString("prefix", lua.LString(cfg.Prefix))
	}

	logger := c.Logger()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			logger.Info().Str("source", "lua").Msg(L.CheckString(1))
			return 0
		},
		"commands": func(L *lua.LState) int {
			var names []string
			if reg := c.Commands(); reg != nil {
				for _, d := range reg.All() {
					names = append(names, d.Name)
				}
			}
			L.Push(stringTable(L, names))
			return 1
		},
		"channel": func(L *lua.LState) int {
			return pushLookup(L, c, func(guildID, kind string) (string, bool, error) {
				return c.Store().Channel(guildID, kind)
			})
		},
		"role": func(L *lua.LState) int {
			return pushLookup(L, c, func(guildID, kind string) (string, bool, error) {
				return c.Store().Role(guildID, kind)
			})
		},
		"send": func(L *lua.LState) int {
			channelID, content := L.CheckString(1), L.CheckString(2)
			p := c.Platform()
			if p == nil {
				L.Push(lua.LString("not connected"))
				return 1
			}
			if _, err := p.ChannelMessageSend(channelID, content); err != nil {
				L.Push(lua.LString(err.Error()))
				return 1
			}
			L.Push(lua.LNil)
			return 1
		},
		"add_role": func(L *lua.LState) int {
			guildID, userID, roleID := L.CheckString(1), L.CheckString(2), L.CheckString(3)
			p := c.Platform()
			if p == nil {
				L.Push(lua.LString("not connected"))
				return 1
			}
			if err := p.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
				L.Push(lua.LString(err.Error()))
				return 1
			}
			L.Push(lua.LNil)
			return 1
		},
	})
	return tbl
}

// pushLookup returns the stored ID, or nil when unset or the store is unavailable.
func pushLookup(L *lua.LState, c plugin.Client, get func(guildID, kind string) (string, bool, error)) int {
	guildID, kind := L.CheckString(1), L.CheckString(2)
	if c.Store() == nil {
		L.Push(lua.LNil)
		return 1
	}
	id, ok, err := get(guildID, kind)
	if err != nil {
		L.RaiseError("%s lookup failed: %s", kind, err.Error())
		return 0
	}
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(id))
	return 1
}
