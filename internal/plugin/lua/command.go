package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/keshon/guild-warden/internal/plugin"
)

// Command is a Lua-backed plugin.Command. It always implements
// plugin.Shutdowner because its interpreter must be closed on unload.
type Command struct {
	st   *state
	tbl  *lua.LTable
	help plugin.Help
	conf *plugin.Conf
}

// initCommand is returned for scripts that define init, so the loader's
// capability check sees plugin.Initializer only when there is a hook to run.
type initCommand struct {
	*Command
}

func newCommand(st *state, tbl, help *lua.LTable) (plugin.Command, error) {
	name := lua.LVAsString(help.RawGetString("name"))
	if name == "" {
		st.close()
		return nil, fmt.Errorf("help.name is required")
	}
	if _, ok := tbl.RawGetString("run").(*lua.LFunction); !ok {
		st.close()
		return nil, fmt.Errorf("command %q has no run function", name)
	}

	conf := &plugin.Conf{Enabled: true, PermLevel: "User", Extra: map[string]any{}}
	if ct, ok := tbl.RawGetString("conf").(*lua.LTable); ok {
		conf.Enabled = boolOr(ct.RawGetString("enabled"), true)
		conf.GuildOnly = boolOr(ct.RawGetString("guild_only"), false)
		conf.Aliases = stringList(ct.RawGetString("aliases"))
		if lvl := lua.LVAsString(ct.RawGetString("perm_level")); lvl != "" {
			conf.PermLevel = lvl
		}
		ct.ForEach(func(k, v lua.LValue) {
			key := lua.LVAsString(k)
			switch key {
			case "enabled", "guild_only", "aliases", "perm_level", "":
				return
			}
			switch v.Type() {
			case lua.LTString:
				conf.Extra[key] = lua.LVAsString(v)
			case lua.LTNumber:
				conf.Extra[key] = float64(lua.LVAsNumber(v))
			case lua.LTBool:
				conf.Extra[key] = lua.LVAsBool(v)
			}
		})
	}

	c := &Command{
		st:  st,
		tbl: tbl,
		help: plugin.Help{
			Name:        name,
			Description: lua.LVAsString(help.RawGetString("description")),
			Usage:       lua.LVAsString(help.RawGetString("usage")),
			Category:    lua.LVAsString(help.RawGetString("category")),
		},
		conf: conf,
	}
	if _, ok := tbl.RawGetString("init").(*lua.LFunction); ok {
		return &initCommand{c}, nil
	}
	return c, nil
}

func (c *Command) Help() plugin.Help  { return c.help }
func (c *Command) Conf() *plugin.Conf { return c.conf }

// Run calls the script's run(ctx, args).
func (c *Command) Run(ctx context.Context, inv *plugin.Invocation) error {
	L := c.st.L
	ret, err := c.st.call(ctx, c.tbl.RawGetString("run"), invocationTable(L, inv), stringTable(L, inv.Args))
	if err != nil {
		return err
	}
	return fail(ret)
}

// Shutdown calls the script's shutdown hook, if any, and closes the
// interpreter once the hook succeeds. A failed hook leaves the instance
// running so it can keep serving and be shut down again later.
func (c *Command) Shutdown(ctx context.Context, _ plugin.Client) error {
	if c.st.isClosed() {
		return nil
	}
	if fn, ok := c.tbl.RawGetString("shutdown").(*lua.LFunction); ok {
		ret, err := c.st.call(ctx, fn, c.st.L.GetGlobal("client"))
		if err == nil {
			err = fail(ret)
		}
		if err != nil {
			return err
		}
	}
	c.st.close()
	return nil
}

// Init calls the script's init hook.
func (c *initCommand) Init(ctx context.Context, _ plugin.Client) error {
	ret, err := c.st.call(ctx, c.tbl.RawGetString("init"), c.st.L.GetGlobal("client"))
	if err != nil {
		return err
	}
	return fail(ret)
}

func invocationTable(L *lua.LState, inv *plugin.Invocation) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("id", lua.LString(inv.ID))
	tbl.RawSetString("command", lua.LString(inv.Command))
	tbl.RawSetString("level", lua.LNumber(inv.Level))
	tbl.RawSetString("guild_id", lua.LString(inv.GuildID))
	tbl.RawSetString("channel_id", lua.LString(inv.ChannelID))
	if inv.Caller != nil {
		tbl.RawSetString("author_id", lua.LString(inv.Caller.UserID))
		tbl.RawSetString("username", lua.LString(inv.Caller.Username))
	}
	tbl.RawSetString("reply", L.NewFunction(func(L *lua.LState) int {
		if err := inv.Respond(L.CheckString(1)); err != nil {
			L.RaiseError("reply failed: %s", err.Error())
		}
		return 0
	}))
	return tbl
}

// Close releases the interpreter without running the shutdown hook.
func (c *Command) Close() { c.st.close() }
