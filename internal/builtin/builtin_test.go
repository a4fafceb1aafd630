package builtin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/guild-warden/internal/permission"
	"github.com/keshon/guild-warden/internal/plugin"
	"github.com/keshon/guild-warden/internal/plugin/manifest"
	"github.com/keshon/guild-warden/internal/plugin/plugintest"
	"github.com/keshon/guild-warden/internal/storage"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *memBackend) Get(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *memBackend) Put(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *memBackend) Close() error { return nil }

type loaderCall struct {
	op, dir, arg string
}

type fakeLoader struct {
	calls []loaderCall
	err   error
}

func (l *fakeLoader) Load(_ context.Context, dir, file string) error {
	l.calls = append(l.calls, loaderCall{"load", dir, file})
	return l.err
}

func (l *fakeLoader) Unload(_ context.Context, dir, name string) error {
	l.calls = append(l.calls, loaderCall{"unload", dir, name})
	return l.err
}

func (l *fakeLoader) Reload(_ context.Context, name string) error {
	l.calls = append(l.calls, loaderCall{"reload", "", name})
	return l.err
}

func newClient() *plugintest.Client {
	c := plugintest.NewClient()
	c.Storage = storage.New(&memBackend{data: map[string][]byte{}})
	c.Cfg.CommandsDir = "app/commands"
	return c
}

// build instantiates kind through a manifest file, the way the loader does.
func build(t *testing.T, c plugin.Client, src string) any {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	mod, err := manifest.NewImporter(Catalog()).Import(path)
	require.NoError(t, err)
	inst, err := mod.Instantiate(c)
	require.NoError(t, err)
	return inst
}

// register builds kind and adds it to c's registry.
func register(t *testing.T, c *plugintest.Client, kind string) plugin.Command {
	t.Helper()
	cmd := build(t, c, "kind: "+kind+"\n").(plugin.Command)
	c.Registry.Set(&plugin.Descriptor{Name: cmd.Help().Name, Command: cmd})
	return cmd
}

// run invokes cmd as userID at level in guild g1 and returns the replies.
func run(t *testing.T, cmd plugin.Command, level int, args ...string) []string {
	t.Helper()
	var replies []string
	inv := &plugin.Invocation{
		Command:   cmd.Help().Name,
		Args:      args,
		Level:     level,
		Caller:    &permission.Caller{UserID: "u1", Username: "alice", GuildID: "g1"},
		GuildID:   "g1",
		ChannelID: "c1",
		Reply:     func(s string) error { replies = append(replies, s); return nil },
	}
	require.NoError(t, cmd.Run(context.Background(), inv))
	return replies
}

func TestCatalogKinds(t *testing.T) {
	assert.Subset(t, Catalog().Kinds(), []string{
		"ping", "help", "level", "reload", "load", "unload",
		"setchannel", "setrole", "enable", "disable", "history",
		"message", "ready", "welcome", "farewell",
	})
}

func TestManifestOverridesBuiltin(t *testing.T) {
	c := newClient()
	cmd := build(t, c, "kind: ping\nname: latency\naliases: [lat]\nperm_level: Moderator\n").(plugin.Command)
	assert.Equal(t, "latency", cmd.Help().Name)
	assert.Equal(t, []string{"lat"}, cmd.Conf().Aliases)
	assert.Equal(t, "Moderator", cmd.Conf().PermLevel)

	other := build(t, c, "kind: ping\n").(plugin.Command)
	assert.Equal(t, "ping", other.Help().Name)
	assert.Equal(t, "User", other.Conf().PermLevel)
}

func TestPingAndLevel(t *testing.T) {
	c := newClient()
	assert.Equal(t, []string{"Pong!"}, run(t, register(t, c, "ping"), 0))
	assert.Equal(t, []string{"Your permission level is: 4 - Server Owner"}, run(t, register(t, c, "level"), 4))
}

func TestHelpShowsOnlyReachableCommands(t *testing.T) {
	c := newClient()
	help := register(t, c, "help")
	register(t, c, "ping")
	register(t, c, "reload")
	register(t, c, "setchannel")

	userView := run(t, help, 0)[0]
	assert.Contains(t, userView, "`ping`")
	assert.Contains(t, userView, "`help`")
	assert.NotContains(t, userView, "`reload`")
	assert.NotContains(t, userView, "`setchannel`")

	adminView := run(t, help, 9)[0]
	assert.Contains(t, adminView, "`reload`")
	assert.Contains(t, adminView, "`setchannel`")
	assert.Less(t, indexOf(adminView, "**Information**"), indexOf(adminView, "**Settings**"))
	assert.Less(t, indexOf(adminView, "**Settings**"), indexOf(adminView, "**System**"))

	detail := run(t, help, 0, "h")[0]
	assert.Contains(t, detail, "**help**")
	assert.Contains(t, detail, "Aliases: h, halp")

	assert.Equal(t, []string{"No command named `reload`."}, run(t, help, 0, "reload"))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestOperatorCommands(t *testing.T) {
	c := newClient()
	loader := &fakeLoader{}
	c.Load = loader
	register(t, c, "ping")

	assert.Equal(t, []string{"The command `ping` has been reloaded."}, run(t, register(t, c, "reload"), 9, "PING"))
	assert.Equal(t, []string{"The command `ping` has been unloaded."}, run(t, register(t, c, "unload"), 9, "ping"))
	assert.Equal(t, []string{"Loaded `fun/roll.lua`."}, run(t, register(t, c, "load"), 9, "fun/roll.lua"))

	assert.Equal(t, []loaderCall{
		{"reload", "", "ping"},
		{"unload", "", "ping"},
		{"load", filepath.Join("app/commands", "fun"), "roll.lua"},
	}, loader.calls)

	loader.err = errors.New("nope does not exist.")
	unload, ok := c.Registry.Get("unload")
	require.True(t, ok)
	assert.Equal(t, []string{"nope does not exist."}, run(t, unload.Command, 9, "nope"))

	assert.Equal(t, []string{"Files must be inside the commands directory."}, run(t, register(t, c, "load"), 9, "../secrets.lua"))
	assert.Equal(t, []string{"Usage: reload <command>"}, run(t, register(t, c, "reload"), 9))
}

func TestSettingsCommands(t *testing.T) {
	c := newClient()

	assert.Equal(t, []string{"The `logs` channel is now <#123>."}, run(t, register(t, c, "setchannel"), 3, "Logs", "<#123>"))
	id, ok, err := c.Storage.Channel("g1", "logs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123", id)

	run(t, register(t, c, "setchannel"), 3, "logs", "none")
	_, ok, err = c.Storage.Channel("g1", "logs")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"The `welcome` role is now <@&77>."}, run(t, register(t, c, "setrole"), 3, "welcome", "<@&77>"))
	id, ok, err = c.Storage.Role("g1", "welcome")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "77", id)
}

func TestEnableDisable(t *testing.T) {
	c := newClient()
	register(t, c, "ping")
	disable := register(t, c, "disable")
	enable := register(t, c, "enable")

	assert.Equal(t, []string{"`ping` is disabled."}, run(t, disable, 3, "ping"))
	off, err := c.Storage.IsCommandDisabled("g1", "ping")
	require.NoError(t, err)
	assert.True(t, off)

	assert.Equal(t, []string{"`enable` cannot be disabled."}, run(t, disable, 3, "enable"))
	assert.Equal(t, []string{"ghost does not exist."}, run(t, disable, 3, "ghost"))

	run(t, enable, 3, "ping")
	off, err = c.Storage.IsCommandDisabled("g1", "ping")
	require.NoError(t, err)
	assert.False(t, off)
}

func TestHistory(t *testing.T) {
	c := newClient()
	history := register(t, c, "history")
	assert.Equal(t, []string{"No commands have been run yet."}, run(t, history, 2))

	for _, name := range []string{"ping", "help", "level"} {
		require.NoError(t, c.Storage.AppendCommandToHistory("g1", storage.CommandHistoryRecord{Username: "alice", Command: name}))
	}
	out := run(t, history, 2, "2")[0]
	assert.Contains(t, out, "ran `level`")
	assert.Contains(t, out, "ran `help`")
	assert.NotContains(t, out, "ran `ping`")
	assert.Less(t, indexOf(out, "`level`"), indexOf(out, "`help`"), "newest first")

	assert.Equal(t, []string{"Usage: history [count]"}, run(t, history, 2, "zero"))
}

func member(guildID, userID, name string) *discordgo.Member {
	return &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID, Username: name}}
}

func TestWelcomeAndFarewell(t *testing.T) {
	c := newClient()
	welcome := build(t, c, "kind: welcome\n").(plugin.Handler)
	farewell := build(t, c, "kind: farewell\noptions:\n  message: \"bye {user}\"\n").(plugin.Handler)
	assert.Equal(t, "guildMemberAdd", welcome.Name())
	assert.Equal(t, "guildMemberRemove", farewell.Name())

	join := &discordgo.GuildMemberAdd{Member: member("g1", "u9", "dave")}
	require.NoError(t, welcome.Run(context.Background(), join))
	assert.Empty(t, c.Session.Sent(), "nothing configured, nothing posted")

	require.NoError(t, c.Storage.SetChannel("g1", "logs", "log-chan"))
	require.NoError(t, c.Storage.SetRole("g1", "welcome", "newbie"))
	require.NoError(t, welcome.Run(context.Background(), join))
	require.NoError(t, farewell.Run(context.Background(), &discordgo.GuildMemberRemove{Member: member("g1", "u9", "dave")}))

	assert.Equal(t, []plugintest.Message{
		{ChannelID: "log-chan", Content: "dave (u9) joined."},
		{ChannelID: "log-chan", Content: "bye dave"},
	}, c.Session.Sent())
	assert.Equal(t, []plugintest.RoleGrant{{GuildID: "g1", UserID: "u9", RoleID: "newbie"}}, c.Session.Granted())

	assert.Error(t, welcome.Run(context.Background(), "not a member"))
}

func TestMessageHandlerDispatches(t *testing.T) {
	c := newClient()
	register(t, c, "ping")
	h := build(t, c, "kind: message\n").(plugin.Handler)
	assert.Equal(t, "message", h.Name())

	ev := &plugin.MessageEvent{
		MessageCreate: &discordgo.MessageCreate{Message: &discordgo.Message{
			GuildID:   "g1",
			ChannelID: "c1",
			Content:   "!ping",
			Author:    &discordgo.User{ID: "u1", Username: "alice"},
		}},
		Caller: &permission.Caller{UserID: "u1", Username: "alice", GuildID: "g1"},
	}
	require.NoError(t, h.Run(context.Background(), ev))
	assert.Equal(t, []plugintest.Message{{ChannelID: "c1", Content: "Pong!"}}, c.Session.Sent())

	records, err := c.Storage.FetchCommandHistory("g1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ping", records[0].Command)

	assert.Error(t, h.Run(context.Background(), "garbage"))
}

func TestReadyHandler(t *testing.T) {
	c := newClient()
	h := build(t, c, "kind: ready\n").(plugin.Handler)
	assert.NoError(t, h.Run(context.Background(), &discordgo.Ready{User: &discordgo.User{Username: "warden"}}))
	assert.NoError(t, h.Run(context.Background()))
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, "1", stripMention("<#1>"))
	assert.Equal(t, "2", stripMention("<@&2>"))
	assert.Equal(t, "3", stripMention("<@!3>"))
	assert.Equal(t, "4", stripMention(" 4 "))
}
