package bot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/guild-warden/internal/config"
	"github.com/keshon/guild-warden/internal/events"
	"github.com/keshon/guild-warden/internal/permission"
	"github.com/keshon/guild-warden/internal/plugin"
	"github.com/keshon/guild-warden/internal/storage"
)

const rollScript = `
return {
  help = { name = "roll", description = "Rolls a die", category = "Fun" },
  conf = { aliases = { "dice" } },
  run = function(ctx, args) ctx.reply("4") end,
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newBot(t *testing.T, strict bool) (*Bot, *storage.Storage) {
	t.Helper()
	dir := t.TempDir()
	cmds := filepath.Join(dir, "commands")
	evs := filepath.Join(dir, "events")

	writeFile(t, filepath.Join(cmds, "ping.yaml"), "kind: ping\n")
	writeFile(t, filepath.Join(cmds, "fun", "roll.lua"), rollScript)
	writeFile(t, filepath.Join(cmds, "broken.lua"), "return {")
	writeFile(t, filepath.Join(cmds, "README.md"), "not a plugin")
	writeFile(t, filepath.Join(evs, "message.yaml"), "kind: message\n")
	writeFile(t, filepath.Join(evs, "welcome.yaml"), "kind: welcome\n")
	writeFile(t, filepath.Join(evs, "bogus.yaml"), "kind: nothing\n")

	levels, err := permission.Compile(permission.DefaultRules(), permission.Principals{OwnerID: "owner"})
	require.NoError(t, err)
	cfg := &config.Config{
		Prefix:       "!",
		OwnerID:      "owner",
		CommandsDir:  cmds,
		EventsDir:    evs,
		StrictEvents: strict,
		HookTimeout:  time.Second,
		PermLevels:   levels,
	}

	store, err := storage.Open("json", filepath.Join(dir, "store.json"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(cfg, store, nil, zerolog.Nop()), store
}

func TestInitLoadsPluginsAndReportsFailures(t *testing.T) {
	b, _ := newBot(t, false)

	cmds, evs, err := b.Init(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, cmds.Attempted)
	assert.ElementsMatch(t, []string{"ping", "roll"}, cmds.Loaded)
	require.Len(t, cmds.Failures, 1)
	assert.Contains(t, cmds.Failures[0].Error(), "Unable to load command broken.lua")

	assert.Equal(t, 3, evs.Attempted)
	assert.ElementsMatch(t, []string{"message", "guildMemberAdd"}, evs.Loaded)
	assert.Equal(t, 1, evs.Failed())

	desc, ok := b.Commands().Resolve("dice")
	require.True(t, ok)
	assert.Equal(t, "roll", desc.Name)
	assert.Equal(t, filepath.Join(b.cfg.CommandsDir, "fun"), desc.Command.Conf().Location)

	assert.Nil(t, b.Platform())
	require.NoError(t, b.Shutdown())
	assert.Zero(t, b.Commands().Len())
	assert.Zero(t, b.Bus().Count(events.Message))
}

func TestStrictEventsFailInit(t *testing.T) {
	b, _ := newBot(t, true)
	_, evs, err := b.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, evs.Failed())
}

func TestRunReleasesPluginsWhenStartupFails(t *testing.T) {
	b, _ := newBot(t, true)

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, b.Commands().Len(), "commands loaded before the failure are unloaded")
	assert.Empty(t, b.EventLoader().Bindings())
	assert.Zero(t, b.Bus().Count(events.Message))
}

func TestMissingCommandsDirIsFatal(t *testing.T) {
	b, _ := newBot(t, false)
	b.cfg.CommandsDir = filepath.Join(t.TempDir(), "nope")
	_, _, err := b.Init(context.Background())
	assert.Error(t, err)
}

func TestMessagesReachCommandsThroughTheBus(t *testing.T) {
	b, store := newBot(t, false)
	_, _, err := b.Init(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Shutdown() })

	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   "!dice",
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
	}}
	delivered := b.Bus().Emit(context.Background(), events.Message, b.messageEvent(nil, m))
	assert.Equal(t, 1, delivered)

	history, err := store.FetchCommandHistory("g1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "roll", history[0].Command)
}

func TestReloadGivesFreshInstance(t *testing.T) {
	b, _ := newBot(t, false)
	_, _, err := b.Init(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Shutdown() })

	before, ok := b.Commands().Get("roll")
	require.True(t, ok)
	before.Command.Conf().PermLevel = "Bot Owner"

	path := before.Path
	writeFile(t, path, `return { help = { name = "roll" }, conf = { perm_level = "Moderator" }, run = function() end }`)
	require.NoError(t, b.CommandLoader().Reload(context.Background(), "roll"))

	after, ok := b.Commands().Get("roll")
	require.True(t, ok)
	assert.NotSame(t, before.Command, after.Command)
	assert.Equal(t, "Moderator", after.Command.Conf().PermLevel)
	assert.Greater(t, after.Generation, before.Generation)
	_, aliased := b.Commands().Resolve("dice")
	assert.False(t, aliased)
}

var _ plugin.Client = (*Bot)(nil)
