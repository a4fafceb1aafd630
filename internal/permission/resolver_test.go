package permission

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isOwner(c *Caller) bool  { return c.IsGuildOwner() }
func isMember(c *Caller) bool { return c.InGuild() }

func TestResolveOwnerMemberScenario(t *testing.T) {
	r := NewResolver([]Level{
		{Level: 10, Name: "Owner", Check: isOwner},
		{Level: 1, Name: "Member", Check: isMember},
	})

	tests := []struct {
		name   string
		caller *Caller
		want   int
	}{
		{"owner and member", &Caller{UserID: "u1", GuildID: "g", GuildOwnerID: "u1"}, 10},
		{"member only", &Caller{UserID: "u2", GuildID: "g", GuildOwnerID: "u1"}, 1},
		{"neither", &Caller{UserID: "u3"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.caller))
		})
	}
}

func TestResolveEvaluatesHighestFirstRegardlessOfInputOrder(t *testing.T) {
	var evaluated []int
	track := func(level int, result bool) Check {
		return func(*Caller) bool {
			evaluated = append(evaluated, level)
			return result
		}
	}

	r := NewResolver([]Level{
		{Level: 1, Name: "low", Check: track(1, true)},
		{Level: 7, Name: "high", Check: track(7, false)},
		{Level: 3, Name: "mid", Check: track(3, true)},
	})

	assert.Equal(t, 3, r.Resolve(&Caller{}))
	assert.Equal(t, []int{7, 3}, evaluated)
}

func TestResolveHighestMatchingWins(t *testing.T) {
	always := func(*Caller) bool { return true }
	never := func(*Caller) bool { return false }

	ladders := [][]Level{
		{{Level: 5, Check: always}, {Level: 9, Check: always}, {Level: 2, Check: never}},
		{{Level: 100, Check: never}, {Level: 42, Check: always}, {Level: -1, Check: always}},
		{{Level: 3, Check: never}},
		{},
	}
	wants := []int{9, 42, 0, 0}

	for i, ladder := range ladders {
		assert.Equal(t, wants[i], NewResolver(ladder).Resolve(&Caller{}), "ladder %d", i)
	}
}

func TestResolveTiesKeepConfiguredOrder(t *testing.T) {
	r := NewResolver([]Level{
		{Level: 5, Name: "first", Check: func(*Caller) bool { return true }},
		{Level: 5, Name: "second", Check: func(*Caller) bool { return true }},
	})
	levels := r.Levels()
	require.Len(t, levels, 2)
	assert.Equal(t, "first", levels[0].Name)
	assert.Equal(t, "second", levels[1].Name)
}

func TestResolverDoesNotAliasInput(t *testing.T) {
	input := []Level{{Level: 1, Name: "a"}, {Level: 2, Name: "b"}}
	r := NewResolver(input)
	input[0].Level = 99

	assert.Equal(t, 2, r.Levels()[0].Level)
	assert.Equal(t, 1, r.Levels()[1].Level)
}

func TestNilResolverAndCaller(t *testing.T) {
	var r *Resolver
	assert.Equal(t, Baseline, r.Resolve(&Caller{}))
	assert.Equal(t, Baseline, NewResolver(nil).Resolve(nil))
}

func TestNameAndLevelOf(t *testing.T) {
	r := NewResolver([]Level{{Level: 2, Name: "Moderator"}, {Level: 10, Name: "Bot Owner"}})

	assert.Equal(t, "Moderator", r.Name(2))
	assert.Equal(t, "", r.Name(5))

	lvl, ok := r.LevelOf("bot owner")
	assert.True(t, ok)
	assert.Equal(t, 10, lvl)

	_, ok = r.LevelOf("nobody")
	assert.False(t, ok)
}

func TestCompileDefaultRules(t *testing.T) {
	levels, err := Compile(DefaultRules(), Principals{
		OwnerID: "owner",
		Admins:  []string{"admin"},
		Support: []string{"support"},
	})
	require.NoError(t, err)
	r := NewResolver(levels)

	tests := []struct {
		name   string
		caller *Caller
		want   int
	}{
		{"plain user", &Caller{UserID: "x", GuildID: "g"}, 0},
		{"moderator by role name", &Caller{UserID: "x", GuildID: "g", RoleNames: []string{"Moderator"}}, 2},
		{"administrator by role name", &Caller{UserID: "x", GuildID: "g", RoleNames: []string{"Moderator", "Administrator"}}, 3},
		{"guild owner", &Caller{UserID: "x", GuildID: "g", GuildOwnerID: "x"}, 4},
		{"support", &Caller{UserID: "support"}, 8},
		{"bot admin", &Caller{UserID: "admin"}, 9},
		{"bot owner", &Caller{UserID: "owner", GuildID: "g", GuildOwnerID: "owner"}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.caller))
		})
	}
}

func TestCompilePermissionsAndUsers(t *testing.T) {
	levels, err := Compile([]Rule{
		{Level: 3, Name: "Admin", Permissions: []string{"Administrator"}},
		{Level: 2, Name: "Janitor", Permissions: []string{"manage_messages"}, Users: []string{"u1"}},
	}, Principals{})
	require.NoError(t, err)
	r := NewResolver(levels)

	assert.Equal(t, 3, r.Resolve(&Caller{Permissions: discordgo.PermissionAdministrator}))
	assert.Equal(t, 2, r.Resolve(&Caller{UserID: "u1", Permissions: discordgo.PermissionManageMessages}))
	assert.Equal(t, 0, r.Resolve(&Caller{UserID: "u2", Permissions: discordgo.PermissionManageMessages}))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"missing name", []Rule{{Level: 1, Always: true}}},
		{"no conditions", []Rule{{Level: 1, Name: "Empty"}}},
		{"unknown permission", []Rule{{Level: 1, Name: "X", Permissions: []string{"fly"}}}},
		{"duplicate name", []Rule{{Level: 1, Name: "A", Always: true}, {Level: 2, Name: "a", Always: true}}},
		{"unknown match mode", []Rule{{Level: 1, Name: "X", Always: true, Match: "most"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.rules, Principals{})
			assert.Error(t, err)
		})
	}
}

func TestCompileMatchAny(t *testing.T) {
	levels, err := Compile([]Rule{
		{Level: 3, Name: "Staff", Match: "any", Roles: []string{"Staff"}, Users: []string{"u1"}},
	}, Principals{})
	require.NoError(t, err)
	r := NewResolver(levels)

	assert.Equal(t, 3, r.Resolve(&Caller{UserID: "u1"}))
	assert.Equal(t, 3, r.Resolve(&Caller{UserID: "u2", RoleNames: []string{"Staff"}}))
	assert.Equal(t, 0, r.Resolve(&Caller{UserID: "u2"}))
}

func TestBotOwnerRuleWithoutOwnerNeverMatches(t *testing.T) {
	levels, err := Compile([]Rule{{Level: 10, Name: "Bot Owner", BotOwner: true}}, Principals{})
	require.NoError(t, err)
	assert.Equal(t, 0, NewResolver(levels).Resolve(&Caller{}))
}

func TestAnyAndAll(t *testing.T) {
	yes := func(*Caller) bool { return true }
	no := func(*Caller) bool { return false }

	assert.True(t, Any(no, yes)(&Caller{}))
	assert.False(t, Any(no, no)(&Caller{}))
	assert.True(t, All(yes, yes)(&Caller{}))
	assert.False(t, All(yes, no)(&Caller{}))
}
