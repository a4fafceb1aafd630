package permission

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Rule is the declarative form of a Level as read from the permissions file.
// Every condition that is set must hold for the rule to match, unless Match
// is "any".
type Rule struct {
	Level       int      `yaml:"level"`
	Name        string   `yaml:"name"`
	Match       string   `yaml:"match,omitempty"`
	Always      bool     `yaml:"always,omitempty"`
	GuildOwner  bool     `yaml:"guild_owner,omitempty"`
	BotOwner    bool     `yaml:"bot_owner,omitempty"`
	BotAdmin    bool     `yaml:"bot_admin,omitempty"`
	BotSupport  bool     `yaml:"bot_support,omitempty"`
	Users       []string `yaml:"users,omitempty"`
	Roles       []string `yaml:"roles,omitempty"`
	Permissions []string `yaml:"permissions,omitempty"`
}

// Principals are the bot-wide identities rules can refer to.
type Principals struct {
	OwnerID string
	Admins  []string
	Support []string
}

// permissionBits maps the names accepted in rules to Discord permission bits.
var permissionBits = map[string]int64{
	"administrator":    discordgo.PermissionAdministrator,
	"manage_guild":     discordgo.PermissionManageGuild,
	"manage_channels":  discordgo.PermissionManageChannels,
	"manage_roles":     discordgo.PermissionManageRoles,
	"manage_messages":  discordgo.PermissionManageMessages,
	"kick_members":     discordgo.PermissionKickMembers,
	"ban_members":      discordgo.PermissionBanMembers,
	"moderate_members": discordgo.PermissionModerateMembers,
	"view_audit_log":   discordgo.PermissionViewAuditLogs,
	"send_messages":    discordgo.PermissionSendMessages,
}

// DefaultRules is the ladder used when no permissions file is present.
func DefaultRules() []Rule {
	return []Rule{
		{Level: 0, Name: "User", Always: true},
		{Level: 2, Name: "Moderator", Roles: []string{"Moderator"}},
		{Level: 3, Name: "Administrator", Roles: []string{"Administrator"}},
		{Level: 4, Name: "Server Owner", GuildOwner: true},
		{Level: 8, Name: "Bot Support", BotSupport: true},
		{Level: 9, Name: "Bot Admin", BotAdmin: true},
		{Level: 10, Name: "Bot Owner", BotOwner: true},
	}
}

// Compile turns rules into levels with pure checks bound to p.
func Compile(rules []Rule, p Principals) ([]Level, error) {
	levels := make([]Level, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("rule %q: duplicate name", name)
		}
		seen[key] = true

		check, err := compileRule(r, p)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}
		levels = append(levels, Level{Level: r.Level, Name: name, Check: check})
	}
	return levels, nil
}

func compileRule(r Rule, p Principals) (Check, error) {
	var checks []Check

	if r.Always {
		checks = append(checks, func(*Caller) bool { return true })
	}
	if r.GuildOwner {
		checks = append(checks, (*Caller).IsGuildOwner)
	}
	if r.BotOwner {
		owner := p.OwnerID
		checks = append(checks, func(c *Caller) bool { return owner != "" && c.UserID == owner })
	}
	if r.BotAdmin {
		checks = append(checks, userIn(p.Admins))
	}
	if r.BotSupport {
		checks = append(checks, userIn(p.Support))
	}
	if len(r.Users) > 0 {
		checks = append(checks, userIn(r.Users))
	}
	if len(r.Roles) > 0 {
		roles := slices.Clone(r.Roles)
		checks = append(checks, func(c *Caller) bool {
			for _, role := range roles {
				if c.HasRole(role) {
					return true
				}
			}
			return false
		})
	}
	if len(r.Permissions) > 0 {
		var mask int64
		for _, name := range r.Permissions {
			bit, ok := permissionBits[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return nil, fmt.Errorf("unknown permission %q", name)
			}
			mask |= bit
		}
		checks = append(checks, func(c *Caller) bool { return c.HasPermissions(mask) })
	}

	if len(checks) == 0 {
		return nil, fmt.Errorf("no conditions")
	}
	switch strings.ToLower(r.Match) {
	case "", "all":
		return All(checks...), nil
	case "any":
		return Any(checks...), nil
	default:
		return nil, fmt.Errorf("unknown match mode %q", r.Match)
	}
}

func userIn(ids []string) Check {
	set := slices.Clone(ids)
	return func(c *Caller) bool {
		return c.UserID != "" && slices.Contains(set, c.UserID)
	}
}

// All matches when every check matches.
func All(checks ...Check) Check {
	return func(c *Caller) bool {
		for _, check := range checks {
			if !check(c) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one check matches.
func Any(checks ...Check) Check {
	return func(c *Caller) bool {
		for _, check := range checks {
			if check(c) {
				return true
			}
		}
		return false
	}
}
