package dispatch

import (
	"github.com/bwmarrin/discordgo"

	"github.com/keshon/guild-warden/internal/permission"
)

// CallerFromState describes the author of m using whatever the session
// state has cached. Missing guild data leaves the matching fields empty.
func CallerFromState(state *discordgo.State, m *discordgo.MessageCreate) *permission.Caller {
	if m == nil || m.Message == nil || m.Author == nil {
		return &permission.Caller{}
	}
	c := &permission.Caller{
		UserID:   m.Author.ID,
		Username: m.Author.Username,
		Bot:      m.Author.Bot,
		GuildID:  m.GuildID,
	}
	if m.GuildID == "" {
		return c
	}

	member := m.Member
	if state != nil {
		if g, err := state.Guild(m.GuildID); err == nil {
			c.GuildOwnerID = g.OwnerID
		}
		if member == nil {
			if mem, err := state.Member(m.GuildID, m.Author.ID); err == nil {
				member = mem
			}
		}
	}
	if member != nil {
		c.RoleIDs = append([]string(nil), member.Roles...)
		for _, id := range member.Roles {
			if state == nil {
				break
			}
			if r, err := state.Role(m.GuildID, id); err == nil {
				c.RoleNames = append(c.RoleNames, r.Name)
			}
		}
	}
	if state != nil {
		if perms, err := state.UserChannelPermissions(m.Author.ID, m.ChannelID); err == nil {
			c.Permissions = perms
		}
	}
	return c
}
