package permission

import "slices"

// Caller is what is known about whoever sent a message.
type Caller struct {
	UserID       string
	Username     string
	Bot          bool
	GuildID      string
	GuildOwnerID string
	RoleIDs      []string
	RoleNames    []string
	Permissions  int64
}

// InGuild reports whether the message came from a guild rather than a DM.
func (c *Caller) InGuild() bool {
	return c.GuildID != ""
}

// IsGuildOwner reports whether the caller owns the guild the message came from.
func (c *Caller) IsGuildOwner() bool {
	return c.InGuild() && c.UserID != "" && c.UserID == c.GuildOwnerID
}

// HasRole reports whether the caller holds a role with the given name or ID.
func (c *Caller) HasRole(nameOrID string) bool {
	return slices.Contains(c.RoleNames, nameOrID) || slices.Contains(c.RoleIDs, nameOrID)
}

// HasPermissions reports whether all bits in mask are granted.
func (c *Caller) HasPermissions(mask int64) bool {
	return c.Permissions&mask == mask
}
