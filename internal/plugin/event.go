package plugin

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/guild-warden/internal/permission"
)

// Handler reacts to one named platform event.
type Handler interface {
	// Name is the event the handler subscribes to, e.g. "guildMemberAdd".
	Name() string
	Run(ctx context.Context, args ...any) error
}

// MessageEvent is the payload of the "message" event: a created message with
// its author already resolved against guild state.
type MessageEvent struct {
	*discordgo.MessageCreate
	Caller *permission.Caller
	// SelfID is the bot's own user ID, used to recognise mentions.
	SelfID string
}
