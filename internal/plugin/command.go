// Package plugin defines the contracts loaded commands and event handlers
// implement, the registry that holds loaded commands, and the module cache
// that turns files into constructible plugins.
package plugin

import (
	"context"

	"github.com/keshon/guild-warden/internal/permission"
)

// Help is a command's identity as shown to users.
type Help struct {
	Name        string
	Description string
	Usage       string
	Category    string
}

// Conf is mutable command metadata. The loader sets Location.
type Conf struct {
	Enabled   bool
	GuildOnly bool
	Aliases   []string
	PermLevel string
	Location  string
	Extra     map[string]any
}

// Command is the contract every loaded command satisfies.
type Command interface {
	Help() Help
	Conf() *Conf
	Run(ctx context.Context, inv *Invocation) error
}

// Initializer is implemented by commands that need one-time setup after load.
type Initializer interface {
	Init(ctx context.Context, c Client) error
}

// Shutdowner is implemented by commands that hold resources to release on unload.
type Shutdowner interface {
	Shutdown(ctx context.Context, c Client) error
}

// Invocation carries one command execution. Data holds the transport payload,
// e.g. the *discordgo.MessageCreate that triggered it.
type Invocation struct {
	ID        string
	Command   string
	Args      []string
	Level     int
	Caller    *permission.Caller
	GuildID   string
	ChannelID string
	Data      any
	Reply     func(content string) error
}

// Respond sends content back through Reply when one is set.
func (inv *Invocation) Respond(content string) error {
	if inv == nil || inv.Reply == nil {
		return nil
	}
	return inv.Reply(content)
}
