// Package plugintest provides an in-memory plugin.Client for tests.
package plugintest

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/guild-warden/internal/config"
	"github.com/keshon/guild-warden/internal/metrics"
	"github.com/keshon/guild-warden/internal/permission"
	"github.com/keshon/guild-warden/internal/plugin"
	"github.com/keshon/guild-warden/internal/storage"
)

// Client is a plugin.Client backed by fields tests set directly.
type Client struct {
	Cfg      *config.Config
	Registry *plugin.Registry
	Load     plugin.CommandLoader
	Resolver *permission.Resolver
	Storage  *storage.Storage
	Session  *Platform
	Stats    *metrics.Metrics
	Log      zerolog.Logger
}

// NewClient returns a client with an empty registry, the default permission
// ladder and a recording platform.
func NewClient() *Client {
	levels, err := permission.Compile(permission.DefaultRules(), permission.Principals{OwnerID: "owner"})
	if err != nil {
		panic(err)
	}
	return &Client{
		Cfg:      &config.Config{Prefix: "!", OwnerID: "owner", PermLevels: levels},
		Registry: plugin.NewRegistry(),
		Resolver: permission.NewResolver(levels),
		Session:  &Platform{},
		Log:      zerolog.Nop(),
	}
}

func (c *Client) Config() *config.Config            { return c.Cfg }
func (c *Client) Commands() *plugin.Registry        { return c.Registry }
func (c *Client) Loader() plugin.CommandLoader      { return c.Load }
func (c *Client) Permissions() *permission.Resolver { return c.Resolver }
func (c *Client) Store() *storage.Storage           { return c.Storage }
func (c *Client) Metrics() *metrics.Metrics         { return c.Stats }
func (c *Client) Logger() zerolog.Logger            { return c.Log }

// Platform returns nil when no session is set, so callers see "not connected".
func (c *Client) Platform() plugin.Platform {
	if c.Session == nil {
		return nil
	}
	return c.Session
}

// Message is one recorded ChannelMessageSend call.
type Message struct {
	ChannelID string
	Content   string
}

// RoleGrant is one recorded GuildMemberRoleAdd call.
type RoleGrant struct {
	GuildID, UserID, RoleID string
}

// Platform records outgoing calls.
type Platform struct {
	mu       sync.Mutex
	Messages []Message
	Roles    []RoleGrant
	Err      error
}

func (p *Platform) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.Messages = append(p.Messages, Message{ChannelID: channelID, Content: content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (p *Platform) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Roles = append(p.Roles, RoleGrant{GuildID: guildID, UserID: userID, RoleID: roleID})
	return nil
}

// Sent returns a copy of the recorded messages.
func (p *Platform) Sent() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.Messages...)
}

// Granted returns a copy of the recorded role grants.
func (p *Platform) Granted() []RoleGrant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RoleGrant(nil), p.Roles...)
}

// Command is a minimal plugin.Command whose Run calls RunFunc.
type Command struct {
	H       plugin.Help
	C       *plugin.Conf
	RunFunc func(ctx context.Context, inv *plugin.Invocation) error
}

// NewCommand returns a command named name, enabled, at level User.
func NewCommand(name string, aliases ...string) *Command {
	return &Command{
		H: plugin.Help{Name: name},
		C: &plugin.Conf{Enabled: true, PermLevel: "User", Aliases: aliases},
	}
}

func (c *Command) Help() plugin.Help  { return c.H }
func (c *Command) Conf() *plugin.Conf { return c.C }

func (c *Command) Run(ctx context.Context, inv *plugin.Invocation) error {
	if c.RunFunc == nil {
		return nil
	}
	return c.RunFunc(ctx, inv)
}
