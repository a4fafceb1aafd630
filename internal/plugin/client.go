package plugin

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/guild-warden/internal/config"
	"github.com/keshon/guild-warden/internal/metrics"
	"github.com/keshon/guild-warden/internal/permission"
	"github.com/keshon/guild-warden/internal/storage"
)

// Platform is the part of the Discord session handlers call into.
// *discordgo.Session satisfies it.
type Platform interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// CommandLoader is the subset of the loader operator commands drive.
type CommandLoader interface {
	Load(ctx context.Context, dir, file string) error
	Unload(ctx context.Context, dir, name string) error
	Reload(ctx context.Context, name string) error
}

// Client is the services context injected into every plugin constructor.
type Client interface {
	Config() *config.Config
	Commands() *Registry
	Loader() CommandLoader
	Permissions() *permission.Resolver
	Store() *storage.Storage
	Platform() Platform
	Metrics() *metrics.Metrics
	Logger() zerolog.Logger
}
