// Package dispatch turns chat messages into command invocations.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/guild-warden/internal/metrics"
	"github.com/keshon/guild-warden/internal/permission"
	"github.com/keshon/guild-warden/internal/plugin"
	"github.com/keshon/guild-warden/internal/ratelimit"
)

// OutcomeIgnored is returned for messages that are not commands.
const OutcomeIgnored = "ignored"

// Dispatcher routes messages to registered commands.
type Dispatcher struct {
	client  plugin.Client
	limiter *ratelimit.Keyed
	mws     []plugin.Middleware
	retry   ratelimit.RetryConfig
	logger  zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLimiter replaces the per-user limiter built from the config.
func WithLimiter(l *ratelimit.Keyed) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithMiddleware wraps every command run, inside the panic guard. The first
// middleware is outermost.
func WithMiddleware(mws ...plugin.Middleware) Option {
	return func(d *Dispatcher) { d.mws = append(d.mws, mws...) }
}

// WithRetry sets the retry policy for replies.
func WithRetry(cfg ratelimit.RetryConfig) Option {
	return func(d *Dispatcher) { d.retry = cfg }
}

// New returns a dispatcher over c's registry and permission ladder.
func New(c plugin.Client, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client: c,
		logger: c.Logger().With().Str("component", "dispatch").Logger(),
		retry:  ratelimit.DefaultRetryConfig(),
		mws:    []plugin.Middleware{WithRecover()},
	}
	if cfg := c.Config(); cfg != nil {
		d.limiter = ratelimit.NewKeyed(cfg.CommandRate, cfg.CommandBurst)
	}
	for _, opt := range opts {
		opt(d)
	}
	d.retry.Logger = d.logger
	return d
}

// Limiter returns the per-user limiter.
func (d *Dispatcher) Limiter() *ratelimit.Keyed { return d.limiter }

// Handle runs the command a message asks for, if any, and returns the outcome.
// Refusals are reported to the channel; the returned error is the command's.
func (d *Dispatcher) Handle(ctx context.Context, ev *plugin.MessageEvent) (string, error) {
	if ev == nil || ev.MessageCreate == nil || ev.Message == nil || ev.Author == nil || ev.Author.Bot {
		return OutcomeIgnored, nil
	}
	m := ev.Message

	prefix := "!"
	if cfg := d.client.Config(); cfg != nil && cfg.Prefix != "" {
		prefix = cfg.Prefix
	}

	if isBareMention(m.Content, ev.SelfID) {
		d.reply(ctx, m.ChannelID, fmt.Sprintf("My prefix here is `%s`", prefix))
		return OutcomeIgnored, nil
	}
	name, args, ok := Parse(m.Content, prefix, ev.SelfID)
	if !ok {
		return OutcomeIgnored, nil
	}

	desc, ok := d.client.Commands().Resolve(name)
	if !ok {
		return OutcomeIgnored, nil
	}
	cmd := desc.Command
	conf := cmd.Conf()
	cmdName := desc.Name

	caller := ev.Caller
	if caller == nil {
		caller = &permission.Caller{UserID: ev.Author.ID, Username: ev.Author.Username, GuildID: m.GuildID}
	}
	stats := d.client.Metrics()

	if !conf.Enabled {
		stats.ObserveDispatch(cmdName, metrics.OutcomeDisabled)
		d.reply(ctx, m.ChannelID, fmt.Sprintf("`%s` is disabled.", cmdName))
		return metrics.OutcomeDisabled, nil
	}
	if store := d.client.Store(); store != nil && m.GuildID != "" {
		disabled, err := store.IsCommandDisabled(m.GuildID, cmdName)
		if err != nil {
			d.logger.Warn().Err(err).Str("guild", m.GuildID).Msg("could not read disabled commands")
		}
		if disabled {
			stats.ObserveDispatch(cmdName, metrics.OutcomeDisabled)
			d.reply(ctx, m.ChannelID, fmt.Sprintf("`%s` is disabled on this server.", cmdName))
			return metrics.OutcomeDisabled, nil
		}
	}
	if conf.GuildOnly && m.GuildID == "" {
		stats.ObserveDispatch(cmdName, metrics.OutcomeDenied)
		d.reply(ctx, m.ChannelID, "This command is unavailable via private message. Please run this command in a guild.")
		return metrics.OutcomeDenied, nil
	}

	resolver := d.client.Permissions()
	level := resolver.Resolve(caller)
	required, known := resolver.LevelOf(conf.PermLevel)
	if !known {
		stats.ObserveDispatch(cmdName, metrics.OutcomeDenied)
		d.logger.Warn().Str("command", cmdName).Str("perm_level", conf.PermLevel).Msg("command requires an unknown permission level, refusing")
		d.reply(ctx, m.ChannelID, fmt.Sprintf("`%s` requires an unknown permission level %q.", cmdName, conf.PermLevel))
		return metrics.OutcomeDenied, nil
	}
	if level < required {
		stats.ObserveDispatch(cmdName, metrics.OutcomeDenied)
		d.reply(ctx, m.ChannelID, fmt.Sprintf(
			"You do not have permission to use this command.\nYour permission level is %d (%s)\nThis command requires level %d (%s)",
			level, resolver.Name(level), required, conf.PermLevel))
		return metrics.OutcomeDenied, nil
	}

	if !d.limiter.Allow(caller.UserID) {
		stats.ObserveDispatch(cmdName, metrics.OutcomeThrottled)
		d.reply(ctx, m.ChannelID, "Slow down, you are sending commands too quickly.")
		return metrics.OutcomeThrottled, nil
	}

	inv := &plugin.Invocation{
		ID:        uuid.NewString(),
		Command:   cmdName,
		Args:      args,
		Level:     level,
		Caller:    caller,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Data:      ev.MessageCreate,
		Reply: func(content string) error {
			return d.send(ctx, m.ChannelID, content)
		},
	}

	log := d.logger.With().Str("invocation", inv.ID).Str("command", cmdName).Str("user", caller.UserID).Logger()
	start := time.Now()
	err := plugin.Apply(cmd, d.mws...).Run(ctx, inv)
	if err != nil {
		stats.ObserveDispatch(cmdName, metrics.OutcomeError)
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("command failed")
		d.reply(ctx, m.ChannelID, fmt.Sprintf("Command `%s` failed: %v", cmdName, err))
		return metrics.OutcomeError, err
	}
	stats.ObserveDispatch(cmdName, metrics.OutcomeOK)
	log.Debug().Dur("took", time.Since(start)).Msg("command ran")
	return metrics.OutcomeOK, nil
}

func (d *Dispatcher) send(ctx context.Context, channelID, content string) error {
	p := d.client.Platform()
	if p == nil {
		return fmt.Errorf("not connected")
	}
	return ratelimit.Retry(ctx, func() error {
		_, err := p.ChannelMessageSend(channelID, content)
		return err
	}, d.retry)
}

func (d *Dispatcher) reply(ctx context.Context, channelID, content string) {
	if err := d.send(ctx, channelID, content); err != nil {
		d.logger.Warn().Err(err).Str("channel", channelID).Msg("reply failed")
	}
}

// Parse splits content into a lower-cased command name and its arguments.
// The message must start with prefix or with a mention of selfID.
func Parse(content, prefix, selfID string) (name string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	var rest string
	switch {
	case prefix != "" && strings.HasPrefix(content, prefix):
		rest = content[len(prefix):]
	case selfID != "" && strings.HasPrefix(content, "<@"+selfID+">"):
		rest = content[len("<@"+selfID+">"):]
	case selfID != "" && strings.HasPrefix(content, "<@!"+selfID+">"):
		rest = content[len("<@!"+selfID+">"):]
	default:
		return "", nil, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func isBareMention(content, selfID string) bool {
	if selfID == "" {
		return false
	}
	content = strings.TrimSpace(content)
	return content == "<@"+selfID+">" || content == "<@!"+selfID+">"
}
