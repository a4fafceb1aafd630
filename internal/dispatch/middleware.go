package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/guild-warden/internal/plugin"
	"github.com/keshon/guild-warden/internal/storage"
)

// WithHistory records guild invocations in the command history after the
// command has run, whether or not it succeeded.
func WithHistory(store *storage.Storage, logger zerolog.Logger) plugin.Middleware {
	return func(cmd plugin.Command) plugin.Command {
		return plugin.Wrap(cmd, func(ctx context.Context, inv *plugin.Invocation) error {
			err := cmd.Run(ctx, inv)
			if store == nil || inv.GuildID == "" {
				return err
			}
			rec := storage.CommandHistoryRecord{
				ChannelID: inv.ChannelID,
				Command:   inv.Command,
				Args:      inv.Args,
				Datetime:  time.Now().UTC(),
			}
			if inv.Caller != nil {
				rec.UserID = inv.Caller.UserID
				rec.Username = inv.Caller.Username
			}
			if e := store.AppendCommandToHistory(inv.GuildID, rec); e != nil {
				logger.Warn().Err(e).Str("command", inv.Command).Msg("failed to log command")
			}
			return err
		})
	}
}

// WithRecover turns a panicking command into an error.
func WithRecover() plugin.Middleware {
	return func(cmd plugin.Command) plugin.Command {
		return plugin.Wrap(cmd, func(ctx context.Context, inv *plugin.Invocation) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Command: inv.Command, Value: r}
				}
			}()
			return cmd.Run(ctx, inv)
		})
	}
}
