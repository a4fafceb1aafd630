// Command discord runs the guild-warden bot.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/keshon/guild-warden/internal/bot"
	"github.com/keshon/guild-warden/internal/config"
	"github.com/keshon/guild-warden/internal/loader"
	"github.com/keshon/guild-warden/internal/logging"
	"github.com/keshon/guild-warden/internal/metrics"
	"github.com/keshon/guild-warden/internal/storage"
)

const (
	appName = "guild-warden"
	Version = "0.3.0"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile, logLevel string

	root := &cobra.Command{
		Use:           "discord",
		Short:         "Discord bot with hot-loadable commands and event handlers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(envFile, logLevel)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "Env file to load before reading the environment")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(envFile, logLevel)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load every command and event handler without connecting, and report failures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return check(cmd.OutOrStdout(), envFile, logLevel)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return root
}

func setup(requireToken bool, envFile, logLevel string) (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(requireToken, envFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, closer, err := logging.New(logging.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSize,
	})
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, logger, closer, nil
}

func run(envFile, logLevel string) error {
	cfg, logger, closer, err := setup(true, envFile, logLevel)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info().Str("version", Version).Msgf("starting %s", appName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(cfg.StorageDriver, cfg.StoragePath, logging.Component(logger, "storage"))
	if err != nil {
		return err
	}
	defer store.Close()

	b := bot.New(cfg, store, metrics.New(), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(ctx)
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		err = <-errCh
	case err = <-errCh:
		cancel()
	}
	if err != nil {
		logger.Error().Err(err).Msg("bot stopped with an error")
		return err
	}
	logger.Info().Msg("bot exited cleanly")
	return nil
}

func check(out io.Writer, envFile, logLevel string) error {
	cfg, logger, closer, err := setup(false, envFile, logLevel)
	if err != nil {
		return err
	}
	defer closer.Close()

	b := bot.New(cfg, nil, nil, logger)
	cmds, evs, initErr := b.Init(context.Background())
	printReport(out, "commands", cmds)
	printReport(out, "events", evs)
	if err := b.Shutdown(); err != nil {
		logger.Warn().Err(err).Msg("shutdown after check failed")
	}
	if initErr != nil {
		return initErr
	}
	if cmds.Failed()+evs.Failed() > 0 {
		return fmt.Errorf("%d plugin(s) failed to load", cmds.Failed()+evs.Failed())
	}
	return nil
}

func printReport(out io.Writer, kind string, r *loader.Report) {
	if r == nil {
		return
	}
	fmt.Fprintf(out, "%s: %d attempted, %d loaded, %d failed\n", kind, r.Attempted, len(r.Loaded), r.Failed())
	for _, msg := range r.Messages() {
		fmt.Fprintf(out, "  %s\n", msg)
	}
}
