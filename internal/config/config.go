// Package config loads process-wide settings once at startup. Values come
// from an optional .env file, the environment, and a YAML permission ladder.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/keshon/guild-warden/internal/permission"
)

// Config is immutable after Load returns.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`
	Prefix       string `env:"COMMAND_PREFIX" envDefault:"!"`

	OwnerID string   `env:"OWNER_ID"`
	Admins  []string `env:"BOT_ADMINS" envSeparator:","`
	Support []string `env:"BOT_SUPPORT" envSeparator:","`

	CommandsDir    string        `env:"COMMANDS_DIR" envDefault:"app/commands"`
	EventsDir      string        `env:"EVENTS_DIR" envDefault:"app/events"`
	CommandsIgnore []string      `env:"COMMANDS_IGNORE" envSeparator:","`
	WatchCommands  bool          `env:"WATCH_COMMANDS" envDefault:"false"`
	StrictEvents   bool          `env:"STRICT_EVENTS" envDefault:"false"`
	HookTimeout    time.Duration `env:"HOOK_TIMEOUT" envDefault:"30s"`

	PermissionsFile string `env:"PERMISSIONS_FILE" envDefault:"permissions.yaml"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"json"`
	StoragePath   string `env:"STORAGE_PATH" envDefault:"datastore.json"`

	CommandRate  float64 `env:"COMMAND_RATE" envDefault:"1"`
	CommandBurst int     `env:"COMMAND_BURST" envDefault:"3"`

	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile    string `env:"LOG_FILE"`
	LogMaxSize int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`

	MetricsAddr string `env:"METRICS_ADDR"`

	// PermLevels is the compiled permission ladder.
	PermLevels []permission.Level `env:"-"`
}

// Load reads .env files (if any), the environment and the permissions file.
// A missing token is only an error when requireToken is set, so offline
// checks can run without credentials.
func Load(requireToken bool, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if requireToken && cfg.DiscordToken == "" {
		return nil, errors.New("DISCORD_TOKEN is not set")
	}
	if cfg.StorageDriver != "json" && cfg.StorageDriver != "sqlite" {
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	rules, err := LoadRules(cfg.PermissionsFile)
	if err != nil {
		return nil, err
	}
	levels, err := permission.Compile(rules, cfg.Principals())
	if err != nil {
		return nil, fmt.Errorf("compile permissions: %w", err)
	}
	cfg.PermLevels = levels
	return cfg, nil
}

// Principals returns the bot-wide identities permission rules refer to.
func (c *Config) Principals() permission.Principals {
	return permission.Principals{
		OwnerID: c.OwnerID,
		Admins:  slices.Clone(c.Admins),
		Support: slices.Clone(c.Support),
	}
}
