// Package storage holds per-guild records handlers query mid-dispatch:
// channels and roles tagged by purpose ("logs", "welcome"), disabled
// commands and a bounded command history.
package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/guild-warden/internal/datastore"
)

const commandHistoryLimit = 50

// Backend is the key/value persistence a Storage sits on.
type Backend interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Close() error
}

// Storage serialises read-modify-write cycles on guild records.
type Storage struct {
	mu      sync.Mutex
	backend Backend
}

// CommandHistoryRecord is one executed command.
type CommandHistoryRecord struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Command   string    `json:"command"`
	Args      []string  `json:"args,omitempty"`
	Datetime  time.Time `json:"datetime"`
}

// Record is everything stored for one guild.
type Record struct {
	Channels         map[string]string      `json:"channels"`
	Roles            map[string]string      `json:"roles"`
	CommandsDisabled []string               `json:"commands_disabled"`
	CommandsHistory  []CommandHistoryRecord `json:"cmd_history"`
}

// New wraps a backend.
func New(b Backend) *Storage {
	return &Storage{backend: b}
}

// Open opens the backend selected by driver ("json" or "sqlite") at path.
func Open(driver, path string, logger zerolog.Logger) (*Storage, error) {
	switch driver {
	case "", "json":
		cfg := datastore.DefaultConfig(path)
		cfg.Logger = logger
		ds, err := datastore.NewWithConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("open datastore: %w", err)
		}
		return New(ds), nil
	case "sqlite":
		b, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return New(b), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// Close closes the backend.
func (s *Storage) Close() error {
	return s.backend.Close()
}

func (s *Storage) load(guildID string) (*Record, error) {
	raw, ok, err := s.backend.Get(guildID)
	if err != nil {
		return nil, fmt.Errorf("read guild %s: %w", guildID, err)
	}
	record := &Record{}
	if ok {
		if err := json.Unmarshal(raw, record); err != nil {
			return nil, fmt.Errorf("decode guild %s: %w", guildID, err)
		}
	}
	if record.Channels == nil {
		record.Channels = map[string]string{}
	}
	if record.Roles == nil {
		record.Roles = map[string]string{}
	}
	return record, nil
}

func (s *Storage) save(guildID string, record *Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode guild %s: %w", guildID, err)
	}
	if err := s.backend.Put(guildID, raw); err != nil {
		return fmt.Errorf("write guild %s: %w", guildID, err)
	}
	return nil
}

// read loads a guild record under the lock.
func (s *Storage) read(guildID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(guildID)
}

// update applies fn to a guild record and writes it back.
func (s *Storage) update(guildID string, fn func(r *Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.load(guildID)
	if err != nil {
		return err
	}
	fn(record)
	return s.save(guildID, record)
}
