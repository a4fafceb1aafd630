package storage

import "slices"

// DisableCommand turns a command off for one guild.
func (s *Storage) DisableCommand(guildID, name string) error {
	return s.update(guildID, func(r *Record) {
		if !slices.Contains(r.CommandsDisabled, name) {
			r.CommandsDisabled = append(r.CommandsDisabled, name)
		}
	})
}

// EnableCommand reverses DisableCommand.
func (s *Storage) EnableCommand(guildID, name string) error {
	return s.update(guildID, func(r *Record) {
		r.CommandsDisabled = slices.DeleteFunc(r.CommandsDisabled, func(n string) bool { return n == name })
	})
}

// IsCommandDisabled reports whether name is disabled in the guild.
func (s *Storage) IsCommandDisabled(guildID, name string) (bool, error) {
	record, err := s.read(guildID)
	if err != nil {
		return false, err
	}
	return slices.Contains(record.CommandsDisabled, name), nil
}

// AppendCommandToHistory records an executed command, keeping only the
// most recent entries.
func (s *Storage) AppendCommandToHistory(guildID string, rec CommandHistoryRecord) error {
	return s.update(guildID, func(r *Record) {
		r.CommandsHistory = append(r.CommandsHistory, rec)
		if n := len(r.CommandsHistory); n > commandHistoryLimit {
			r.CommandsHistory = r.CommandsHistory[n-commandHistoryLimit:]
		}
	})
}

// FetchCommandHistory returns the guild's command history, oldest first.
func (s *Storage) FetchCommandHistory(guildID string) ([]CommandHistoryRecord, error) {
	record, err := s.read(guildID)
	if err != nil {
		return nil, err
	}
	return record.CommandsHistory, nil
}
