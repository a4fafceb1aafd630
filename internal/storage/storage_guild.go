package storage

// Channel returns the channel configured for kind (e.g. "logs") in a guild.
func (s *Storage) Channel(guildID, kind string) (string, bool, error) {
	record, err := s.read(guildID)
	if err != nil {
		return "", false, err
	}
	id, ok := record.Channels[kind]
	return id, ok && id != "", nil
}

// SetChannel configures the channel for kind. An empty channelID clears it.
func (s *Storage) SetChannel(guildID, kind, channelID string) error {
	return s.update(guildID, func(r *Record) {
		if channelID == "" {
			delete(r.Channels, kind)
			return
		}
		r.Channels[kind] = channelID
	})
}

// Role returns the role configured for kind (e.g. "welcome") in a guild.
func (s *Storage) Role(guildID, kind string) (string, bool, error) {
	record, err := s.read(guildID)
	if err != nil {
		return "", false, err
	}
	id, ok := record.Roles[kind]
	return id, ok && id != "", nil
}

// SetRole configures the role for kind. An empty roleID clears it.
func (s *Storage) SetRole(guildID, kind, roleID string) error {
	return s.update(guildID, func(r *Record) {
		if roleID == "" {
			delete(r.Roles, kind)
			return
		}
		r.Roles[kind] = roleID
	})
}
