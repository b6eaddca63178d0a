package attendance

import (
	"context"
	"strings"
)

// SettingsUpdate is the admin payload for the settings record.
type SettingsUpdate struct {
	SessionDuration           int
	DefaultSessionName        *string
	DefaultSessionDescription *string
}

// Settings returns the singleton settings, creating it with a 5 minute default if absent.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	return s.repo.GetOrCreateSettings(ctx, Settings{SessionDuration: DefaultSessionDuration})
}

// UpdateSettings validates and stores new settings.
func (s *Service) UpdateSettings(ctx context.Context, upd SettingsUpdate) (Settings, error) {
	if upd.SessionDuration < 1 {
		return Settings{}, invalid("session duration must be a number greater than 0")
	}
	if upd.SessionDuration > MaxDurationMinutes {
		return Settings{}, invalid("session duration must be at most %d minutes", MaxDurationMinutes)
	}
	cur, err := s.Settings(ctx)
	if err != nil {
		return Settings{}, err
	}
	cur.SessionDuration = upd.SessionDuration
	if upd.DefaultSessionName != nil {
		cur.DefaultSessionName = strings.TrimSpace(*upd.DefaultSessionName)
	}
	if upd.DefaultSessionDescription != nil {
		cur.DefaultSessionDescription = strings.TrimSpace(*upd.DefaultSessionDescription)
	}
	if err := s.repo.SaveSettings(ctx, cur); err != nil {
		return Settings{}, err
	}
	return cur, nil
}
