package attendance

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// MaxSessionList caps ListSessions.
const MaxSessionList = 50

// MaxDurationMinutes is the longest window a session or the settings default may set (one year).
const MaxDurationMinutes = 525600

// NewSession is the admin payload for creating a session.
type NewSession struct {
	Name              string
	Description       string
	DurationMinutes   int
	IsOpen            *bool
	ExpectedAttendees []string
}

// CreateSession opens a new attendance window starting now.
// A zero duration falls back to the configured default.
func (s *Service) CreateSession(ctx context.Context, in NewSession, createdBy string) (Session, error) {
	if in.DurationMinutes < 0 || in.DurationMinutes > MaxDurationMinutes {
		return Session{}, invalid("duration must be between 1 and %d minutes", MaxDurationMinutes)
	}
	if in.DurationMinutes == 0 || strings.TrimSpace(in.Name) == "" {
		settings, err := s.Settings(ctx)
		if err != nil {
			return Session{}, err
		}
		if in.DurationMinutes == 0 {
			in.DurationMinutes = settings.SessionDuration
		}
		if strings.TrimSpace(in.Name) == "" {
			in.Name = settings.DefaultSessionName
			if strings.TrimSpace(in.Description) == "" {
				in.Description = settings.DefaultSessionDescription
			}
		}
	}

	isOpen := true
	if in.IsOpen != nil {
		isOpen = *in.IsOpen
	}
	expected := []string{}
	if !isOpen {
		for _, name := range in.ExpectedAttendees {
			if name = strings.TrimSpace(name); name != "" {
				expected = append(expected, name)
			}
		}
	}

	sess := Session{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(in.Name),
		Description:       strings.TrimSpace(in.Description),
		StartTime:         s.Now(),
		Duration:          in.DurationMinutes * 60,
		IsOpen:            isOpen,
		ExpectedAttendees: expected,
		Status:            StatusActive,
		CreatedBy:         createdBy,
		Attendees:         []Attendee{},
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 || limit > MaxSessionList {
		limit = MaxSessionList
	}
	return s.repo.ListSessions(ctx, limit)
}

// GetSession returns a session or ErrSessionNotFound.
func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrSessionNotFound
	}
	return sess, err
}

// DeleteSession removes a session or returns ErrSessionNotFound.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	err := s.repo.DeleteSession(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}
