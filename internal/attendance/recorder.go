package attendance

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// MarkRequest is a member's attempt to mark presence in a session.
type MarkRequest struct {
	SessionID string
	Name      string
	// UserID is the caller's verified identity, empty when no valid member token was sent.
	UserID string
}

// MarkResult identifies the user the mark was recorded for.
type MarkResult struct {
	UserID   string
	Name     string
	Attendee Attendee
}

// Mark records attendance for req.Name in req.SessionID.
//
// Checks run in order: session exists, window still open, then either the submitted
// name is not yet on the roster (open sessions) or the caller is registered and not yet
// marked (closed sessions, where the caller's own name is recorded). The roster slot is claimed atomically
// before the user record is created or credited, so concurrent duplicates cannot both land.
func (s *Service) Mark(ctx context.Context, req MarkRequest) (MarkResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return MarkResult{}, invalid("name is required")
	}

	sess, err := s.GetSession(ctx, req.SessionID)
	if err != nil {
		return MarkResult{}, err
	}
	now := s.Now()
	if sess.Expired(now) {
		return MarkResult{}, ErrSessionExpired
	}
	if sess.IsOpen && sess.HasAttendee(name) {
		return MarkResult{}, ErrAlreadyMarked
	}

	user, isNew, err := s.resolveUser(ctx, sess, name, req.UserID)
	if err != nil {
		return MarkResult{}, err
	}

	attendee := Attendee{
		UserID:   user.ID,
		Name:     user.Name,
		NameKey:  NameKey(user.Name),
		MarkedAt: now,
	}
	if err := s.repo.AddAttendee(ctx, sess.ID, attendee); err != nil {
		if errors.Is(err, ErrNotFound) {
			return MarkResult{}, ErrSessionNotFound
		}
		return MarkResult{}, err
	}

	if isNew {
		if err := s.repo.CreateUser(ctx, user); err != nil {
			return MarkResult{}, err
		}
	}
	login := Login{LoginTime: now, Duration: sess.Duration, SessionID: sess.ID}
	if err := s.repo.AppendLogin(ctx, user.ID, login); err != nil {
		return MarkResult{}, err
	}

	if s.notify != nil {
		s.notify.AttendanceMarked(ctx, MarkedEvent{
			SessionID: sess.ID,
			UserID:    user.ID,
			Name:      user.Name,
			MarkedAt:  now,
		})
	}
	return MarkResult{UserID: user.ID, Name: user.Name, Attendee: attendee}, nil
}

// resolveUser finds the user a mark belongs to. Open sessions match by name and
// prepare a fresh user when nobody matches; closed sessions require a known caller.
func (s *Service) resolveUser(ctx context.Context, sess Session, name, callerID string) (User, bool, error) {
	if !sess.IsOpen {
		if callerID == "" {
			return User{}, false, ErrNotRegistered
		}
		user, err := s.repo.GetUser(ctx, callerID)
		if errors.Is(err, ErrNotFound) {
			return User{}, false, ErrNotRegistered
		}
		if err != nil {
			return User{}, false, err
		}
		if sess.HasAttendee(user.Name) {
			return User{}, false, ErrAlreadyMarked
		}
		return user, false, nil
	}

	user, err := s.repo.FindUserByName(ctx, NameKey(name))
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, err
	}
	return s.newUser(name, ""), true, nil
}

func (s *Service) newUser(name, email string) User {
	id := uuid.NewString()
	if email == "" {
		email = placeholderEmail(name, id)
	}
	return User{
		ID:        id,
		Name:      name,
		NameKey:   NameKey(name),
		Email:     email,
		Logins:    []Login{},
		CreatedAt: s.Now(),
	}
}

// placeholderEmail derives a unique address for users who never gave one.
func placeholderEmail(name, id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '-' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), ".") {
				b.WriteByte('.')
			}
		}
	}
	slug := strings.Trim(b.String(), ".")
	if slug == "" {
		slug = "member"
	}
	return slug + "." + id[:8] + "@attendance.local"
}
