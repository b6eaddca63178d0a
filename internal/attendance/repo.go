package attendance

import (
	"context"
	"time"
)

// UserStore persists team members.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	// FindUserByName matches nameKey exactly; the oldest user wins when names collide.
	FindUserByName(ctx context.Context, nameKey string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id string) error
	// AppendLogin adds l to the user's logins and bumps totalLogins by one and
	// totalMinutes by l.Duration/60.
	AppendLogin(ctx context.Context, userID string, l Login) error
	ResetUser(ctx context.Context, id string) error
}

// SessionStore persists attendance sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error
	// AddAttendee inserts a unless an attendee with the same NameKey exists, in which
	// case it returns ErrAlreadyMarked. The check and insert are a single atomic step.
	AddAttendee(ctx context.Context, sessionID string, a Attendee) error
	CountSessionsSince(ctx context.Context, since time.Time) (int, error)
}

// SettingsStore persists the singleton settings record.
type SettingsStore interface {
	// GetOrCreateSettings returns the stored settings, inserting defaults first if none exist.
	GetOrCreateSettings(ctx context.Context, defaults Settings) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// WindowStore persists daily attendance windows.
type WindowStore interface {
	CreateWindow(ctx context.Context, w AttendanceSession) error
	ListWindows(ctx context.Context, from, to time.Time) ([]AttendanceSession, error)
	// LatestWindowBefore returns the most recent window with StartTime <= at.
	LatestWindowBefore(ctx context.Context, at time.Time) (AttendanceSession, error)
	// AddWindowEntry is a no-op when the user already has an entry in the window.
	AddWindowEntry(ctx context.Context, windowID string, e AttendanceEntry) error
}

// Repository is everything the attendance service needs from storage.
type Repository interface {
	UserStore
	SessionStore
	SettingsStore
	WindowStore
}
