package attendance

import (
	"strings"
	"time"
)

// Login is one attendance mark as seen from the user's side.
type Login struct {
	LoginTime time.Time `json:"loginTime" bson:"login_time"`
	Duration  int       `json:"duration" bson:"duration"` // seconds
	SessionID string    `json:"sessionId" bson:"session_id"`
}

// User is a team member. Names are not unique.
type User struct {
	ID               string    `json:"userId" bson:"_id"`
	Name             string    `json:"name" bson:"name"`
	NameKey          string    `json:"-" bson:"name_key"`
	Email            string    `json:"email" bson:"email"`
	Logins           []Login   `json:"logins" bson:"logins"`
	TotalLogins      int       `json:"totalLogins" bson:"total_logins"`
	TotalMinutes     int       `json:"totalMinutes" bson:"total_minutes"`
	MissedAttendance int       `json:"missedAttendance" bson:"missed_attendance"`
	CreatedAt        time.Time `json:"createdAt" bson:"created_at"`
}

// UserUpdate carries the admin-editable fields of a user; nil means unchanged.
type UserUpdate struct {
	Name             *string
	Email            *string
	MissedAttendance *int
}

// SessionStatus is the stored lifecycle tag of a session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

// Attendee is one entry in a session roster.
type Attendee struct {
	UserID   string    `json:"userId" bson:"user_id"`
	Name     string    `json:"name" bson:"name"`
	NameKey  string    `json:"-" bson:"name_key"`
	MarkedAt time.Time `json:"markedAt" bson:"marked_at"`
}

// Session is one attendance window instance.
type Session struct {
	ID                string        `json:"sessionId" bson:"_id"`
	Name              string        `json:"name" bson:"name"`
	Description       string        `json:"description" bson:"description"`
	StartTime         time.Time     `json:"startTime" bson:"start_time"`
	Duration          int           `json:"duration" bson:"duration"` // seconds
	IsOpen            bool          `json:"isOpen" bson:"is_open"`
	ExpectedAttendees []string      `json:"expectedAttendees" bson:"expected_attendees"`
	Status            SessionStatus `json:"status" bson:"status"`
	CreatedBy         string        `json:"createdBy" bson:"created_by"`
	Attendees         []Attendee    `json:"attendees" bson:"attendees"`
}

// Expired reports whether more than Duration seconds have passed since StartTime.
func (s Session) Expired(now time.Time) bool {
	return now.Sub(s.StartTime) > time.Duration(s.Duration)*time.Second
}

// Remaining returns the whole seconds left in the window, never negative.
func (s Session) Remaining(now time.Time) int {
	left := time.Duration(s.Duration)*time.Second - now.Sub(s.StartTime)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// HasAttendee reports whether name (case-insensitive) is already on the roster.
func (s Session) HasAttendee(name string) bool {
	key := NameKey(name)
	for _, a := range s.Attendees {
		if a.NameKey == key || NameKey(a.Name) == key {
			return true
		}
	}
	return false
}

// SessionView is a session plus its read-time window state.
type SessionView struct {
	Session
	Expired          bool `json:"expired"`
	RemainingSeconds int  `json:"remainingSeconds"`
}

// View renders the session as observed at now.
func (s Session) View(now time.Time) SessionView {
	if s.ExpectedAttendees == nil {
		s.ExpectedAttendees = []string{}
	}
	if s.Attendees == nil {
		s.Attendees = []Attendee{}
	}
	return SessionView{Session: s, Expired: s.Expired(now), RemainingSeconds: s.Remaining(now)}
}

// DefaultSessionDuration is the session length in minutes used until an admin changes it.
const DefaultSessionDuration = 5

// Settings is the singleton configuration record.
type Settings struct {
	SessionDuration           int    `json:"sessionDuration" bson:"session_duration"` // minutes
	DefaultSessionName        string `json:"defaultSessionName" bson:"default_session_name"`
	DefaultSessionDescription string `json:"defaultSessionDescription" bson:"default_session_description"`
}

// EntryStatus classifies a mark inside a daily attendance window.
type EntryStatus string

const (
	EntryPresent EntryStatus = "present"
	EntryLate    EntryStatus = "late"
	EntryAbsent  EntryStatus = "absent"
)

// AttendanceEntry is one user's status inside an AttendanceSession.
type AttendanceEntry struct {
	UserID   string      `json:"userId" bson:"user_id"`
	Name     string      `json:"name" bson:"name"`
	MarkedAt time.Time   `json:"markedAt" bson:"marked_at"`
	Status   EntryStatus `json:"status" bson:"status"`
}

// AttendanceSession is a daily attendance window started from the admin dashboard.
// It is not linked to Session records.
type AttendanceSession struct {
	ID        string            `json:"id" bson:"_id"`
	StartTime time.Time         `json:"startTime" bson:"start_time"`
	EndTime   time.Time         `json:"endTime" bson:"end_time"`
	CreatedBy string            `json:"createdBy" bson:"created_by"`
	Attendees []AttendanceEntry `json:"attendees" bson:"attendees"`
}

// Active reports whether the window is still open at now.
func (w AttendanceSession) Active(now time.Time) bool {
	return !now.After(w.EndTime)
}

// AttendanceSessionView adds the read-time active flag.
type AttendanceSessionView struct {
	AttendanceSession
	IsActive bool `json:"isActive"`
}

// View renders the window as observed at now.
func (w AttendanceSession) View(now time.Time) AttendanceSessionView {
	if w.Attendees == nil {
		w.Attendees = []AttendanceEntry{}
	}
	return AttendanceSessionView{AttendanceSession: w, IsActive: w.Active(now)}
}

// NameKey normalises a display name for case-insensitive matching.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
