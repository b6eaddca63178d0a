package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"rollcall/internal/admin"
	"rollcall/internal/attendance"
)

// Memory is a process-local repository for development and tests.
type Memory struct {
	mu       sync.Mutex
	users    map[string]attendance.User
	sessions map[string]attendance.Session
	settings *attendance.Settings
	windows  map[string]attendance.AttendanceSession
	admins   map[string]admin.Admin
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		users:    map[string]attendance.User{},
		sessions: map[string]attendance.Session{},
		windows:  map[string]attendance.AttendanceSession{},
		admins:   map[string]admin.Admin{},
	}
}

func cloneUser(u attendance.User) attendance.User {
	u.Logins = append([]attendance.Login{}, u.Logins...)
	return u
}

func cloneSession(s attendance.Session) attendance.Session {
	s.ExpectedAttendees = append([]string{}, s.ExpectedAttendees...)
	s.Attendees = append([]attendance.Attendee{}, s.Attendees...)
	return s
}

func cloneWindow(w attendance.AttendanceSession) attendance.AttendanceSession {
	w.Attendees = append([]attendance.AttendanceEntry{}, w.Attendees...)
	return w
}

// ---------- users ----------

func (m *Memory) CreateUser(_ context.Context, u attendance.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (attendance.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return attendance.User{}, attendance.ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *Memory) FindUserByName(_ context.Context, nameKey string) (attendance.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *attendance.User
	for _, u := range m.users {
		if u.NameKey != nameKey {
			continue
		}
		if found == nil || u.CreatedAt.Before(found.CreatedAt) {
			u := u
			found = &u
		}
	}
	if found == nil {
		return attendance.User{}, attendance.ErrNotFound
	}
	return cloneUser(*found), nil
}

func (m *Memory) ListUsers(_ context.Context) ([]attendance.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]attendance.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (m *Memory) UpdateUser(_ context.Context, id string, upd attendance.UserUpdate) (attendance.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return attendance.User{}, attendance.ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
		u.NameKey = attendance.NameKey(*upd.Name)
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.MissedAttendance != nil {
		u.MissedAttendance = *upd.MissedAttendance
	}
	m.users[id] = u
	return cloneUser(u), nil
}

func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return attendance.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *Memory) AppendLogin(_ context.Context, userID string, l attendance.Login) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return attendance.ErrNotFound
	}
	u.Logins = append(cloneUser(u).Logins, l)
	u.TotalLogins++
	u.TotalMinutes += l.Duration / 60
	m.users[userID] = u
	return nil
}

func (m *Memory) ResetUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return attendance.ErrNotFound
	}
	u.Logins = []attendance.Login{}
	u.TotalLogins = 0
	u.TotalMinutes = 0
	m.users[id] = u
	return nil
}

// ---------- sessions ----------

func (m *Memory) CreateSession(_ context.Context, s attendance.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (attendance.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return attendance.Session{}, attendance.ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *Memory) ListSessions(_ context.Context, limit int) ([]attendance.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]attendance.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, cloneSession(s))
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	if limit >= 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return attendance.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Memory) AddAttendee(_ context.Context, sessionID string, a attendance.Attendee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return attendance.ErrNotFound
	}
	for _, existing := range s.Attendees {
		if existing.NameKey == a.NameKey {
			return attendance.ErrAlreadyMarked
		}
	}
	s = cloneSession(s)
	s.Attendees = append(s.Attendees, a)
	m.sessions[sessionID] = s
	return nil
}

func (m *Memory) CountSessionsSince(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if !s.StartTime.Before(since) {
			n++
		}
	}
	return n, nil
}

// ---------- settings ----------

func (m *Memory) GetOrCreateSettings(_ context.Context, defaults attendance.Settings) (attendance.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		s := defaults
		m.settings = &s
	}
	return *m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, s attendance.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

// ---------- attendance windows ----------

func (m *Memory) CreateWindow(_ context.Context, w attendance.AttendanceSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[w.ID] = cloneWindow(w)
	return nil
}

func (m *Memory) ListWindows(_ context.Context, from, to time.Time) ([]attendance.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	windows := []attendance.AttendanceSession{}
	for _, w := range m.windows {
		if !w.StartTime.Before(from) && w.StartTime.Before(to) {
			windows = append(windows, cloneWindow(w))
		}
	}
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].StartTime.After(windows[j].StartTime)
	})
	return windows, nil
}

func (m *Memory) LatestWindowBefore(_ context.Context, at time.Time) (attendance.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *attendance.AttendanceSession
	for _, w := range m.windows {
		if w.StartTime.After(at) {
			continue
		}
		if found == nil || w.StartTime.After(found.StartTime) {
			w := w
			found = &w
		}
	}
	if found == nil {
		return attendance.AttendanceSession{}, attendance.ErrNotFound
	}
	return cloneWindow(*found), nil
}

func (m *Memory) AddWindowEntry(_ context.Context, windowID string, e attendance.AttendanceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[windowID]
	if !ok {
		return attendance.ErrNotFound
	}
	for _, existing := range w.Attendees {
		if existing.UserID == e.UserID {
			return nil
		}
	}
	w = cloneWindow(w)
	w.Attendees = append(w.Attendees, e)
	m.windows[windowID] = w
	return nil
}

// ---------- admins ----------

func (m *Memory) CreateAdmin(_ context.Context, a admin.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.admins {
		if existing.Username == a.Username {
			return admin.ErrDuplicate
		}
	}
	m.admins[a.ID] = a
	return nil
}

func (m *Memory) GetAdminByUsername(_ context.Context, username string) (admin.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admins {
		if a.Username == username {
			return a, nil
		}
	}
	return admin.Admin{}, admin.ErrNotFound
}

func (m *Memory) ListAdmins(_ context.Context) ([]admin.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	admins := make([]admin.Admin, 0, len(m.admins))
	for _, a := range m.admins {
		a.PasswordHash = ""
		admins = append(admins, a)
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].Username < admins[j].Username })
	return admins, nil
}

func (m *Memory) CountAdmins(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.admins), nil
}

func (m *Memory) DeleteAdmin(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.admins) <= 1 {
		return admin.ErrLastAdmin
	}
	if _, ok := m.admins[id]; !ok {
		return admin.ErrNotFound
	}
	delete(m.admins, id)
	return nil
}

var (
	_ attendance.Repository = (*Memory)(nil)
	_ admin.Store           = (*Memory)(nil)
	_ attendance.Repository = (*Postgres)(nil)
	_ admin.Store           = (*Postgres)(nil)
	_ attendance.Repository = (*Mongo)(nil)
	_ admin.Store           = (*Mongo)(nil)
)
