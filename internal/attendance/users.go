package attendance

import (
	"context"
	"errors"
	"net/mail"
	"sort"
	"strings"
	"time"
)

// StatsWindow is how far back user statistics look.
const StatsWindow = 30 * 24 * time.Hour

// UserStats summarises a user's attendance over StatsWindow.
type UserStats struct {
	TotalSessions    int        `json:"totalSessions"`
	AttendedSessions int        `json:"attendedSessions"`
	MissedSessions   int        `json:"missedSessions"`
	MissedAttendance int        `json:"missedAttendance"`
	TotalPenalty     int        `json:"totalPenalty"`
	AttendanceRate   float64    `json:"attendanceRate"`
	LastAttendance   *time.Time `json:"lastAttendance"`
}

// CreateUser registers a member. Names are not unique; every call yields a new id.
func (s *Service) CreateUser(ctx context.Context, name, email string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, invalid("name is required")
	}
	email = strings.TrimSpace(email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return User{}, invalid("email is invalid")
		}
	}
	u := s.newUser(name, strings.ToLower(email))
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUser returns a user or ErrUserNotFound.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// ListUsers returns all users ordered by name.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// UpdateUser applies an admin edit.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return User{}, invalid("name is required")
		}
		upd.Name = &trimmed
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return User{}, invalid("email is invalid")
		}
		upd.Email = &email
	}
	if upd.MissedAttendance != nil && *upd.MissedAttendance < 0 {
		return User{}, invalid("missed attendance cannot be negative")
	}
	if upd.Name == nil && upd.Email == nil && upd.MissedAttendance == nil {
		return User{}, invalid("name is required")
	}
	u, err := s.repo.UpdateUser(ctx, id, upd)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// DeleteUser removes a user or returns ErrUserNotFound.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	err := s.repo.DeleteUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// ResetUser clears a user's logins and running totals.
func (s *Service) ResetUser(ctx context.Context, id string) error {
	err := s.repo.ResetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// History returns a user's logins newest first. Unknown users have an empty history.
func (s *Service) History(ctx context.Context, userID string) ([]Login, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("userId parameter is required")
	}
	u, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return []Login{}, nil
	}
	if err != nil {
		return nil, err
	}
	logins := append([]Login(nil), u.Logins...)
	sort.SliceStable(logins, func(i, j int) bool {
		return logins[i].LoginTime.After(logins[j].LoginTime)
	})
	if logins == nil {
		logins = []Login{}
	}
	return logins, nil
}

// Stats computes a user's attendance summary and penalty.
func (s *Service) Stats(ctx context.Context, userID string) (UserStats, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	since := s.Now().Add(-StatsWindow)
	total, err := s.repo.CountSessionsSince(ctx, since)
	if err != nil {
		return UserStats{}, err
	}

	st := UserStats{
		TotalSessions:    total,
		MissedAttendance: u.MissedAttendance,
		TotalPenalty:     Penalty(u.MissedAttendance),
	}
	for _, l := range u.Logins {
		if !l.LoginTime.Before(since) {
			st.AttendedSessions++
		}
		if st.LastAttendance == nil || l.LoginTime.After(*st.LastAttendance) {
			t := l.LoginTime
			st.LastAttendance = &t
		}
	}
	if st.MissedSessions = total - st.AttendedSessions; st.MissedSessions < 0 {
		st.MissedSessions = 0
	}
	if total > 0 {
		st.AttendanceRate = float64(st.AttendedSessions) / float64(total) * 100
		if st.AttendanceRate > 100 {
			st.AttendanceRate = 100
		}
	}
	return st, nil
}
