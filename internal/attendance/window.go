package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// StartWindow opens a daily attendance window lasting the configured session duration.
func (s *Service) StartWindow(ctx context.Context, createdBy string) (AttendanceSession, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return AttendanceSession{}, err
	}
	now := s.Now()
	w := AttendanceSession{
		ID:        uuid.NewString(),
		StartTime: now,
		EndTime:   now.Add(time.Duration(settings.SessionDuration) * time.Minute),
		CreatedBy: createdBy,
		Attendees: []AttendanceEntry{},
	}
	if err := s.repo.CreateWindow(ctx, w); err != nil {
		return AttendanceSession{}, err
	}
	return w, nil
}

// ListWindows returns the windows started on day (UTC), newest first.
func (s *Service) ListWindows(ctx context.Context, day time.Time) ([]AttendanceSession, error) {
	from := dayStart(day)
	return s.repo.ListWindows(ctx, from, from.Add(24*time.Hour))
}

// ProjectMark files a recorded mark into the latest window opened earlier the same day.
// Marks inside the window count as present, later ones as late. It reports whether an
// entry was written.
func (s *Service) ProjectMark(ctx context.Context, evt MarkedEvent) (bool, error) {
	w, err := s.repo.LatestWindowBefore(ctx, evt.MarkedAt)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !dayStart(w.StartTime).Equal(dayStart(evt.MarkedAt)) {
		return false, nil
	}
	status := EntryPresent
	if evt.MarkedAt.After(w.EndTime) {
		status = EntryLate
	}
	entry := AttendanceEntry{
		UserID:   evt.UserID,
		Name:     evt.Name,
		MarkedAt: evt.MarkedAt,
		Status:   status,
	}
	if err := s.repo.AddWindowEntry(ctx, w.ID, entry); err != nil {
		return false, err
	}
	return true, nil
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
