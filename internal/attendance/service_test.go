package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []attendance.MarkedEvent
}

func (r *recorder) AttendanceMarked(_ context.Context, evt attendance.MarkedEvent) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func newService(t *testing.T) (*attendance.Service, *store.Memory, *clock, *recorder) {
	t.Helper()
	mem := store.NewMemory()
	clk := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	svc := attendance.NewService(mem, attendance.WithClock(clk.Now), attendance.WithNotifier(rec))
	return svc, mem, clk, rec
}

func boolPtr(b bool) *bool { return &b }

func TestCreateSessionDurationInSeconds(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	for _, minutes := range []int{1, 5, 17, 90} {
		sess, err := svc.CreateSession(ctx, attendance.NewSession{Name: "standup", DurationMinutes: minutes}, "admin-1")
		if err != nil {
			t.Fatalf("create %d: %v", minutes, err)
		}
		if sess.Duration != minutes*60 {
			t.Fatalf("duration = %d, want %d", sess.Duration, minutes*60)
		}
		if sess.Status != attendance.StatusActive || !sess.IsOpen {
			t.Fatalf("unexpected defaults: %+v", sess)
		}
	}
}

func TestCreateSessionDurationBounds(t *testing.T) {
	svc, _, clk, _ := newService(t)
	ctx := context.Background()
	for _, minutes := range []int{-1, attendance.MaxDurationMinutes + 1, 200000000} {
		if _, err := svc.CreateSession(ctx, attendance.NewSession{Name: "long", DurationMinutes: minutes}, "a"); !attendance.IsValidation(err) {
			t.Fatalf("duration %d: got %v, want validation error", minutes, err)
		}
	}

	sess, err := svc.CreateSession(ctx, attendance.NewSession{Name: "year", DurationMinutes: attendance.MaxDurationMinutes}, "a")
	if err != nil {
		t.Fatal(err)
	}
	clk.Advance(364 * 24 * time.Hour)
	if sess.Expired(clk.Now()) {
		t.Fatal("year-long session expired early")
	}
	if _, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Ada"}); err != nil {
		t.Fatalf("mark in long session: %v", err)
	}
}

func TestCreateSessionDefaults(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	name := "Daily"
	desc := "morning check-in"
	if _, err := svc.UpdateSettings(ctx, attendance.SettingsUpdate{
		SessionDuration:           7,
		DefaultSessionName:        &name,
		DefaultSessionDescription: &desc,
	}); err != nil {
		t.Fatal(err)
	}

	sess, err := svc.CreateSession(ctx, attendance.NewSession{}, "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Duration != 7*60 || sess.Name != "Daily" || sess.Description != "morning check-in" {
		t.Fatalf("defaults not applied: %+v", sess)
	}

	if _, err := svc.CreateSession(ctx, attendance.NewSession{DurationMinutes: -1}, "admin-1"); !attendance.IsValidation(err) {
		t.Fatalf("negative duration: got %v, want validation error", err)
	}
}

func TestCreateSessionExpectedOnlyWhenClosed(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	open, err := svc.CreateSession(ctx, attendance.NewSession{DurationMinutes: 5, ExpectedAttendees: []string{"Ada"}}, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(open.ExpectedAttendees) != 0 {
		t.Fatalf("open session kept expected list: %v", open.ExpectedAttendees)
	}
	closed, err := svc.CreateSession(ctx, attendance.NewSession{
		DurationMinutes:   5,
		IsOpen:            boolPtr(false),
		ExpectedAttendees: []string{" Ada ", "", "Grace"},
	}, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(closed.ExpectedAttendees) != 2 || closed.ExpectedAttendees[0] != "Ada" {
		t.Fatalf("expected list = %v", closed.ExpectedAttendees)
	}
}

func TestMarkTwiceIsRejected(t *testing.T) {
	svc, mem, _, rec := newService(t)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx, attendance.NewSession{Name: "s", DurationMinutes: 5}, "a")

	first, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Ada Lovelace"})
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	_, err = svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "ada lovelace "})
	if !errors.Is(err, attendance.ErrAlreadyMarked) {
		t.Fatalf("second mark: got %v, want ErrAlreadyMarked", err)
	}

	got, _ := mem.GetSession(ctx, sess.ID)
	if len(got.Attendees) != 1 {
		t.Fatalf("attendees = %d, want 1", len(got.Attendees))
	}
	u, err := mem.GetUser(ctx, first.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if u.TotalLogins != 1 || u.TotalMinutes != 5 || len(u.Logins) != 1 || u.Logins[0].Duration != 300 {
		t.Fatalf("login totals wrong: %+v", u)
	}
	if len(rec.events) != 1 || rec.events[0].UserID != first.UserID {
		t.Fatalf("notifier events = %+v", rec.events)
	}
}

func TestMarkReusesExistingUser(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	u, _ := svc.CreateUser(ctx, "Grace", "")
	s1, _ := svc.CreateSession(ctx, attendance.NewSession{Name: "one", DurationMinutes: 5}, "a")
	s2, _ := svc.CreateSession(ctx, attendance.NewSession{Name: "two", DurationMinutes: 10}, "a")

	for _, s := range []attendance.Session{s1, s2} {
		res, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: s.ID, Name: "GRACE"})
		if err != nil {
			t.Fatal(err)
		}
		if res.UserID != u.ID {
			t.Fatalf("mark went to %s, want %s", res.UserID, u.ID)
		}
	}
	got, _ := svc.GetUser(ctx, u.ID)
	if got.TotalLogins != 2 || got.TotalMinutes != 15 {
		t.Fatalf("totals = %d logins, %d minutes", got.TotalLogins, got.TotalMinutes)
	}
}

func TestMarkExpiredSession(t *testing.T) {
	svc, _, clk, _ := newService(t)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx, attendance.NewSession{Name: "s", DurationMinutes: 1}, "a")

	clk.Advance(time.Minute)
	if _, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "on time"}); err != nil {
		t.Fatalf("mark at the boundary: %v", err)
	}
	clk.Advance(time.Millisecond)
	_, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "late"})
	if !errors.Is(err, attendance.ErrSessionExpired) {
		t.Fatalf("got %v, want ErrSessionExpired", err)
	}
	// expiry wins over every other check
	_, err = svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "on time"})
	if !errors.Is(err, attendance.ErrSessionExpired) {
		t.Fatalf("duplicate on expired session: got %v", err)
	}
}

func TestMarkValidation(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: "x", Name: "  "}); !attendance.IsValidation(err) {
		t.Fatalf("blank name: got %v", err)
	}
	_, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: "missing", Name: "Ada"})
	if !errors.Is(err, attendance.ErrNotFound) {
		t.Fatalf("unknown session: got %v", err)
	}
}

func TestMarkClosedSession(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx, attendance.NewSession{
		Name:              "closed",
		DurationMinutes:   5,
		IsOpen:            boolPtr(false),
		ExpectedAttendees: []string{"Ada"},
	}, "a")

	_, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Ada"})
	if !errors.Is(err, attendance.ErrNotRegistered) {
		t.Fatalf("anonymous: got %v, want ErrNotRegistered", err)
	}
	_, err = svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Ada", UserID: "ghost"})
	if !errors.Is(err, attendance.ErrNotRegistered) {
		t.Fatalf("unknown user: got %v, want ErrNotRegistered", err)
	}

	u, _ := svc.CreateUser(ctx, "Ada", "ada@example.com")
	res, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Ada", UserID: u.ID})
	if err != nil {
		t.Fatalf("registered: %v", err)
	}
	if res.UserID != u.ID {
		t.Fatalf("mark recorded for %s", res.UserID)
	}
	r, _ := svc.Roster(ctx, sess.ID)
	if r.Present != 1 || r.Absent != 0 {
		t.Fatalf("roster = %+v", r)
	}
}

func TestMarkClosedSessionRecordsTokenUser(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx, attendance.NewSession{
		Name:              "closed",
		DurationMinutes:   5,
		IsOpen:            boolPtr(false),
		ExpectedAttendees: []string{"Ada", "Grace"},
	}, "a")
	ada, _ := svc.CreateUser(ctx, "Ada", "")
	grace, _ := svc.CreateUser(ctx, "Grace", "")

	if _, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Ada", UserID: ada.ID}); err != nil {
		t.Fatal(err)
	}
	// Grace typing Ada's name is still Grace's own mark.
	res, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Ada", UserID: grace.ID})
	if err != nil {
		t.Fatalf("second member: %v", err)
	}
	if res.UserID != grace.ID || res.Name != "Grace" {
		t.Fatalf("recorded %+v, want Grace", res)
	}
	if _, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Grace", UserID: grace.ID}); !errors.Is(err, attendance.ErrAlreadyMarked) {
		t.Fatalf("repeat: got %v, want ErrAlreadyMarked", err)
	}
	r, _ := svc.Roster(ctx, sess.ID)
	if r.Present != 2 || r.Absent != 0 {
		t.Fatalf("roster = %+v", r)
	}
}

func TestConcurrentMarksRecordOnce(t *testing.T) {
	svc, mem, _, _ := newService(t)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx, attendance.NewSession{Name: "race", DurationMinutes: 5}, "a")

	const n = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, dup := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Same Name"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, attendance.ErrAlreadyMarked):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || dup != n-1 {
		t.Fatalf("ok=%d dup=%d, want 1 and %d", ok, dup, n-1)
	}
	got, _ := mem.GetSession(ctx, sess.ID)
	if len(got.Attendees) != 1 {
		t.Fatalf("attendees = %d, want 1", len(got.Attendees))
	}
	users, _ := mem.ListUsers(ctx)
	if len(users) != 1 || users[0].TotalLogins != 1 {
		t.Fatalf("users = %+v", users)
	}
}

func TestCreateUserSameNameTwice(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	a, err := svc.CreateUser(ctx, "Sam", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.CreateUser(ctx, "Sam", "")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Fatal("same-name users share an id")
	}
	if a.Email == b.Email {
		t.Fatal("placeholder emails should differ")
	}
	if _, err := svc.CreateUser(ctx, "Sam", "not-an-email"); !attendance.IsValidation(err) {
		t.Fatalf("bad email: got %v", err)
	}
	if _, err := svc.CreateUser(ctx, " ", ""); !attendance.IsValidation(err) {
		t.Fatalf("blank name: got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	u, _ := svc.CreateUser(ctx, "Ada", "")

	missed := 3
	got, err := svc.UpdateUser(ctx, u.ID, attendance.UserUpdate{MissedAttendance: &missed})
	if err != nil {
		t.Fatal(err)
	}
	if got.MissedAttendance != 3 || attendance.Penalty(got.MissedAttendance) != 9000 {
		t.Fatalf("missed = %d", got.MissedAttendance)
	}

	neg := -1
	if _, err := svc.UpdateUser(ctx, u.ID, attendance.UserUpdate{MissedAttendance: &neg}); !attendance.IsValidation(err) {
		t.Fatalf("negative missed: got %v", err)
	}
	blank := "  "
	if _, err := svc.UpdateUser(ctx, u.ID, attendance.UserUpdate{Name: &blank}); !attendance.IsValidation(err) {
		t.Fatalf("blank name: got %v", err)
	}
	name := "Ada L"
	if _, err := svc.UpdateUser(ctx, "ghost", attendance.UserUpdate{Name: &name}); !errors.Is(err, attendance.ErrUserNotFound) {
		t.Fatalf("unknown user: got %v", err)
	}
}

func TestHistoryAndReset(t *testing.T) {
	svc, _, clk, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.History(ctx, ""); !attendance.IsValidation(err) {
		t.Fatalf("missing id: got %v", err)
	}
	empty, err := svc.History(ctx, "nobody")
	if err != nil || len(empty) != 0 || empty == nil {
		t.Fatalf("unknown user history = %v, %v", empty, err)
	}

	var userID string
	for i := 0; i < 3; i++ {
		sess, _ := svc.CreateSession(ctx, attendance.NewSession{Name: "s", DurationMinutes: 5}, "a")
		res, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Ada"})
		if err != nil {
			t.Fatal(err)
		}
		userID = res.UserID
		clk.Advance(time.Hour)
	}
	hist, err := svc.History(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 || !hist[0].LoginTime.After(hist[2].LoginTime) {
		t.Fatalf("history not newest first: %+v", hist)
	}

	if err := svc.ResetUser(ctx, userID); err != nil {
		t.Fatal(err)
	}
	u, _ := svc.GetUser(ctx, userID)
	if u.TotalLogins != 0 || u.TotalMinutes != 0 || len(u.Logins) != 0 {
		t.Fatalf("reset left %+v", u)
	}
	if err := svc.ResetUser(ctx, "ghost"); !errors.Is(err, attendance.ErrUserNotFound) {
		t.Fatalf("reset unknown: got %v", err)
	}
}

func TestStats(t *testing.T) {
	svc, _, clk, _ := newService(t)
	ctx := context.Background()

	var userID string
	for i := 0; i < 4; i++ {
		sess, _ := svc.CreateSession(ctx, attendance.NewSession{Name: "s", DurationMinutes: 5}, "a")
		if i%2 == 0 {
			res, err := svc.Mark(ctx, attendance.MarkRequest{SessionID: sess.ID, Name: "Ada"})
			if err != nil {
				t.Fatal(err)
			}
			userID = res.UserID
		}
		clk.Advance(24 * time.Hour)
	}
	missed := 2
	if _, err := svc.UpdateUser(ctx, userID, attendance.UserUpdate{MissedAttendance: &missed}); err != nil {
		t.Fatal(err)
	}

	st, err := svc.Stats(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalSessions != 4 || st.AttendedSessions != 2 || st.MissedSessions != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if st.AttendanceRate != 50 || st.TotalPenalty != 6000 || st.LastAttendance == nil {
		t.Fatalf("stats = %+v", st)
	}

	if _, err := svc.Stats(ctx, "ghost"); !errors.Is(err, attendance.ErrUserNotFound) {
		t.Fatalf("unknown user: got %v", err)
	}
}

func TestSettings(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	s, err := svc.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.SessionDuration != attendance.DefaultSessionDuration {
		t.Fatalf("default duration = %d", s.SessionDuration)
	}
	for _, bad := range []int{0, -3, attendance.MaxDurationMinutes + 1} {
		if _, err := svc.UpdateSettings(ctx, attendance.SettingsUpdate{SessionDuration: bad}); !attendance.IsValidation(err) {
			t.Fatalf("duration %d: got %v", bad, err)
		}
	}
	if _, err := svc.UpdateSettings(ctx, attendance.SettingsUpdate{SessionDuration: 12}); err != nil {
		t.Fatal(err)
	}
	s, _ = svc.Settings(ctx)
	if s.SessionDuration != 12 {
		t.Fatalf("duration = %d, want 12", s.SessionDuration)
	}
}

func TestDeleteSession(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx, attendance.NewSession{Name: "s", DurationMinutes: 5}, "a")
	if err := svc.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteSession(ctx, sess.ID); !errors.Is(err, attendance.ErrSessionNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
	if _, err := svc.GetSession(ctx, sess.ID); !errors.Is(err, attendance.ErrNotFound) {
		t.Fatalf("get deleted: got %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	svc, _, clk, _ := newService(t)
	ctx := context.Background()
	var last string
	for i := 0; i < 3; i++ {
		s, _ := svc.CreateSession(ctx, attendance.NewSession{Name: "s", DurationMinutes: 5}, "a")
		last = s.ID
		clk.Advance(time.Minute)
	}
	list, err := svc.ListSessions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != last {
		t.Fatalf("list = %+v", list)
	}
}
