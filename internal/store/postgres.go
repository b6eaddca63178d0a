package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"rollcall/internal/admin"
	"rollcall/internal/attendance"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Postgres persists everything in Postgres.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a repository on an open pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func notFoundIfNoRows(err error, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

// ---------- users ----------

const userColumns = `id, name, name_key, email, total_logins, total_minutes, missed_attendance, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (attendance.User, error) {
	var u attendance.User
	err := row.Scan(&u.ID, &u.Name, &u.NameKey, &u.Email, &u.TotalLogins, &u.TotalMinutes, &u.MissedAttendance, &u.CreatedAt)
	return u, err
}

// CreateUser inserts a user with its initial logins.
func (p *Postgres) CreateUser(ctx context.Context, u attendance.User) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, name, name_key, email, total_logins, total_minutes, missed_attendance, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, u.ID, u.Name, u.NameKey, u.Email, u.TotalLogins, u.TotalMinutes, u.MissedAttendance, u.CreatedAt); err != nil {
		return err
	}
	for _, l := range u.Logins {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_logins (user_id, login_time, duration, session_id) VALUES ($1,$2,$3,$4)
		`, u.ID, l.LoginTime, l.Duration, l.SessionID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetUser returns a user with logins.
func (p *Postgres) GetUser(ctx context.Context, id string) (attendance.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return attendance.User{}, notFoundIfNoRows(err, attendance.ErrNotFound)
	}
	return p.withLogins(ctx, u)
}

// FindUserByName returns the oldest user whose normalised name is nameKey.
func (p *Postgres) FindUserByName(ctx context.Context, nameKey string) (attendance.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE name_key = $1 ORDER BY created_at ASC LIMIT 1
	`, nameKey))
	if err != nil {
		return attendance.User{}, notFoundIfNoRows(err, attendance.ErrNotFound)
	}
	return p.withLogins(ctx, u)
}

func (p *Postgres) withLogins(ctx context.Context, u attendance.User) (attendance.User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT login_time, duration, session_id FROM user_logins WHERE user_id = $1 ORDER BY id
	`, u.ID)
	if err != nil {
		return attendance.User{}, err
	}
	defer rows.Close()
	u.Logins = []attendance.Login{}
	for rows.Next() {
		var l attendance.Login
		if err := rows.Scan(&l.LoginTime, &l.Duration, &l.SessionID); err != nil {
			return attendance.User{}, err
		}
		u.Logins = append(u.Logins, l)
	}
	return u, rows.Err()
}

// ListUsers returns all users ordered by name, logins included.
func (p *Postgres) ListUsers(ctx context.Context) ([]attendance.User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name, created_at`)
	if err != nil {
		return nil, err
	}
	var users []attendance.User
	index := map[string]int{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		u.Logins = []attendance.Login{}
		index[u.ID] = len(users)
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lrows, err := p.db.QueryContext(ctx, `SELECT user_id, login_time, duration, session_id FROM user_logins ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer lrows.Close()
	for lrows.Next() {
		var userID string
		var l attendance.Login
		if err := lrows.Scan(&userID, &l.LoginTime, &l.Duration, &l.SessionID); err != nil {
			return nil, err
		}
		if i, ok := index[userID]; ok {
			users[i].Logins = append(users[i].Logins, l)
		}
	}
	if users == nil {
		users = []attendance.User{}
	}
	return users, lrows.Err()
}

// UpdateUser applies the non-nil fields of upd.
func (p *Postgres) UpdateUser(ctx context.Context, id string, upd attendance.UserUpdate) (attendance.User, error) {
	var name, nameKey, email sql.NullString
	var missed sql.NullInt64
	if upd.Name != nil {
		name = sql.NullString{String: *upd.Name, Valid: true}
		nameKey = sql.NullString{String: attendance.NameKey(*upd.Name), Valid: true}
	}
	if upd.Email != nil {
		email = sql.NullString{String: *upd.Email, Valid: true}
	}
	if upd.MissedAttendance != nil {
		missed = sql.NullInt64{Int64: int64(*upd.MissedAttendance), Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET
			name = COALESCE($2, name),
			name_key = COALESCE($3, name_key),
			email = COALESCE($4, email),
			missed_attendance = COALESCE($5, missed_attendance)
		WHERE id = $1
	`, id, name, nameKey, email, missed)
	if err != nil {
		return attendance.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.User{}, attendance.ErrNotFound
	}
	return p.GetUser(ctx, id)
}

// DeleteUser removes a user and, by cascade, its logins.
func (p *Postgres) DeleteUser(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

// AppendLogin records a login and bumps the running totals in one transaction.
func (p *Postgres) AppendLogin(ctx context.Context, userID string, l attendance.Login) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET total_logins = total_logins + 1, total_minutes = total_minutes + $2
		WHERE id = $1
	`, userID, l.Duration/60)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_logins (user_id, login_time, duration, session_id) VALUES ($1,$2,$3,$4)
	`, userID, l.LoginTime, l.Duration, l.SessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// ResetUser clears logins and totals.
func (p *Postgres) ResetUser(ctx context.Context, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE users SET total_logins = 0, total_minutes = 0 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_logins WHERE user_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ---------- sessions ----------

const sessionColumns = `id, name, description, start_time, duration, is_open, expected_attendees, status, created_by`

func scanSession(row rowScanner) (attendance.Session, error) {
	var s attendance.Session
	var expected []byte
	var status string
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.StartTime, &s.Duration, &s.IsOpen, &expected, &status, &s.CreatedBy); err != nil {
		return attendance.Session{}, err
	}
	s.Status = attendance.SessionStatus(status)
	s.ExpectedAttendees = []string{}
	if len(expected) > 0 {
		if err := json.Unmarshal(expected, &s.ExpectedAttendees); err != nil {
			return attendance.Session{}, err
		}
	}
	s.Attendees = []attendance.Attendee{}
	return s, nil
}

// CreateSession inserts a session.
func (p *Postgres) CreateSession(ctx context.Context, s attendance.Session) error {
	expected := s.ExpectedAttendees
	if expected == nil {
		expected = []string{}
	}
	raw, err := json.Marshal(expected)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, s.ID, s.Name, s.Description, s.StartTime, s.Duration, s.IsOpen, string(raw), string(s.Status), s.CreatedBy)
	return err
}

// GetSession returns a session with its attendees.
func (p *Postgres) GetSession(ctx context.Context, id string) (attendance.Session, error) {
	s, err := scanSession(p.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return attendance.Session{}, notFoundIfNoRows(err, attendance.ErrNotFound)
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, name, name_key, marked_at FROM session_attendees
		WHERE session_id = $1 ORDER BY marked_at
	`, id)
	if err != nil {
		return attendance.Session{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var a attendance.Attendee
		if err := rows.Scan(&a.UserID, &a.Name, &a.NameKey, &a.MarkedAt); err != nil {
			return attendance.Session{}, err
		}
		s.Attendees = append(s.Attendees, a)
	}
	return s, rows.Err()
}

// ListSessions returns the newest sessions with attendees.
func (p *Postgres) ListSessions(ctx context.Context, limit int) ([]attendance.Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions ORDER BY start_time DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	sessions := []attendance.Session{}
	index := map[string]int{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[s.ID] = len(sessions)
		sessions = append(sessions, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := p.db.QueryContext(ctx, `
		SELECT a.session_id, a.user_id, a.name, a.name_key, a.marked_at
		FROM session_attendees a
		JOIN (SELECT id FROM sessions ORDER BY start_time DESC LIMIT $1) s ON s.id = a.session_id
		ORDER BY a.marked_at
	`, limit)
	if err != nil {
		return nil, err
	}
	defer arows.Close()
	for arows.Next() {
		var sessionID string
		var a attendance.Attendee
		if err := arows.Scan(&sessionID, &a.UserID, &a.Name, &a.NameKey, &a.MarkedAt); err != nil {
			return nil, err
		}
		if i, ok := index[sessionID]; ok {
			sessions[i].Attendees = append(sessions[i].Attendees, a)
		}
	}
	return sessions, arows.Err()
}

// DeleteSession removes a session and its attendees.
func (p *Postgres) DeleteSession(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

// AddAttendee relies on the (session_id, name_key) primary key for insert-if-absent.
func (p *Postgres) AddAttendee(ctx context.Context, sessionID string, a attendance.Attendee) error {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO session_attendees (session_id, user_id, name, name_key, marked_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (session_id, name_key) DO NOTHING
	`, sessionID, a.UserID, a.Name, a.NameKey, a.MarkedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return attendance.ErrNotFound
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrAlreadyMarked
	}
	return nil
}

// CountSessionsSince counts sessions started at or after since.
func (p *Postgres) CountSessionsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE start_time >= $1`, since).Scan(&n)
	return n, err
}

// ---------- settings ----------

// GetOrCreateSettings inserts the singleton row if missing and returns it.
func (p *Postgres) GetOrCreateSettings(ctx context.Context, defaults attendance.Settings) (attendance.Settings, error) {
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO settings (id, session_duration, default_session_name, default_session_description)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, defaults.SessionDuration, defaults.DefaultSessionName, defaults.DefaultSessionDescription); err != nil {
		return attendance.Settings{}, err
	}
	var s attendance.Settings
	err := p.db.QueryRowContext(ctx, `
		SELECT session_duration, default_session_name, default_session_description FROM settings WHERE id = 1
	`).Scan(&s.SessionDuration, &s.DefaultSessionName, &s.DefaultSessionDescription)
	return s, err
}

// SaveSettings upserts the singleton row.
func (p *Postgres) SaveSettings(ctx context.Context, s attendance.Settings) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO settings (id, session_duration, default_session_name, default_session_description)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			session_duration = EXCLUDED.session_duration,
			default_session_name = EXCLUDED.default_session_name,
			default_session_description = EXCLUDED.default_session_description
	`, s.SessionDuration, s.DefaultSessionName, s.DefaultSessionDescription)
	return err
}

// ---------- attendance windows ----------

// CreateWindow inserts a daily window.
func (p *Postgres) CreateWindow(ctx context.Context, w attendance.AttendanceSession) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, start_time, end_time, created_by) VALUES ($1,$2,$3,$4)
	`, w.ID, w.StartTime, w.EndTime, w.CreatedBy)
	return err
}

// ListWindows returns windows started in [from, to), newest first, with entries.
func (p *Postgres) ListWindows(ctx context.Context, from, to time.Time) ([]attendance.AttendanceSession, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, start_time, end_time, created_by FROM attendance_sessions
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	windows := []attendance.AttendanceSession{}
	index := map[string]int{}
	for rows.Next() {
		var w attendance.AttendanceSession
		if err := rows.Scan(&w.ID, &w.StartTime, &w.EndTime, &w.CreatedBy); err != nil {
			rows.Close()
			return nil, err
		}
		w.Attendees = []attendance.AttendanceEntry{}
		index[w.ID] = len(windows)
		windows = append(windows, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	erows, err := p.db.QueryContext(ctx, `
		SELECT e.window_id, e.user_id, e.name, e.marked_at, e.status
		FROM attendance_entries e
		JOIN attendance_sessions w ON w.id = e.window_id
		WHERE w.start_time >= $1 AND w.start_time < $2
		ORDER BY e.marked_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer erows.Close()
	for erows.Next() {
		var windowID, status string
		var e attendance.AttendanceEntry
		if err := erows.Scan(&windowID, &e.UserID, &e.Name, &e.MarkedAt, &status); err != nil {
			return nil, err
		}
		e.Status = attendance.EntryStatus(status)
		if i, ok := index[windowID]; ok {
			windows[i].Attendees = append(windows[i].Attendees, e)
		}
	}
	return windows, erows.Err()
}

// LatestWindowBefore returns the newest window started at or before at.
func (p *Postgres) LatestWindowBefore(ctx context.Context, at time.Time) (attendance.AttendanceSession, error) {
	var w attendance.AttendanceSession
	err := p.db.QueryRowContext(ctx, `
		SELECT id, start_time, end_time, created_by FROM attendance_sessions
		WHERE start_time <= $1 ORDER BY start_time DESC LIMIT 1
	`, at).Scan(&w.ID, &w.StartTime, &w.EndTime, &w.CreatedBy)
	if err != nil {
		return attendance.AttendanceSession{}, notFoundIfNoRows(err, attendance.ErrNotFound)
	}
	w.Attendees = []attendance.AttendanceEntry{}
	return w, nil
}

// AddWindowEntry inserts e unless the user already has an entry in the window.
func (p *Postgres) AddWindowEntry(ctx context.Context, windowID string, e attendance.AttendanceEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attendance_entries (window_id, user_id, name, marked_at, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (window_id, user_id) DO NOTHING
	`, windowID, e.UserID, e.Name, e.MarkedAt, string(e.Status))
	if pgCode(err) == pgForeignKeyViolation {
		return attendance.ErrNotFound
	}
	return err
}

// ---------- admins ----------

// CreateAdmin inserts an admin; a taken username yields admin.ErrDuplicate.
func (p *Postgres) CreateAdmin(ctx context.Context, a admin.Admin) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO admins (id, username, password_hash, created_at) VALUES ($1,$2,$3,$4)
	`, a.ID, a.Username, a.PasswordHash, a.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return admin.ErrDuplicate
	}
	return err
}

// GetAdminByUsername looks an admin up by exact username.
func (p *Postgres) GetAdminByUsername(ctx context.Context, username string) (admin.Admin, error) {
	var a admin.Admin
	err := p.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at FROM admins WHERE username = $1
	`, username).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		return admin.Admin{}, notFoundIfNoRows(err, admin.ErrNotFound)
	}
	return a, nil
}

// ListAdmins returns admins without password hashes.
func (p *Postgres) ListAdmins(ctx context.Context) ([]admin.Admin, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, username, created_at FROM admins ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	admins := []admin.Admin{}
	for rows.Next() {
		var a admin.Admin
		if err := rows.Scan(&a.ID, &a.Username, &a.CreatedAt); err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

// CountAdmins returns the number of admin accounts.
func (p *Postgres) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n)
	return n, err
}

// DeleteAdmin locks every admin row so concurrent deletes cannot empty the table.
func (p *Postgres) DeleteAdmin(ctx context.Context, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM admins FOR UPDATE`)
	if err != nil {
		return err
	}
	count := 0
	for rows.Next() {
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if count <= 1 {
		return admin.ErrLastAdmin
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM admins WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return admin.ErrNotFound
	}
	return tx.Commit()
}
