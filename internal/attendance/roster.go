package attendance

import (
	"context"
	"time"
)

// RosterStatus is a name's standing in a session roster.
type RosterStatus string

const (
	RosterPresent    RosterStatus = "present"
	RosterAbsent     RosterStatus = "absent"
	RosterUnexpected RosterStatus = "unexpected"
)

// RosterLine is one row of a roster.
type RosterLine struct {
	Name     string       `json:"name"`
	UserID   string       `json:"userId,omitempty"`
	MarkedAt *time.Time   `json:"markedAt,omitempty"`
	Status   RosterStatus `json:"status"`
}

// Roster lists expected names first, then walk-ins.
type Roster struct {
	SessionID string       `json:"sessionId"`
	Name      string       `json:"name"`
	StartTime time.Time    `json:"startTime"`
	Lines     []RosterLine `json:"lines"`
	Present   int          `json:"present"`
	Absent    int          `json:"absent"`
	Expected  int          `json:"expected"`
	Total     int          `json:"total"`
}

// BuildRoster compares a session's expected attendees with who actually marked.
func BuildRoster(sess Session) Roster {
	r := Roster{
		SessionID: sess.ID,
		Name:      sess.Name,
		StartTime: sess.StartTime,
		Lines:     []RosterLine{},
		Expected:  len(sess.ExpectedAttendees),
		Total:     len(sess.Attendees),
	}

	byKey := make(map[string]Attendee, len(sess.Attendees))
	for _, a := range sess.Attendees {
		byKey[NameKey(a.Name)] = a
	}
	expected := make(map[string]bool, len(sess.ExpectedAttendees))
	for _, name := range sess.ExpectedAttendees {
		key := NameKey(name)
		expected[key] = true
		line := RosterLine{Name: name, Status: RosterAbsent}
		if a, ok := byKey[key]; ok {
			markedAt := a.MarkedAt
			line.UserID = a.UserID
			line.MarkedAt = &markedAt
			line.Status = RosterPresent
			r.Present++
		} else {
			r.Absent++
		}
		r.Lines = append(r.Lines, line)
	}
	for _, a := range sess.Attendees {
		if expected[NameKey(a.Name)] {
			continue
		}
		markedAt := a.MarkedAt
		r.Lines = append(r.Lines, RosterLine{
			Name:     a.Name,
			UserID:   a.UserID,
			MarkedAt: &markedAt,
			Status:   RosterUnexpected,
		})
	}
	return r
}

// Roster loads a session and builds its roster.
func (s *Service) Roster(ctx context.Context, sessionID string) (Roster, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return Roster{}, err
	}
	return BuildRoster(sess), nil
}
