package attendance

import (
	"context"
	"time"
)

// MarkedEvent describes a successful attendance mark.
type MarkedEvent struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	MarkedAt  time.Time `json:"markedAt"`
}

// Notifier is told about every recorded mark. Implementations must not block for long.
type Notifier interface {
	AttendanceMarked(ctx context.Context, evt MarkedEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, evt MarkedEvent)

func (f NotifierFunc) AttendanceMarked(ctx context.Context, evt MarkedEvent) { f(ctx, evt) }

// Notifiers fans an event out to each member in order.
type Notifiers []Notifier

func (ns Notifiers) AttendanceMarked(ctx context.Context, evt MarkedEvent) {
	for _, n := range ns {
		if n != nil {
			n.AttendanceMarked(ctx, evt)
		}
	}
}

// Service coordinates sessions, users, settings and attendance marks.
type Service struct {
	repo   Repository
	now    func() time.Time
	notify Notifier
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier registers n to receive mark events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// NewService creates a service backed by a repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock reading in UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}
