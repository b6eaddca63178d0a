// Package worker drains attendance events from the queue.
package worker

import (
	"context"
	"log"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

// Projector files marked events into daily attendance windows.
type Projector struct {
	svc *attendance.Service
}

func NewProjector(svc *attendance.Service) *Projector {
	return &Projector{svc: svc}
}

// Run consumes q until ctx is cancelled or the queue closes its channel.
func (p *Projector) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		p.Handle(ctx, msg)
	}
	return nil
}

// Handle processes one message. Bad or failed messages are logged and dropped.
func (p *Projector) Handle(ctx context.Context, msg queue.Message) {
	evt, err := queue.DecodeMarked(msg)
	if err != nil {
		log.Printf("skip message: %v", err)
		metrics.WindowEntries.WithLabelValues("invalid").Inc()
		return
	}
	written, err := p.svc.ProjectMark(ctx, evt)
	switch {
	case err != nil:
		log.Printf("project mark %s/%s: %v", evt.SessionID, evt.UserID, err)
		metrics.WindowEntries.WithLabelValues("error").Inc()
	case written:
		metrics.WindowEntries.WithLabelValues("written").Inc()
	default:
		metrics.WindowEntries.WithLabelValues("no_window").Inc()
	}
}
