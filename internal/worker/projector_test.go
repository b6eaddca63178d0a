package worker

import (
	"context"
	"testing"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

func TestProjectorFilesMarks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	svc := attendance.NewService(mem, attendance.WithClock(func() time.Time { return now }))
	w, err := svc.StartWindow(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}

	q := queue.NewInMemory(8)
	done := make(chan error, 1)
	go func() { done <- NewProjector(svc).Run(ctx, q) }()

	_ = q.Publish(ctx, queue.Message{Type: queue.TypeMarked, Body: []byte("{")})
	msg, err := queue.MarkedMessage(attendance.MarkedEvent{SessionID: "s1", UserID: "u1", Name: "Ada", MarkedAt: now.Add(time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		windows, err := svc.ListWindows(ctx, now)
		if err != nil {
			t.Fatal(err)
		}
		if len(windows) == 1 && windows[0].ID == w.ID && len(windows[0].Attendees) == 1 {
			if windows[0].Attendees[0].Status != attendance.EntryPresent {
				t.Fatalf("entry = %+v", windows[0].Attendees[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("mark never projected: %+v", windows)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("projector did not stop")
	}
}
