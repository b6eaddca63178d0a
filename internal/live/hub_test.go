package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rollcall/internal/attendance"
)

func dial(t *testing.T, h *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r, sessionID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	return e
}

func waitViewers(t *testing.T, h *Hub, sessionID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Viewers(sessionID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("viewers = %d, want %d", h.Viewers(sessionID), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubStreamsMarks(t *testing.T) {
	h := NewHub(Options{})
	conn := dial(t, h, "s1")

	if e := readEvent(t, conn); e.Type != "welcome" || e.SessionID != "s1" {
		t.Fatalf("first event = %+v", e)
	}
	waitViewers(t, h, "s1", 1)

	h.AttendanceMarked(context.Background(), attendance.MarkedEvent{SessionID: "other", UserID: "u0", Name: "Nobody"})
	h.AttendanceMarked(context.Background(), attendance.MarkedEvent{SessionID: "s1", UserID: "u1", Name: "Ada"})

	e := readEvent(t, conn)
	if e.Type != "attendee" || e.SessionID != "s1" {
		t.Fatalf("event = %+v", e)
	}
	payload, ok := e.Payload.(map[string]any)
	if !ok || payload["name"] != "Ada" || payload["userId"] != "u1" {
		t.Fatalf("payload = %#v", e.Payload)
	}
}

func TestHubForgetsClosedViewers(t *testing.T) {
	h := NewHub(Options{})
	conn := dial(t, h, "s1")
	readEvent(t, conn)
	waitViewers(t, h, "s1", 1)

	conn.Close()
	waitViewers(t, h, "s1", 0)
}

func TestCheckOrigin(t *testing.T) {
	h := NewHub(Options{AllowedOrigins: []string{"https://dash.example"}})
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://dash.example", true},
		{"http://api.example", true},
		{"https://evil.example", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://api.example/live", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := h.upgrader.CheckOrigin(r); got != tc.want {
			t.Errorf("origin %q: got %v, want %v", tc.origin, got, tc.want)
		}
	}
}
