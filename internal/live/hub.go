// Package live pushes newly marked attendees to admins watching a session.
package live

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
)

// DefaultChannel is the Redis pub/sub channel used to fan events out across API instances.
const DefaultChannel = "rollcall:live"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 32
)

// Event is the frame written to viewers.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// AttendeePayload is the payload of an "attendee" event.
type AttendeePayload struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	MarkedAt time.Time `json:"markedAt"`
}

type client struct {
	conn      *websocket.Conn
	sessionID string
	send      chan Event
}

// Options configures a Hub.
type Options struct {
	// Redis, when set, relays events through pub/sub so every instance's viewers see them.
	Redis   *redis.Client
	Channel string
	// AllowedOrigins extends the same-origin websocket check.
	AllowedOrigins []string
}

// Hub tracks viewers per session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}

	rdb      *redis.Client
	channel  string
	upgrader websocket.Upgrader
}

// NewHub creates a hub.
func NewHub(opts Options) *Hub {
	h := &Hub{
		sessions: make(map[string]map[*client]struct{}),
		rdb:      opts.Redis,
		channel:  opts.Channel,
	}
	if h.channel == "" {
		h.channel = DefaultChannel
	}
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed[o] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed[origin] {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
	return h
}

// AttendanceMarked implements attendance.Notifier.
func (h *Hub) AttendanceMarked(ctx context.Context, evt attendance.MarkedEvent) {
	e := Event{
		Type:      "attendee",
		SessionID: evt.SessionID,
		Payload:   AttendeePayload{UserID: evt.UserID, Name: evt.Name, MarkedAt: evt.MarkedAt},
		Timestamp: time.Now().Unix(),
	}
	if h.rdb == nil {
		h.Broadcast(e)
		return
	}
	raw, err := json.Marshal(e)
	if err == nil {
		err = h.rdb.Publish(ctx, h.channel, raw).Err()
	}
	if err != nil {
		log.Printf("live relay publish: %v", err)
		h.Broadcast(e)
	}
}

// Run relays pub/sub events to local viewers until ctx ends. Without Redis it returns at once.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		return
	}
	sub := h.rdb.Subscribe(ctx, h.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Printf("live relay decode: %v", err)
				continue
			}
			h.Broadcast(e)
		}
	}
}

// Broadcast delivers e to the viewers of e.SessionID. Viewers whose buffer is full are dropped.
func (h *Hub) Broadcast(e Event) {
	h.mu.RLock()
	var slow []*client
	for c := range h.sessions[e.SessionID] {
		select {
		case c.send <- e:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		h.unregister(c)
	}
}

// Viewers returns the number of connections watching sessionID.
func (h *Hub) Viewers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Serve upgrades the request and streams sessionID's events until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, sessionID: sessionID, send: make(chan Event, sendBuffer)}
	c.send <- Event{Type: "welcome", SessionID: sessionID, Timestamp: time.Now().Unix()}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[c.sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.sessions[c.sessionID] = set
	}
	set[c] = struct{}{}
	metrics.LiveViewers.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[c.sessionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.sessions, c.sessionID)
	}
	close(c.send)
	metrics.LiveViewers.Dec()
}

// readPump only services control frames; viewers never send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("live viewer %s: %v", c.sessionID, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case e, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
