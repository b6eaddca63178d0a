// Package queue carries attendance events from the API to background consumers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/attendance"
)

// TypeMarked is published once per recorded attendance mark.
const TypeMarked = "attendance.marked"

// DefaultRedisKey is the list the Redis backend pushes to.
const DefaultRedisKey = "rollcall:events"

// Message represents work to be processed.
type Message struct {
	Type string
	Body []byte
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// MarkedMessage encodes evt as a TypeMarked message.
func MarkedMessage(evt attendance.MarkedEvent) (Message, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeMarked, Body: body}, nil
}

// DecodeMarked is the inverse of MarkedMessage.
func DecodeMarked(msg Message) (attendance.MarkedEvent, error) {
	if msg.Type != TypeMarked {
		return attendance.MarkedEvent{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var evt attendance.MarkedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return attendance.MarkedEvent{}, fmt.Errorf("decode %s: %w", TypeMarked, err)
	}
	if evt.SessionID == "" || evt.UserID == "" {
		return attendance.MarkedEvent{}, errors.New("marked event missing ids")
	}
	return evt, nil
}

// Publisher adapts a Queue to attendance.Notifier. Publish failures are handed
// to onErr; a lost event only costs the daily window projection.
type Publisher struct {
	Queue Queue
	OnErr func(error)
}

// AttendanceMarked implements attendance.Notifier.
func (p Publisher) AttendanceMarked(ctx context.Context, evt attendance.MarkedEvent) {
	msg, err := MarkedMessage(evt)
	if err == nil {
		err = p.Queue.Publish(ctx, msg)
	}
	if err != nil && p.OnErr != nil {
		p.OnErr(err)
	}
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers. It is closed when ctx ends.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key, serialize(msg)).Err()
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					// back off on connection errors instead of spinning
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			select {
			case out <- deserialize(res[1]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// serialize stores messages as Type|Body.
func serialize(msg Message) string {
	return msg.Type + "|" + string(msg.Body)
}

func deserialize(s string) Message {
	typ, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	return Message{Type: typ, Body: []byte(body)}
}
