// Package mq publishes order events to a broker.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	EventOrderCreated      = "order.created"
	EventOrderUpdated      = "order.updated"
	EventOrderCompleted    = "order.completed"
	EventItemStatusChanged = "order.item.status_changed"
)

// Event is the envelope every publisher serializes.
type Event struct {
	Name       string    `json:"name"`
	OrderID    string    `json:"orderid"`
	ItemID     string    `json:"itemid,omitempty"`
	Status     string    `json:"status,omitempty"`
	EmployeeID string    `json:"employee_id,omitempty"`
	At         time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Emit publishes e and logs failures instead of returning them. Events are
// informational; a broker outage never fails an order operation.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := p.Publish(ctx, e); err != nil {
		slog.WarnContext(ctx, "event publish failed", "event", e.Name, "orderid", e.OrderID, "error", err)
		return
	}
	slog.DebugContext(ctx, "event published", "event", e.Name, "orderid", e.OrderID)
}

// RedisPublisher is the subset of rdx.Client used for pub/sub.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Redis publishes events on a single pub/sub channel.
type Redis struct {
	conn    RedisPublisher
	channel string
}

func NewRedis(conn RedisPublisher, channel string) *Redis {
	return &Redis{conn: conn, channel: channel}
}

func (r *Redis) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("mq: marshal %s: %w", e.Name, err)
	}
	if err := r.conn.Publish(ctx, r.channel, data); err != nil {
		return fmt.Errorf("mq: publish %s to %s: %w", e.Name, r.channel, err)
	}
	return nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names lists the names of the recorded events in publish order.
func (r *Recorder) Names() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Name)
	}
	return out
}
