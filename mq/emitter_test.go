package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeConn) Publish(_ context.Context, channel string, payload []byte) error {
	f.channel = channel
	f.payload = payload
	return f.err
}

func TestRedisPublish(t *testing.T) {
	conn := &fakeConn{}
	p := NewRedis(conn, "clubpos:events")

	require.NoError(t, p.Publish(context.Background(), Event{Name: EventOrderCompleted, OrderID: "o1"}))
	assert.Equal(t, "clubpos:events", conn.channel)

	var got Event
	require.NoError(t, json.Unmarshal(conn.payload, &got))
	assert.Equal(t, EventOrderCompleted, got.Name)
	assert.Equal(t, "o1", got.OrderID)
}

func TestEmitSwallowsErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("connection refused")}
	Emit(context.Background(), NewRedis(conn, "c"), Event{Name: EventOrderCreated, OrderID: "o1"})
	assert.NotEmpty(t, conn.payload)

	Emit(context.Background(), nil, Event{Name: EventOrderCreated})
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	Emit(context.Background(), r, Event{Name: EventItemStatusChanged, OrderID: "o1"})
	Emit(context.Background(), r, Event{Name: EventOrderCompleted, OrderID: "o1"})

	assert.Equal(t, []string{EventItemStatusChanged, EventOrderCompleted}, r.Names())
	assert.False(t, r.Events()[0].At.IsZero())
}
