package idempotency

import (
	"context"
	"sync"
	"time"
)

// JSONStore is the subset of rdx.Client the redis store needs.
type JSONStore interface {
	Key(parts ...string) string
	SetNX(ctx context.Context, key string, v any, ttl time.Duration) (bool, error)
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Redis keeps records in redis with an expiry.
type Redis struct {
	conn JSONStore
}

func NewRedis(conn JSONStore) *Redis {
	return &Redis{conn: conn}
}

func (s *Redis) key(k string) string { return s.conn.Key("idem", k) }

func (s *Redis) Reserve(ctx context.Context, rec Record, ttl time.Duration) (bool, error) {
	return s.conn.SetNX(ctx, s.key(rec.Key), rec, ttl)
}

func (s *Redis) Get(ctx context.Context, key string) (Record, bool, error) {
	var rec Record
	found, err := s.conn.GetJSON(ctx, s.key(key), &rec)
	return rec, found, err
}

func (s *Redis) Complete(ctx context.Context, rec Record, ttl time.Duration) error {
	return s.conn.SetJSON(ctx, s.key(rec.Key), rec, ttl)
}

func (s *Redis) Release(ctx context.Context, key string) error {
	return s.conn.Del(ctx, s.key(key))
}

// Memory keeps records in process.
type Memory struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	rec     Record
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]memoryRecord), now: time.Now}
}

func (m *Memory) live(key string) (memoryRecord, bool) {
	r, ok := m.records[key]
	if ok && !m.now().Before(r.expires) {
		delete(m.records, key)
		return memoryRecord{}, false
	}
	return r, ok
}

func (m *Memory) Reserve(_ context.Context, rec Record, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(rec.Key); ok {
		return false, nil
	}
	m.records[rec.Key] = memoryRecord{rec: rec, expires: m.now().Add(ttl)}
	return true, nil
}

func (m *Memory) Get(_ context.Context, key string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.live(key)
	return r.rec, ok, nil
}

func (m *Memory) Complete(_ context.Context, rec Record, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key] = memoryRecord{rec: rec, expires: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}
