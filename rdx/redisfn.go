package rdx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a redis connection with JSON helpers. All keys are prefixed
// with the service name.
type Client struct {
	conn   *redis.Client
	prefix string
}

// Connect dials redis and pings it once.
func Connect(ctx context.Context, addr, password, prefix string) (*Client, error) {
	conn := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rdx: ping %s: %w", addr, err)
	}
	return New(conn, prefix), nil
}

func New(conn *redis.Client, prefix string) *Client {
	return &Client{conn: conn, prefix: prefix}
}

func (c *Client) Close() error { return c.conn.Close() }

// Key builds "<prefix>:<part>:<part>...".
func (c *Client) Key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

// GetJSON decodes the value at key into v. found is false on a cache miss.
func (c *Client) GetJSON(ctx context.Context, key string, v any) (found bool, err error) {
	raw, err := c.conn.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("rdx: decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rdx: encode %s: %w", key, err)
	}
	return c.conn.Set(ctx, key, raw, ttl).Err()
}

// SetNX stores v only if key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, v any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("rdx: encode %s: %w", key, err)
	}
	return c.conn.SetNX(ctx, key, raw, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.conn.Del(ctx, keys...).Err()
}

func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.conn.Publish(ctx, channel, payload).Err()
}
