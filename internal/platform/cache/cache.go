// Package cache provides the Dragonfly/Redis client used as a document
// backend and change feed.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key written through a Cache.
const DefaultNamespace = "sched"

// Cache wraps a Redis/Dragonfly client with a key namespace.
type Cache struct {
	Client    *redis.Client
	Namespace string
}

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// New connects to the cache and verifies connectivity.
func New(ctx context.Context, url string) (*Cache, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	c := Wrap(redis.NewClient(opts))

	if err := c.HealthCheck(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	return c, nil
}

// Wrap adopts an existing client under the default namespace.
func Wrap(client *redis.Client) *Cache {
	return &Cache{Client: client, Namespace: DefaultNamespace}
}

// Key joins name onto the namespace ("sched:doc:..." for name "doc:...").
func (c *Cache) Key(name string) string {
	if c.Namespace == "" {
		return name
	}
	return c.Namespace + ":" + name
}

// SetAndPublish stores value under key and announces msg on channel in a
// single transaction, so watchers never see the message before the value.
func (c *Cache) SetAndPublish(ctx context.Context, key string, value []byte, channel, msg string) error {
	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.Key(key), value, 0)
		pipe.Publish(ctx, c.Key(channel), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set and publish %s: %w", key, err)
	}
	return nil
}

// DelAndPublish removes key and announces msg on channel.
func (c *Cache) DelAndPublish(ctx context.Context, key, channel, msg string) error {
	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.Key(key))
		pipe.Publish(ctx, c.Key(channel), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete and publish %s: %w", key, err)
	}
	return nil
}

// Watch subscribes to channel and waits for the server to confirm.
func (c *Cache) Watch(ctx context.Context, channel string) (*redis.PubSub, error) {
	pubsub := c.Client.Subscribe(ctx, c.Key(channel))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return pubsub, nil
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the cache connection is alive.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
