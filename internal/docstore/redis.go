package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-schedule/internal/platform/cache"
)

const (
	redisKeyPrefix     = "doc:"
	redisChangeChannel = "changes"
)

// RedisStore is a Redis/Dragonfly-backed Store. Writes publish the changed
// path on a shared channel; a single forwarder fans changes out locally.
type RedisStore struct {
	cache  *cache.Cache
	pubsub *redis.PubSub
	hub    *hub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRedisStore subscribes to the change channel and returns the store.
func NewRedisStore(ctx context.Context, c *cache.Cache) (*RedisStore, error) {
	if c == nil || c.Client == nil {
		return nil, fmt.Errorf("cache client is nil")
	}

	pubsub, err := c.Watch(ctx, redisChangeChannel)
	if err != nil {
		return nil, err
	}

	fctx, cancel := context.WithCancel(context.Background())
	s := &RedisStore{
		cache:  c,
		pubsub: pubsub,
		hub:    newHub(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.forward(fctx)

	return s, nil
}

func (s *RedisStore) forward(ctx context.Context) {
	defer close(s.done)

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			s.dispatch(ctx, m.Payload)
		}
	}
}

func (s *RedisStore) dispatch(ctx context.Context, path string) {
	if !s.hub.watched(path) {
		return
	}

	body, err := s.Get(ctx, path)
	switch {
	case errors.Is(err, ErrNotFound):
		body = nil
	case err != nil:
		slog.Warn("reload changed document failed", "path", path, "error", err)
		return
	}
	s.hub.publish(path, body)
}

func (s *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	body, err := s.cache.Client.Get(ctx, s.cache.Key(redisKeyPrefix+path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return body, nil
}

func (s *RedisStore) Put(ctx context.Context, path string, body []byte) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if err := validateBody(path, body); err != nil {
		return err
	}

	if err := s.cache.SetAndPublish(ctx, redisKeyPrefix+path, body, redisChangeChannel, path); err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, path string) error {
	if err := s.cache.DelAndPublish(ctx, redisKeyPrefix+path, redisChangeChannel, path); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, path string, fn ChangeFunc) (Unsubscribe, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	sub := s.hub.add(path, fn)
	body, err := s.Get(ctx, path)
	switch {
	case err == nil:
		sub.deliver(body)
	case !errors.Is(err, ErrNotFound):
		s.hub.remove(sub)
		return nil, err
	}
	return s.hub.unsubscribe(sub), nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.cache.HealthCheck(ctx)
}

// Close stops the forwarder. The client is owned by the caller.
func (s *RedisStore) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}
