package docstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	docs map[string][]byte
	mu   sync.RWMutex
	hub  *hub
}

// NewMemoryStore creates a new in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
		hub:  newHub(),
	}
}

func (s *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), body...), nil
}

func (s *MemoryStore) Put(_ context.Context, path string, body []byte) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if err := validateBody(path, body); err != nil {
		return err
	}

	cp := append([]byte(nil), body...)
	s.mu.Lock()
	s.docs[path] = cp
	s.mu.Unlock()

	s.hub.publish(path, cp)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	_, ok := s.docs[path]
	delete(s.docs, path)
	s.mu.Unlock()

	if ok {
		s.hub.publish(path, nil)
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string, fn ChangeFunc) (Unsubscribe, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	sub := s.hub.add(path, fn)
	body, err := s.Get(ctx, path)
	if err == nil {
		sub.deliver(body)
	}
	return s.hub.unsubscribe(sub), nil
}

// Subscribers reports the number of live subscriptions.
func (s *MemoryStore) Subscribers() int {
	return s.hub.count()
}

func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
