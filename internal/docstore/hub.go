package docstore

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// hub fans document changes out to path subscribers. Each subscriber only
// sees content that differs from what it was last given.
type hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]*subscriber
}

type subscriber struct {
	id      string
	path    string
	fn      ChangeFunc
	removed atomic.Bool

	mu     sync.Mutex
	seen   bool
	digest [blake2b.Size256]byte
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[string]*subscriber)}
}

func (h *hub) add(path string, fn ChangeFunc) *subscriber {
	s := &subscriber{
		id:   uuid.NewString(),
		path: path,
		fn:   fn,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	byID, ok := h.subs[path]
	if !ok {
		byID = make(map[string]*subscriber)
		h.subs[path] = byID
	}
	byID[s.id] = s
	return s
}

func (h *hub) remove(s *subscriber) {
	if !s.removed.CompareAndSwap(false, true) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if byID, ok := h.subs[s.path]; ok {
		delete(byID, s.id)
		if len(byID) == 0 {
			delete(h.subs, s.path)
		}
	}
}

// watched reports whether anyone is subscribed to path.
func (h *hub) watched(path string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[path]) > 0
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, byID := range h.subs {
		n += len(byID)
	}
	return n
}

func (h *hub) publish(path string, body []byte) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[path]))
	for _, s := range h.subs[path] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.deliver(body)
	}
}

func (s *subscriber) deliver(body []byte) {
	if s.removed.Load() {
		return
	}

	sum := blake2b.Sum256(body)
	s.mu.Lock()
	if s.seen && sum == s.digest {
		s.mu.Unlock()
		return
	}
	s.seen = true
	s.digest = sum
	s.mu.Unlock()

	var cp []byte
	if body != nil {
		cp = append([]byte(nil), body...)
	}
	s.fn(cp)
}

func (h *hub) unsubscribe(s *subscriber) Unsubscribe {
	return func() { h.remove(s) }
}
