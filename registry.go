package robot_interaction

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// sharedHandler is a handler together with the pieces built around it.
type sharedHandler struct {
	handler *Handler
	queue   *FeedbackQueue
	frames  *FrameBuffer
	options *KinematicOptionsMap
}

func (s *sharedHandler) close() {
	s.queue.Close()
	s.handler.Close()
}

type HandlerEntry struct {
	shared    *sharedHandler
	signature string
	refCount  int64 // Atomic reference counter

	listeners map[uint64]UpdateCallback
	nextID    uint64
	mu        sync.RWMutex
}

// notify fans a handler update out to every service sharing the handler.
func (e *HandlerEntry) notify(h *Handler, errorChanged bool) {
	e.mu.RLock()
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]UpdateCallback, len(ids))
	for i, id := range ids {
		fns[i] = e.listeners[id]
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(h, errorChanged)
	}
}

func (e *HandlerEntry) subscribe(fn UpdateCallback) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.listeners[e.nextID] = fn
	return e.nextID
}

// HandlerRegistry lets services configured for the same control group drive one
// shared handler, so their markers see the same state.
type HandlerRegistry struct {
	entries map[string]*HandlerEntry // group -> entry
	mu      sync.RWMutex
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{entries: make(map[string]*HandlerEntry)}
}

// sharedHandlers is used by every service with share_handler set.
var sharedHandlers = NewHandlerRegistry()

// Acquire returns the handler for group, calling build to create it when there
// is none. Callers sharing a handler must agree on signature. listener receives
// every update of the shared handler until Release is called with the returned id.
func (r *HandlerRegistry) Acquire(group, signature string, build func(UpdateCallback) (*sharedHandler, error), listener UpdateCallback) (*sharedHandler, uint64, error) {
	r.mu.RLock()
	if entry, exists := r.entries[group]; exists {
		defer r.mu.RUnlock()
		return r.acquireExisting(entry, signature, listener)
	}
	r.mu.RUnlock()
	return r.create(group, signature, build, listener)
}

// acquireExisting adds a reference to entry. Callers hold r.mu so the entry
// cannot be released concurrently.
func (r *HandlerRegistry) acquireExisting(entry *HandlerEntry, signature string, listener UpdateCallback) (*sharedHandler, uint64, error) {
	if entry.signature != signature {
		return nil, 0, fmt.Errorf("conflict: existing handler uses a different configuration (refCount: %d)", atomic.LoadInt64(&entry.refCount))
	}

	atomic.AddInt64(&entry.refCount, 1)
	return entry.shared, entry.subscribe(listener), nil
}

func (r *HandlerRegistry) create(group, signature string, build func(UpdateCallback) (*sharedHandler, error), listener UpdateCallback) (*sharedHandler, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[group]; exists {
		return r.acquireExisting(entry, signature, listener)
	}

	entry := &HandlerEntry{
		signature: signature,
		listeners: make(map[uint64]UpdateCallback),
	}
	shared, err := build(entry.notify)
	if err != nil {
		// a failed build is not cached; the next Acquire tries again
		return nil, 0, err
	}
	entry.shared = shared
	atomic.StoreInt64(&entry.refCount, 1)
	r.entries[group] = entry

	return shared, entry.subscribe(listener), nil
}

// Release drops one reference to group's handler, closing it when the last
// reference goes away.
func (r *HandlerRegistry) Release(group string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.entries[group]
	if !exists {
		return
	}

	entry.mu.Lock()
	delete(entry.listeners, id)
	entry.mu.Unlock()

	if atomic.AddInt64(&entry.refCount, -1) > 0 {
		return
	}
	delete(r.entries, group)
	entry.shared.close()
}

// Status returns how many services share group's handler; zero when there is none.
func (r *HandlerRegistry) Status(group string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, exists := r.entries[group]
	if !exists {
		return 0
	}
	return atomic.LoadInt64(&entry.refCount)
}
