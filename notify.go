package robot_interaction

import "sync"

// UpdateCallback is called after a Handle* call finished processing feedback.
// errorChanged is true when the control's error state flipped. It runs on the
// goroutine that delivered the feedback and must not acquire exclusive state
// access on the same handler, or it deadlocks.
type UpdateCallback func(h *Handler, errorChanged bool)

// NotificationChannel holds at most one UpdateCallback.
type NotificationChannel struct {
	mu sync.RWMutex
	fn UpdateCallback
}

func (n *NotificationChannel) Set(fn UpdateCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fn = fn
}

func (n *NotificationChannel) Get() UpdateCallback {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fn
}

func (n *NotificationChannel) Clear() {
	n.Set(nil)
}

// Notify invokes the registered callback, if any. The guard is not held during
// the call so the callback may replace itself.
func (n *NotificationChannel) Notify(h *Handler, errorChanged bool) {
	if fn := n.Get(); fn != nil {
		fn(h, errorChanged)
	}
}
