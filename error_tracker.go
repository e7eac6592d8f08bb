package robot_interaction

import (
	"sort"
	"sync"
)

// ErrorTracker is the set of controls whose last feedback could not be applied.
type ErrorTracker struct {
	mu      sync.RWMutex
	inError map[controlKey]struct{}
}

func NewErrorTracker() *ErrorTracker {
	return &ErrorTracker{inError: make(map[controlKey]struct{})}
}

func (t *ErrorTracker) IsInError(kind ControlKind, id ControlID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.inError[controlKey{kind, id}]
	return ok
}

// SetInError sets membership for the control and reports whether it changed.
func (t *ErrorTracker) SetInError(kind ControlKind, id ControlID, inError bool) bool {
	key := controlKey{kind, id}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, was := t.inError[key]
	if inError {
		t.inError[key] = struct{}{}
	} else {
		delete(t.inError, key)
	}
	return was != inError
}

// ClearAll empties the set. Callers usually follow this with a redraw, since
// every control should now appear valid.
func (t *ErrorTracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inError = make(map[controlKey]struct{})
}

func (t *ErrorTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.inError)
}

// Controls lists the controls in error as "kind/id", sorted.
func (t *ErrorTracker) Controls() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.inError))
	for k := range t.inError {
		out = append(out, k.String())
	}
	t.mu.RUnlock()
	sort.Strings(out)
	return out
}
