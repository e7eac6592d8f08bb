package robot_interaction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// UniqueState grants mutable access to a private copy of the current state. It
// must be handed back exactly once, with StateCoordinator.Publish or Discard,
// otherwise every later writer blocks forever.
type UniqueState struct {
	owner    *StateCoordinator
	state    *RobotState
	released atomic.Bool
}

// State returns the private copy. After release it is a detached copy of what
// was published or discarded.
func (u *UniqueState) State() *RobotState { return u.state }

func (u *UniqueState) Values() []float64 { return u.state.Values() }

// Released reports whether the handle was already published or discarded.
func (u *UniqueState) Released() bool { return u.released.Load() }

// SetJointValue sets the value of joint i. It reports false when i is out of
// range, v is outside the joint's limits or the handle was released; the value
// is left untouched then.
func (u *UniqueState) SetJointValue(i int, v float64) bool {
	if u.released.Load() || i < 0 || i >= len(u.state.values) || !u.state.withinLimits(i, v) {
		return false
	}
	u.state.values[i] = v
	return true
}

// SetValues replaces every joint value. Values are not limit-checked. It fails
// with ErrAlreadyPublished once the handle was released.
func (u *UniqueState) SetValues(values []float64) error {
	if u.released.Load() {
		return ErrAlreadyPublished
	}
	if len(values) != len(u.state.values) {
		return fmt.Errorf("expected %d joint values, got %d", len(u.state.values), len(values))
	}
	copy(u.state.values, values)
	return nil
}

// StateCoordinator owns the current RobotState. Writers serialize through
// AcquireExclusive/Publish; readers call Current and never block.
type StateCoordinator struct {
	current atomic.Pointer[RobotState]
	writer  *semaphore.Weighted

	// holder is the outstanding exclusive handle, nil when free.
	mu     sync.Mutex
	holder *UniqueState

	metrics *handlerMetrics
}

func NewStateCoordinator(initial *RobotState) (*StateCoordinator, error) {
	if initial == nil {
		return nil, ErrNilState
	}
	c := &StateCoordinator{writer: semaphore.NewWeighted(1)}
	s := initial.clone()
	s.stamp = time.Now()
	c.current.Store(s)
	return c, nil
}

// Current returns the latest published state. It never blocks, including while a
// writer holds exclusive access.
func (c *StateCoordinator) Current() *RobotState {
	return c.current.Load()
}

// AcquireExclusive blocks until no other writer holds the state, then returns a
// handle on a private copy of the current state. It returns ctx's error if ctx
// is done first.
func (c *StateCoordinator) AcquireExclusive(ctx context.Context) (*UniqueState, error) {
	start := time.Now()
	if err := c.writer.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "waiting for exclusive state access")
	}
	if c.metrics != nil {
		c.metrics.acquireWait.Observe(time.Since(start).Seconds())
	}
	u := &UniqueState{owner: c, state: c.current.Load().clone()}
	c.mu.Lock()
	c.holder = u
	c.mu.Unlock()
	return u, nil
}

// TryAcquireExclusive is AcquireExclusive without waiting.
func (c *StateCoordinator) TryAcquireExclusive() (*UniqueState, bool) {
	if !c.writer.TryAcquire(1) {
		return nil, false
	}
	u := &UniqueState{owner: c, state: c.current.Load().clone()}
	c.mu.Lock()
	c.holder = u
	c.mu.Unlock()
	return u, true
}

// Publish installs u's state as the current state and releases exclusive access,
// waking the next blocked writer.
func (c *StateCoordinator) Publish(u *UniqueState) error {
	if err := c.release(u); err != nil {
		return err
	}
	next := u.state
	next.generation = c.current.Load().generation + 1
	next.stamp = time.Now()
	u.state = next.clone()
	c.current.Store(next)
	c.writer.Release(1)
	return nil
}

// Discard releases exclusive access without changing the current state.
func (c *StateCoordinator) Discard(u *UniqueState) error {
	if err := c.release(u); err != nil {
		return err
	}
	c.writer.Release(1)
	return nil
}

func (c *StateCoordinator) release(u *UniqueState) error {
	if u == nil || u.owner != c {
		return ErrNotExclusiveHolder
	}
	if !u.released.CompareAndSwap(false, true) {
		return ErrAlreadyPublished
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holder != u {
		return ErrNotExclusiveHolder
	}
	c.holder = nil
	return nil
}

// Replace installs a copy of state as the current state, waiting for any
// outstanding writer first.
func (c *StateCoordinator) Replace(ctx context.Context, state *RobotState) error {
	if state == nil {
		return ErrNilState
	}
	u, err := c.AcquireExclusive(ctx)
	if err != nil {
		return err
	}
	u.state = state.clone()
	return c.Publish(u)
}

// Held reports whether a writer currently holds exclusive access.
func (c *StateCoordinator) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder != nil
}
