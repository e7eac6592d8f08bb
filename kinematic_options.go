package robot_interaction

import (
	"sync"
	"time"
)

// Default IK bounds used when a group has no options of its own.
var DefaultKinematicOptions = KinematicOptions{
	Timeout:   50 * time.Millisecond,
	Attempts:  4,
	Tolerance: 1e-3,
}

// KinematicOptionsMap stores IK options per group, falling back to a default.
type KinematicOptionsMap struct {
	mu       sync.RWMutex
	defaults KinematicOptions
	groups   map[string]KinematicOptions
}

func NewKinematicOptionsMap(defaults KinematicOptions) *KinematicOptionsMap {
	return &KinematicOptionsMap{
		defaults: defaults.withDefaults(DefaultKinematicOptions),
		groups:   make(map[string]KinematicOptions),
	}
}

func (m *KinematicOptionsMap) KinematicOptions(group string) KinematicOptions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.groups[group]; ok {
		return o
	}
	return m.defaults
}

// Set stores options for group; zero fields take the map's defaults.
func (m *KinematicOptionsMap) Set(group string, opts KinematicOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group] = opts.withDefaults(m.defaults)
}

func (m *KinematicOptionsMap) SetDefaults(opts KinematicOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = opts.withDefaults(DefaultKinematicOptions)
}

func (o KinematicOptions) withDefaults(d KinematicOptions) KinematicOptions {
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.StateValidity == nil {
		o.StateValidity = d.StateValidity
	}
	return o
}
