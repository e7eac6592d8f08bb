package robot_interaction

import (
	"fmt"
	"time"

	"go.viam.com/rdk/referenceframe"
)

// RobotState is the joint configuration of one control group. A published
// RobotState is never modified: readers may hold it for as long as they like and
// writers work on a clone obtained through StateCoordinator.AcquireExclusive.
type RobotState struct {
	group      string
	jointNames []string
	limits     []referenceframe.Limit
	values     []float64
	generation uint64
	stamp      time.Time
}

// NewRobotState builds a state for group. jointNames and limits may be nil; when
// given they must match values in length.
func NewRobotState(group string, jointNames []string, limits []referenceframe.Limit, values []float64) (*RobotState, error) {
	if jointNames != nil && len(jointNames) != len(values) {
		return nil, fmt.Errorf("expected %d joint names, got %d", len(values), len(jointNames))
	}
	if limits != nil && len(limits) != len(values) {
		return nil, fmt.Errorf("expected %d joint limits, got %d", len(values), len(limits))
	}
	s := &RobotState{
		group:  group,
		limits: append([]referenceframe.Limit(nil), limits...),
		values: append([]float64(nil), values...),
		stamp:  time.Now(),
	}
	if jointNames == nil {
		jointNames = make([]string, len(values))
		for i := range jointNames {
			jointNames[i] = fmt.Sprintf("joint_%d", i)
		}
	}
	s.jointNames = append([]string(nil), jointNames...)
	return s, nil
}

func (s *RobotState) Group() string { return s.group }

// Generation increases by one every time a state is published.
func (s *RobotState) Generation() uint64 { return s.generation }

// Stamp is when this state was published.
func (s *RobotState) Stamp() time.Time { return s.stamp }

func (s *RobotState) NumJoints() int { return len(s.values) }

func (s *RobotState) JointNames() []string {
	return append([]string(nil), s.jointNames...)
}

func (s *RobotState) Limits() []referenceframe.Limit {
	return append([]referenceframe.Limit(nil), s.limits...)
}

func (s *RobotState) Values() []float64 {
	return append([]float64(nil), s.values...)
}

// Inputs returns the joint values as frame inputs for a referenceframe.Model.
func (s *RobotState) Inputs() []referenceframe.Input {
	return s.Values()
}

// JointIndex returns the position of the named joint, or -1.
func (s *RobotState) JointIndex(name string) int {
	for i, n := range s.jointNames {
		if n == name {
			return i
		}
	}
	return -1
}

func (s *RobotState) JointValue(name string) (float64, bool) {
	i := s.JointIndex(name)
	if i < 0 {
		return 0, false
	}
	return s.values[i], true
}

// Equal compares group, joints and values; generation and stamp are ignored.
func (s *RobotState) Equal(other *RobotState) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.group != other.group || len(s.values) != len(other.values) {
		return false
	}
	for i := range s.values {
		if s.values[i] != other.values[i] || s.jointNames[i] != other.jointNames[i] {
			return false
		}
	}
	return true
}

func (s *RobotState) clone() *RobotState {
	return &RobotState{
		group:      s.group,
		jointNames: s.jointNames,
		limits:     s.limits,
		values:     append([]float64(nil), s.values...),
		generation: s.generation,
		stamp:      s.stamp,
	}
}

// withValues is a copy of s holding values instead of its own.
func (s *RobotState) withValues(values []float64) *RobotState {
	c := s.clone()
	c.values = append([]float64(nil), values...)
	return c
}

func (s *RobotState) withinLimits(i int, v float64) bool {
	if i >= len(s.limits) {
		return true
	}
	l := s.limits[i]
	return v >= l.Min && v <= l.Max
}
