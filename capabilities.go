package robot_interaction

import (
	"context"
	"time"

	"go.viam.com/rdk/spatialmath"
)

// StateProvider produces the default state of a control group, for instance from
// a kinematic model.
type StateProvider interface {
	DefaultState(group string) (*RobotState, error)
}

// Transformer expresses a stamped pose in the target frame. Failures must wrap
// ErrTransform.
type Transformer interface {
	TransformPose(ctx context.Context, pose StampedPose, target string) (spatialmath.Pose, error)
}

// Solver tries to update the state held by u so that control reaches target,
// which is expressed in the planning frame. It reports whether it succeeded. On
// failure it should leave u's state unchanged or at least valid.
type Solver interface {
	Solve(ctx context.Context, u *UniqueState, control ControlID, target spatialmath.Pose) bool
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, u *UniqueState, control ControlID, target spatialmath.Pose) bool

func (f SolverFunc) Solve(ctx context.Context, u *UniqueState, control ControlID, target spatialmath.Pose) bool {
	return f(ctx, u, control, target)
}

// SolverSet holds one solver per control kind. A nil entry fails every solve.
type SolverSet struct {
	EndEffector Solver
	Joint       Solver
	Generic     Solver
}

func (s SolverSet) forKind(kind ControlKind) Solver {
	switch kind {
	case KindEndEffector:
		return s.EndEffector
	case KindJoint:
		return s.Joint
	case KindGeneric:
		return s.Generic
	default:
		return nil
	}
}

// KinematicOptions bounds an IK query.
type KinematicOptions struct {
	Timeout   time.Duration
	Attempts  int
	Tolerance float64
	// StateValidity, when set, vetoes IK candidates; it gets a copy of the
	// group's state holding the candidate values.
	StateValidity func(*RobotState) bool
}

// KinematicOptionsProvider supplies per-group IK options to solvers.
type KinematicOptionsProvider interface {
	KinematicOptions(group string) KinematicOptions
}
