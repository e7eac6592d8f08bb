package robot_interaction

import (
	"fmt"
	"time"

	"go.viam.com/rdk/spatialmath"
)

// ControlID identifies an end-effector, joint or generic interactive control.
type ControlID = string

// ControlKind says which capability a control is driven through.
type ControlKind int

const (
	KindEndEffector ControlKind = iota
	KindJoint
	KindGeneric
)

func (k ControlKind) String() string {
	switch k {
	case KindEndEffector:
		return "end_effector"
	case KindJoint:
		return "joint"
	case KindGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// ParseControlKind is the inverse of ControlKind.String.
func ParseControlKind(s string) (ControlKind, error) {
	switch s {
	case "end_effector", "eef", "":
		return KindEndEffector, nil
	case "joint":
		return KindJoint, nil
	case "generic":
		return KindGeneric, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// controlKey keys every per-control table so a joint and an end-effector may share a name.
type controlKey struct {
	kind ControlKind
	id   ControlID
}

func (k controlKey) String() string {
	return k.kind.String() + "/" + k.id
}

// StampedPose is a pose expressed in a named frame at a point in time.
type StampedPose struct {
	Pose  spatialmath.Pose
	Frame string
	Stamp time.Time
}

// Feedback is one interactive-marker feedback event handed in by the transport.
type Feedback struct {
	Control ControlID
	Kind    ControlKind
	Pose    spatialmath.Pose
	Frame   string
	Stamp   time.Time
}

func (f Feedback) stamped() StampedPose {
	return StampedPose{Pose: f.Pose, Frame: f.Frame, Stamp: f.Stamp}
}
