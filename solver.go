package robot_interaction

import (
	"context"
	"sync/atomic"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/motionplan"
	"go.viam.com/rdk/motionplan/ik"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/utils"
)

// KinematicChain is the frame the solver works over, usually an arm's referenceframe.Model.
type KinematicChain = referenceframe.Frame

// JointType says how a joint control maps a marker pose onto joint values.
type JointType int

const (
	// JointRevolute takes the rotation of the pose about Axis.
	JointRevolute JointType = iota
	// JointPrismatic takes the translation of the pose along Axis.
	JointPrismatic
	// JointPlanar fills three values: x, y, yaw.
	JointPlanar
	// JointFloating fills six values: x, y, z, roll, pitch, yaw.
	JointFloating
)

// JointControl binds a joint control to the state values it drives, starting at Index.
type JointControl struct {
	Type  JointType
	Index int
	Axis  r3.Vector
}

func (j JointControl) width() int {
	switch j.Type {
	case JointPlanar:
		return 3
	case JointFloating:
		return 6
	default:
		return 1
	}
}

// orientationWeight converts radians of orientation error into the chain's
// distance unit (mm for rdk models) when scoring an IK candidate.
const orientationWeight = 100.0

// ChainSolver solves end-effector targets with rdk's nlopt IK over a kinematic
// chain, and joint targets by writing the pose straight into the joint values.
// Solvers plugs it into a SolverSet.
type ChainSolver struct {
	chain        KinematicChain
	options      KinematicOptionsProvider
	joints       map[ControlID]JointControl
	positionOnly bool
	logger       logging.Logger

	ik    ik.Solver
	rseed atomic.Int64
}

type ChainSolverConfig struct {
	Chain   KinematicChain
	Options KinematicOptionsProvider
	Joints  map[ControlID]JointControl
	// PositionOnly ignores the orientation of end-effector targets.
	PositionOnly bool
	Logger       logging.Logger
}

func NewChainSolver(cfg ChainSolverConfig) *ChainSolver {
	s := &ChainSolver{
		chain:        cfg.Chain,
		options:      cfg.Options,
		joints:       make(map[ControlID]JointControl, len(cfg.Joints)),
		positionOnly: cfg.PositionOnly,
		logger:       cfg.Logger,
	}
	for id, j := range cfg.Joints {
		s.joints[id] = j
	}
	if s.options == nil {
		s.options = NewKinematicOptionsMap(DefaultKinematicOptions)
	}
	if s.logger == nil {
		s.logger = logging.NewLogger("chain-solver")
	}

	// nlopt logs every cost evaluation at debug
	ikLogger := s.logger.Sublogger("ik")
	ikLogger.SetLevel(logging.INFO)
	solver, err := ik.CreateNloptSolver(ikLogger, -1, false, true)
	if err != nil {
		s.logger.Warnf("end-effector solving unavailable: %v", err)
	} else {
		s.ik = solver
	}
	return s
}

// Solvers returns a SolverSet using s for end-effectors and joints.
func (s *ChainSolver) Solvers(generic Solver) SolverSet {
	return SolverSet{
		EndEffector: SolverFunc(s.SolveEndEffector),
		Joint:       SolverFunc(s.SolveJoint),
		Generic:     generic,
	}
}

// SolveJoint writes target into the values of the named joint control. It fails
// for unknown controls and for values outside the joint limits.
func (s *ChainSolver) SolveJoint(_ context.Context, u *UniqueState, control ControlID, target spatialmath.Pose) bool {
	j, ok := s.joints[control]
	if !ok {
		s.logger.Debugf("no joint mapping for control %q", control)
		return false
	}
	vals := jointValues(j, target)
	if j.Index < 0 || j.Index+len(vals) > u.State().NumJoints() {
		return false
	}
	for i, v := range vals {
		if !u.State().withinLimits(j.Index+i, v) {
			return false
		}
	}
	for i, v := range vals {
		if !u.SetJointValue(j.Index+i, v) {
			return false
		}
	}
	return true
}

func jointValues(j JointControl, target spatialmath.Pose) []float64 {
	pt := target.Point()
	switch j.Type {
	case JointPrismatic:
		return []float64{pt.Dot(j.Axis.Normalize())}
	case JointPlanar:
		return []float64{pt.X, pt.Y, target.Orientation().EulerAngles().Yaw}
	case JointFloating:
		ea := target.Orientation().EulerAngles()
		return []float64{pt.X, pt.Y, pt.Z, ea.Roll, ea.Pitch, ea.Yaw}
	default:
		aa := target.Orientation().AxisAngles()
		axis := r3.Vector{X: aa.RX, Y: aa.RY, Z: aa.RZ}
		return []float64{aa.Theta * axis.Dot(j.Axis.Normalize())}
	}
}

// SolveEndEffector searches for joint values placing the chain's tip at target,
// seeding the search with the current state. A candidate is accepted when it is
// within the group's tolerance and passes its StateValidity check. At most
// Attempts candidates are inspected before the group's timeout. On failure the
// state is left unchanged.
func (s *ChainSolver) SolveEndEffector(ctx context.Context, u *UniqueState, control ControlID, target spatialmath.Pose) bool {
	if s.chain == nil || s.ik == nil {
		return false
	}
	limits := s.chain.DoF()
	seed := u.Values()
	if len(seed) != len(limits) {
		s.logger.Warnf("state has %d joints but chain has %d, cannot solve for %q", len(seed), len(limits), control)
		return false
	}
	for i := range seed {
		seed[i] = clampToLimit(seed[i], limits[i])
	}
	opts := s.options.KinematicOptions(u.State().Group())
	metric := s.metric(target)
	cost := ik.NewMetricMinFunc(metric, s.chain, s.logger)
	accept := func(q []float64) bool {
		if cost(ctx, q) > opts.Tolerance*opts.Tolerance {
			return false
		}
		return opts.StateValidity == nil || opts.StateValidity(u.State().withValues(q))
	}

	if accept(seed) {
		return u.SetValues(seed) == nil
	}

	solveCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	solutions := make(chan *ik.Solution)
	var solveErr error
	utils.PanicCapturingGo(func() {
		defer close(solutions)
		_, _, solveErr = s.ik.Solve(solveCtx, solutions,
			[][]float64{seed}, [][]referenceframe.Limit{limits}, cost, int(s.rseed.Add(1)))
	})

	var found []float64
	attempts := 0
	for sol := range solutions {
		if found != nil {
			continue
		}
		attempts++
		if accept(sol.Configuration) {
			found = sol.Configuration
			cancel()
		} else if attempts >= opts.Attempts {
			cancel()
		}
	}
	if solveErr != nil {
		s.logger.Debugf("ik for %q: %v", control, solveErr)
	}
	if found == nil {
		return false
	}
	return u.SetValues(found) == nil
}

// metric scores a pose against target with rdk's weighted squared norm.
func (s *ChainSolver) metric(target spatialmath.Pose) func(spatialmath.Pose) float64 {
	orientScale := orientationWeight
	if s.positionOnly {
		orientScale = 0
	}
	return func(p spatialmath.Pose) float64 {
		return motionplan.WeightedSquaredNormDistanceWithOptions(p, target, 1, orientScale)
	}
}

func clampToLimit(v float64, l referenceframe.Limit) float64 {
	if v < l.Min {
		return l.Min
	}
	if v > l.Max {
		return l.Max
	}
	return v
}

// ChainStateProvider builds default states from a kinematic chain: every joint
// at zero, or at the middle of its range when zero is out of limits.
type ChainStateProvider struct {
	Chain      KinematicChain
	JointNames []string
}

func (p ChainStateProvider) DefaultState(group string) (*RobotState, error) {
	if p.Chain == nil {
		return nil, ErrNilState
	}
	limits := p.Chain.DoF()
	values := make([]float64, len(limits))
	for i, l := range limits {
		if 0 < l.Min || 0 > l.Max {
			values[i] = l.Min + (l.Max-l.Min)/2
		}
	}
	return NewRobotState(group, p.JointNames, limits, values)
}
