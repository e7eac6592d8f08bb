package robot_interaction

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/r3"
)

// Config configures the interaction handler service.
type Config struct {
	Arm   string `json:"arm"`             // Required: arm whose kinematics the handler drives
	Group string `json:"group,omitempty"` // Control group name (default: arm name)

	PlanningFrame string   `json:"planning_frame,omitempty"` // default: world
	JointNames    []string `json:"joint_names,omitempty"`

	// Start from the arm's reported joint positions instead of the model default
	UseCurrentPosition bool `json:"use_current_position,omitempty"`

	Joints map[string]JointConfig `json:"joints,omitempty"` // joint control name -> mapping
	Frames []FrameConfig          `json:"frames,omitempty"` // static frames known to the handler

	TransformToleranceSec float64 `json:"transform_tolerance_sec,omitempty"` // default: 1s

	IKTimeoutMs  int     `json:"ik_timeout_ms,omitempty"`
	IKAttempts   int     `json:"ik_attempts,omitempty"`
	IKTolerance  float64 `json:"ik_tolerance,omitempty"`
	PositionOnly bool    `json:"position_only,omitempty"`

	// YAML file of pose offsets; relative paths resolve against VIAM_MODULE_DATA
	OffsetsFile string `json:"offsets_file,omitempty"`

	QueueSize int `json:"queue_size,omitempty"`

	// Share one handler with every other service configured for the same group
	ShareHandler bool `json:"share_handler,omitempty"`
}

// JointConfig maps a joint control onto state values.
type JointConfig struct {
	Type  string    `json:"type,omitempty"` // revolute (default), prismatic, planar, floating
	Index int       `json:"index"`
	Axis  []float64 `json:"axis,omitempty"` // default: z
}

// FrameConfig is a static frame: Name's pose in Parent.
type FrameConfig struct {
	Name   string     `json:"name"`
	Parent string     `json:"parent,omitempty"` // default: world
	Pose   PoseConfig `json:"pose"`
}

// Validate ensures all parts of the config are valid
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.Arm == "" {
		return nil, nil, fmt.Errorf("%s: must specify arm", path)
	}

	if cfg.Group == "" {
		cfg.Group = cfg.Arm
	}
	if cfg.PlanningFrame == "" {
		cfg.PlanningFrame = DefaultPlanningFrame
	}
	if cfg.TransformToleranceSec == 0 {
		cfg.TransformToleranceSec = 1
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	if cfg.TransformToleranceSec < 0 {
		return nil, nil, fmt.Errorf("%s: transform_tolerance_sec must not be negative, got %v", path, cfg.TransformToleranceSec)
	}
	if cfg.IKTimeoutMs < 0 || cfg.IKAttempts < 0 || cfg.IKTolerance < 0 {
		return nil, nil, fmt.Errorf("%s: ik options must not be negative", path)
	}
	if cfg.QueueSize < 0 {
		return nil, nil, fmt.Errorf("%s: queue_size must not be negative, got %d", path, cfg.QueueSize)
	}

	for name, j := range cfg.Joints {
		if _, err := j.control(); err != nil {
			return nil, nil, fmt.Errorf("%s: joint %q: %w", path, name, err)
		}
	}
	for i, f := range cfg.Frames {
		if f.Name == "" {
			return nil, nil, fmt.Errorf("%s: frame %d must have a name", path, i)
		}
	}

	return []string{cfg.Arm}, nil, nil
}

func (cfg *Config) transformTolerance() time.Duration {
	return time.Duration(cfg.TransformToleranceSec * float64(time.Second))
}

func (cfg *Config) kinematicOptions() KinematicOptions {
	return KinematicOptions{
		Timeout:   time.Duration(cfg.IKTimeoutMs) * time.Millisecond,
		Attempts:  cfg.IKAttempts,
		Tolerance: cfg.IKTolerance,
	}
}

// signature identifies the settings services sharing a handler must agree on.
func (cfg *Config) signature(chain KinematicChain) string {
	return fmt.Sprintf("%s|%d|%s|%v|%d|%v",
		cfg.PlanningFrame, len(chain.DoF()), strings.Join(cfg.JointNames, ","),
		cfg.PositionOnly, len(cfg.Frames), cfg.TransformToleranceSec)
}

func (cfg *Config) jointControls() map[ControlID]JointControl {
	out := make(map[ControlID]JointControl, len(cfg.Joints))
	for name, j := range cfg.Joints {
		if jc, err := j.control(); err == nil {
			out[name] = jc
		}
	}
	return out
}

func (j JointConfig) control() (JointControl, error) {
	jc := JointControl{Index: j.Index, Axis: r3.Vector{Z: 1}}
	switch j.Type {
	case "", "revolute":
		jc.Type = JointRevolute
	case "prismatic":
		jc.Type = JointPrismatic
	case "planar":
		jc.Type = JointPlanar
	case "floating":
		jc.Type = JointFloating
	default:
		return jc, fmt.Errorf("unknown joint type %q", j.Type)
	}
	if j.Index < 0 {
		return jc, fmt.Errorf("index must not be negative, got %d", j.Index)
	}
	if len(j.Axis) != 0 {
		if len(j.Axis) != 3 {
			return jc, fmt.Errorf("axis must have 3 components, got %d", len(j.Axis))
		}
		jc.Axis = r3.Vector{X: j.Axis[0], Y: j.Axis[1], Z: j.Axis[2]}
		if jc.Axis.Norm() == 0 {
			return jc, fmt.Errorf("axis must not be zero")
		}
	}
	return jc, nil
}
