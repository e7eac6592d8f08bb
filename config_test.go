package robot_interaction

import (
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Run("requires an arm", func(t *testing.T) {
		cfg := &Config{}
		_, _, err := cfg.Validate("services.0")
		assert.ErrorContains(t, err, "must specify arm")
	})

	t.Run("fills defaults and depends on the arm", func(t *testing.T) {
		cfg := &Config{Arm: "so101"}
		deps, optional, err := cfg.Validate("services.0")
		require.NoError(t, err)
		assert.Equal(t, []string{"so101"}, deps)
		assert.Empty(t, optional)

		assert.Equal(t, "so101", cfg.Group)
		assert.Equal(t, DefaultPlanningFrame, cfg.PlanningFrame)
		assert.Equal(t, time.Second, cfg.transformTolerance())
		assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		cfg := &Config{Arm: "so101", Group: "left", PlanningFrame: "base", TransformToleranceSec: 0.25}
		_, _, err := cfg.Validate("services.0")
		require.NoError(t, err)
		assert.Equal(t, "left", cfg.Group)
		assert.Equal(t, "base", cfg.PlanningFrame)
		assert.Equal(t, 250*time.Millisecond, cfg.transformTolerance())
	})

	t.Run("rejects negative values", func(t *testing.T) {
		for _, cfg := range []*Config{
			{Arm: "a", TransformToleranceSec: -1},
			{Arm: "a", IKTimeoutMs: -1},
			{Arm: "a", IKAttempts: -1},
			{Arm: "a", QueueSize: -1},
		} {
			_, _, err := cfg.Validate("services.0")
			assert.Error(t, err)
		}
	})

	t.Run("rejects bad joints", func(t *testing.T) {
		for name, j := range map[string]JointConfig{
			"type":  {Type: "spherical"},
			"index": {Index: -1},
			"axis":  {Axis: []float64{1, 0}},
			"zero":  {Axis: []float64{0, 0, 0}},
		} {
			cfg := &Config{Arm: "a", Joints: map[string]JointConfig{name: j}}
			_, _, err := cfg.Validate("services.0")
			assert.Error(t, err, name)
		}
	})

	t.Run("rejects unnamed frames", func(t *testing.T) {
		cfg := &Config{Arm: "a", Frames: []FrameConfig{{Parent: "world"}}}
		_, _, err := cfg.Validate("services.0")
		assert.Error(t, err)
	})
}

func TestConfigJointControls(t *testing.T) {
	cfg := &Config{Arm: "a", Joints: map[string]JointConfig{
		"elbow": {Index: 1},
		"slide": {Type: "prismatic", Index: 0, Axis: []float64{1, 0, 0}},
		"base":  {Type: "planar"},
	}}
	controls := cfg.jointControls()
	require.Len(t, controls, 3)
	assert.Equal(t, JointControl{Type: JointRevolute, Index: 1, Axis: r3.Vector{Z: 1}}, controls["elbow"])
	assert.Equal(t, JointControl{Type: JointPrismatic, Index: 0, Axis: r3.Vector{X: 1}}, controls["slide"])
	assert.Equal(t, JointPlanar, controls["base"].Type)
}

func TestConfigKinematicOptions(t *testing.T) {
	cfg := &Config{IKTimeoutMs: 200, IKAttempts: 3}
	opts := NewKinematicOptionsMap(cfg.kinematicOptions()).KinematicOptions("any")
	assert.Equal(t, 200*time.Millisecond, opts.Timeout)
	assert.Equal(t, 3, opts.Attempts)
	assert.Equal(t, DefaultKinematicOptions.Tolerance, opts.Tolerance)
}
