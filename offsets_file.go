package robot_interaction

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	"gopkg.in/yaml.v3"
)

// PoseConfig is a pose as written in config and preset files: a translation plus
// an orientation vector in degrees. A missing orientation means no rotation.
type PoseConfig struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
	OX    float64 `json:"o_x,omitempty" yaml:"o_x,omitempty"`
	OY    float64 `json:"o_y,omitempty" yaml:"o_y,omitempty"`
	OZ    float64 `json:"o_z,omitempty" yaml:"o_z,omitempty"`
	Theta float64 `json:"theta,omitempty" yaml:"theta,omitempty"`
}

func (p PoseConfig) Pose() spatialmath.Pose {
	pt := r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
	if p.OX == 0 && p.OY == 0 && p.OZ == 0 {
		return spatialmath.NewPoseFromPoint(pt)
	}
	return spatialmath.NewPose(pt, &spatialmath.OrientationVectorDegrees{OX: p.OX, OY: p.OY, OZ: p.OZ, Theta: p.Theta})
}

// PoseConfigFromPose is the inverse of PoseConfig.Pose.
func PoseConfigFromPose(pose spatialmath.Pose) PoseConfig {
	pt := pose.Point()
	ov := pose.Orientation().OrientationVectorDegrees()
	return PoseConfig{X: pt.X, Y: pt.Y, Z: pt.Z, OX: ov.OX, OY: ov.OY, OZ: ov.OZ, Theta: ov.Theta}
}

// OffsetPreset is one entry of an offsets file.
type OffsetPreset struct {
	Control string     `yaml:"control"`
	Kind    string     `yaml:"kind,omitempty"`
	Offset  PoseConfig `yaml:"offset"`
}

type offsetsFile struct {
	Offsets []OffsetPreset `yaml:"offsets"`
}

// ResolveDataPath makes a relative path relative to VIAM_MODULE_DATA, or /tmp
// when that is unset.
func ResolveDataPath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	dir := os.Getenv("VIAM_MODULE_DATA")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, path)
}

// LoadOffsetPresets reads an offsets YAML file.
func LoadOffsetPresets(path string) ([]OffsetPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read offsets file")
	}
	var f offsetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse offsets YAML")
	}
	for i, p := range f.Offsets {
		if p.Control == "" {
			return nil, fmt.Errorf("offset %d: control must be set", i)
		}
		if _, err := ParseControlKind(p.Kind); err != nil {
			return nil, fmt.Errorf("offset %d (%s): %w", i, p.Control, err)
		}
	}
	return f.Offsets, nil
}

// SaveOffsetPresets writes presets to path as YAML.
func SaveOffsetPresets(path string, presets []OffsetPreset) error {
	data, err := yaml.Marshal(offsetsFile{Offsets: presets})
	if err != nil {
		return errors.Wrap(err, "failed to marshal offsets")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write offsets file")
	}
	return nil
}

// ApplyOffsetPresets sets every preset on h.
func ApplyOffsetPresets(h *Handler, presets []OffsetPreset, logger logging.Logger) {
	for _, p := range presets {
		kind, err := ParseControlKind(p.Kind)
		if err != nil {
			logger.Warnf("skipping offset for %q: %v", p.Control, err)
			continue
		}
		h.SetPoseOffset(kind, p.Control, p.Offset.Pose())
	}
	logger.Debugf("applied %d pose offsets to handler %s", len(presets), h.Name())
}
