package robot_interaction

import (
	"context"
	"fmt"
	"time"
)

// DoCommand exposes the handler. Every command names itself in cmd["command"].
func (s *interactionService) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "feedback":
		return s.doFeedback(ctx, cmd)

	case "set_offset":
		kind, control, err := controlFromCmd(cmd)
		if err != nil {
			return nil, err
		}
		offset, err := poseFromCmd(cmd, "offset")
		if err != nil {
			return nil, err
		}
		s.handler.SetPoseOffset(kind, control, offset.Pose())
		return map[string]interface{}{"success": true}, nil

	case "get_offset":
		kind, control, err := controlFromCmd(cmd)
		if err != nil {
			return nil, err
		}
		offset, found := s.handler.PoseOffset(kind, control)
		result := map[string]interface{}{"found": found}
		if found {
			result["offset"] = poseToMap(PoseConfigFromPose(offset))
		}
		return result, nil

	case "clear_offset":
		kind, control, err := controlFromCmd(cmd)
		if err != nil {
			return nil, err
		}
		s.handler.ClearPoseOffset(kind, control)
		return map[string]interface{}{"success": true}, nil

	case "clear_offsets":
		s.handler.ClearPoseOffsets()
		return map[string]interface{}{"success": true}, nil

	case "last_pose":
		kind, control, err := controlFromCmd(cmd)
		if err != nil {
			return nil, err
		}
		last, found := s.handler.LastMarkerPose(kind, control)
		result := map[string]interface{}{"found": found}
		if found {
			result["pose"] = poseToMap(PoseConfigFromPose(last.Pose))
			result["frame"] = last.Frame
			result["stamp"] = last.Stamp.Format(time.RFC3339Nano)
		}
		return result, nil

	case "clear_last_pose":
		kind, control, err := controlFromCmd(cmd)
		if err != nil {
			return nil, err
		}
		s.handler.ClearLastMarkerPose(kind, control)
		return map[string]interface{}{"success": true}, nil

	case "clear_last_poses":
		s.handler.ClearLastMarkerPoses()
		return map[string]interface{}{"success": true}, nil

	case "in_error":
		if _, ok := cmd["control"]; !ok {
			return map[string]interface{}{"controls": stringsToInterfaces(s.handler.ControlsInError())}, nil
		}
		kind, control, err := controlFromCmd(cmd)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"in_error": s.handler.InError(kind, control)}, nil

	case "clear_error":
		s.handler.ClearError()
		return map[string]interface{}{"success": true}, nil

	case "state":
		return s.stateResult(), nil

	case "set_frame":
		return s.doSetFrame(cmd)

	case "resync":
		return s.doResync(ctx)

	case "set_visibility":
		if meshes, ok := cmd["meshes"].(bool); ok {
			s.handler.SetMeshesVisible(meshes)
		}
		if controls, ok := cmd["controls"].(bool); ok {
			s.handler.SetControlsVisible(controls)
		}
		return map[string]interface{}{
			"meshes":   s.handler.MeshesVisible(),
			"controls": s.handler.ControlsVisible(),
		}, nil

	case "set_ik_options":
		opts := KinematicOptions{}
		if ms, ok := cmd["timeout_ms"].(float64); ok {
			opts.Timeout = time.Duration(ms * float64(time.Millisecond))
		}
		if attempts, ok := cmd["attempts"].(float64); ok {
			opts.Attempts = int(attempts)
		}
		if tol, ok := cmd["tolerance"].(float64); ok {
			opts.Tolerance = tol
		}
		s.options.Set(s.cfg.Group, opts)
		set := s.options.KinematicOptions(s.cfg.Group)
		return map[string]interface{}{
			"timeout_ms": float64(set.Timeout) / float64(time.Millisecond),
			"attempts":   set.Attempts,
			"tolerance":  set.Tolerance,
		}, nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

// doFeedback enqueues a feedback event. With "wait": true it also waits for the
// event to be processed and reports the control's error state.
func (s *interactionService) doFeedback(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	kind, control, err := controlFromCmd(cmd)
	if err != nil {
		return nil, err
	}
	pose, err := poseFromCmd(cmd, "pose")
	if err != nil {
		return nil, err
	}
	fb := Feedback{Control: control, Kind: kind, Pose: pose.Pose(), Stamp: time.Now()}
	if frame, ok := cmd["frame"].(string); ok {
		fb.Frame = frame
	}
	if stamp, ok := cmd["stamp"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return nil, fmt.Errorf("stamp must be RFC3339: %w", err)
		}
		fb.Stamp = t
	}

	if err := s.queue.Enqueue(fb); err != nil {
		return nil, err
	}
	if wait, _ := cmd["wait"].(bool); !wait {
		return map[string]interface{}{"queued": true}, nil
	}
	if err := s.queue.Flush(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"queued":     true,
		"in_error":   s.handler.InError(kind, control),
		"generation": s.handler.State().Generation(),
	}, nil
}

func (s *interactionService) doSetFrame(cmd map[string]interface{}) (map[string]interface{}, error) {
	name, _ := cmd["name"].(string)
	parent, _ := cmd["parent"].(string)
	if parent == "" {
		parent = s.cfg.PlanningFrame
	}
	pose, err := poseFromCmd(cmd, "pose")
	if err != nil {
		return nil, err
	}
	if static, _ := cmd["static"].(bool); static {
		err = s.frames.SetStaticTransform(name, parent, pose.Pose())
	} else {
		err = s.frames.SetTransform(name, parent, pose.Pose(), time.Now())
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"frames": stringsToInterfaces(s.frames.Frames())}, nil
}

func (s *interactionService) doResync(ctx context.Context) (map[string]interface{}, error) {
	if s.arm == nil {
		return nil, fmt.Errorf("no arm to resync from")
	}
	model, err := s.arm.Kinematics(ctx)
	if err != nil {
		return nil, err
	}
	provider := ChainStateProvider{Chain: model, JointNames: s.cfg.JointNames}
	if err := s.handler.Resync(ctx, provider); err != nil {
		return nil, err
	}
	return s.stateResult(), nil
}

func (s *interactionService) stateResult() map[string]interface{} {
	state := s.handler.State()
	values := state.Values()
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return map[string]interface{}{
		"handler":     s.handler.Name(),
		"group":       state.Group(),
		"generation":  state.Generation(),
		"joint_names": stringsToInterfaces(state.JointNames()),
		"values":      vals,
		"updates":     s.updates.Load(),
		"error_flips": s.errorFlips.Load(),
	}
}

func controlFromCmd(cmd map[string]interface{}) (ControlKind, ControlID, error) {
	control, ok := cmd["control"].(string)
	if !ok || control == "" {
		return 0, "", fmt.Errorf("control must be a non-empty string")
	}
	kindName, _ := cmd["kind"].(string)
	kind, err := ParseControlKind(kindName)
	if err != nil {
		return 0, "", err
	}
	return kind, control, nil
}

func poseFromCmd(cmd map[string]interface{}, key string) (PoseConfig, error) {
	raw, ok := cmd[key].(map[string]interface{})
	if !ok {
		return PoseConfig{}, fmt.Errorf("%s must be an object", key)
	}
	var p PoseConfig
	fields := map[string]*float64{
		"x": &p.X, "y": &p.Y, "z": &p.Z,
		"o_x": &p.OX, "o_y": &p.OY, "o_z": &p.OZ, "theta": &p.Theta,
	}
	for name, dst := range fields {
		v, present := raw[name]
		if !present {
			continue
		}
		f, ok := v.(float64)
		if !ok {
			return PoseConfig{}, fmt.Errorf("%s.%s must be a number", key, name)
		}
		*dst = f
	}
	return p, nil
}

func poseToMap(p PoseConfig) map[string]interface{} {
	return map[string]interface{}{
		"x": p.X, "y": p.Y, "z": p.Z,
		"o_x": p.OX, "o_y": p.OY, "o_z": p.OZ, "theta": p.Theta,
	}
}

func stringsToInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
