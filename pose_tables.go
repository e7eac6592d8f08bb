package robot_interaction

import (
	"sync"
	"time"

	"go.viam.com/rdk/spatialmath"
)

// PoseOffsetTable holds, per control, the offset between the control's natural
// frame (end-effector parent link or joint) and the frame its interactive marker
// is drawn in, expressed in the parent frame. A missing entry means no offset.
type PoseOffsetTable struct {
	mu      sync.Mutex
	offsets map[controlKey]spatialmath.Pose
}

func NewPoseOffsetTable() *PoseOffsetTable {
	return &PoseOffsetTable{offsets: make(map[controlKey]spatialmath.Pose)}
}

// Set records the control's offset. A nil offset removes the entry.
func (t *PoseOffsetTable) Set(kind ControlKind, id ControlID, offset spatialmath.Pose) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if offset == nil {
		delete(t.offsets, controlKey{kind, id})
		return
	}
	t.offsets[controlKey{kind, id}] = offset
}

func (t *PoseOffsetTable) Get(kind ControlKind, id ControlID) (spatialmath.Pose, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.offsets[controlKey{kind, id}]
	return p, ok
}

// Lookup is Get with the identity pose standing in for a missing entry.
func (t *PoseOffsetTable) Lookup(kind ControlKind, id ControlID) spatialmath.Pose {
	if p, ok := t.Get(kind, id); ok {
		return p
	}
	return spatialmath.NewZeroPose()
}

func (t *PoseOffsetTable) Clear(kind ControlKind, id ControlID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.offsets, controlKey{kind, id})
}

func (t *PoseOffsetTable) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offsets = make(map[controlKey]spatialmath.Pose)
}

func (t *PoseOffsetTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.offsets)
}

// LastCommandTable records the most recent target pose received for each
// control, with its offset already removed, so applications can read the
// commanded pose even when no valid state satisfied it.
type LastCommandTable struct {
	mu    sync.Mutex
	poses map[controlKey]StampedPose
}

func NewLastCommandTable() *LastCommandTable {
	return &LastCommandTable{poses: make(map[controlKey]StampedPose)}
}

func (t *LastCommandTable) Set(kind ControlKind, id ControlID, pose spatialmath.Pose, frame string, stamp time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.poses[controlKey{kind, id}] = StampedPose{Pose: pose, Frame: frame, Stamp: stamp}
}

func (t *LastCommandTable) Get(kind ControlKind, id ControlID) (StampedPose, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.poses[controlKey{kind, id}]
	return p, ok
}

func (t *LastCommandTable) Clear(kind ControlKind, id ControlID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.poses, controlKey{kind, id})
}

func (t *LastCommandTable) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.poses = make(map[controlKey]StampedPose)
}

func (t *LastCommandTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.poses)
}
