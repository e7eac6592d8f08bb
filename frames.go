package robot_interaction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
)

// DefaultPlanningFrame is the frame targets are handed to solvers in unless
// configured otherwise.
const DefaultPlanningFrame = referenceframe.World

// planningFrameOnly accepts poses that are already in the target frame.
type planningFrameOnly struct{}

func (planningFrameOnly) TransformPose(_ context.Context, p StampedPose, target string) (spatialmath.Pose, error) {
	if p.Frame == "" || p.Frame == target {
		return p.Pose, nil
	}
	return nil, fmt.Errorf("%w: no transformer configured to resolve %q into %q", ErrTransform, p.Frame, target)
}

type frameLink struct {
	parent string
	pose   spatialmath.Pose
	stamp  time.Time
	static bool
}

// FrameBuffer is a tree of stamped parent/child transforms. Each link stores the
// child's pose in its parent's frame. Lookups at a given time fail when a
// non-static link on the path is further than the tolerance from that time; a
// zero time means "latest available".
type FrameBuffer struct {
	mu        sync.RWMutex
	links     map[string]frameLink
	tolerance time.Duration
}

func NewFrameBuffer(tolerance time.Duration) *FrameBuffer {
	return &FrameBuffer{links: make(map[string]frameLink), tolerance: tolerance}
}

// SetTransform records child's pose in parent at stamp.
func (b *FrameBuffer) SetTransform(child, parent string, pose spatialmath.Pose, stamp time.Time) error {
	return b.set(child, frameLink{parent: parent, pose: pose, stamp: stamp})
}

// SetStaticTransform records a link that never goes stale.
func (b *FrameBuffer) SetStaticTransform(child, parent string, pose spatialmath.Pose) error {
	return b.set(child, frameLink{parent: parent, pose: pose, static: true})
}

func (b *FrameBuffer) set(child string, link frameLink) error {
	if child == "" || link.parent == "" {
		return fmt.Errorf("frame names must not be empty")
	}
	if link.pose == nil {
		link.pose = spatialmath.NewZeroPose()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for f := link.parent; f != ""; {
		if f == child {
			return fmt.Errorf("linking %q under %q would create a cycle", child, link.parent)
		}
		next, ok := b.links[f]
		if !ok {
			break
		}
		f = next.parent
	}
	b.links[child] = link
	return nil
}

func (b *FrameBuffer) RemoveFrame(child string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.links, child)
}

// Frames lists every frame that appears as a child or a parent, sorted.
func (b *FrameBuffer) Frames() []string {
	b.mu.RLock()
	seen := make(map[string]struct{}, 2*len(b.links))
	for child, l := range b.links {
		seen[child] = struct{}{}
		seen[l.parent] = struct{}{}
	}
	b.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// LookupTransform returns the pose of frame expressed in target at time at.
func (b *FrameBuffer) LookupTransform(frame, target string, at time.Time) (spatialmath.Pose, error) {
	if frame == target {
		return spatialmath.NewZeroPose(), nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	frameRoot, frameInRoot, err := b.toRoot(frame, at)
	if err != nil {
		return nil, err
	}
	targetRoot, targetInRoot, err := b.toRoot(target, at)
	if err != nil {
		return nil, err
	}
	if frameRoot != targetRoot {
		return nil, fmt.Errorf("%w: %q and %q are not connected", ErrTransform, frame, target)
	}
	return spatialmath.Compose(spatialmath.PoseInverse(targetInRoot), frameInRoot), nil
}

// TransformPose implements Transformer.
func (b *FrameBuffer) TransformPose(ctx context.Context, p StampedPose, target string) (spatialmath.Pose, error) {
	if p.Frame == "" {
		return p.Pose, nil
	}
	frameInTarget, err := b.LookupTransform(p.Frame, target, p.Stamp)
	if err != nil {
		return nil, err
	}
	return spatialmath.Compose(frameInTarget, p.Pose), nil
}

// toRoot walks from frame up to the root of its tree. Callers hold b.mu.
func (b *FrameBuffer) toRoot(frame string, at time.Time) (string, spatialmath.Pose, error) {
	pose := spatialmath.NewZeroPose()
	if _, ok := b.links[frame]; !ok && !b.isParent(frame) {
		return "", nil, fmt.Errorf("%w: unknown frame %q", ErrTransform, frame)
	}
	f := frame
	for {
		link, ok := b.links[f]
		if !ok {
			return f, pose, nil
		}
		if !link.static && !at.IsZero() && b.tolerance > 0 {
			if d := at.Sub(link.stamp); d > b.tolerance || d < -b.tolerance {
				return "", nil, fmt.Errorf("%w: transform %q -> %q is stale by %v", ErrTransform, f, link.parent, d)
			}
		}
		pose = spatialmath.Compose(link.pose, pose)
		f = link.parent
	}
}

func (b *FrameBuffer) isParent(frame string) bool {
	for _, l := range b.links {
		if l.parent == frame {
			return true
		}
	}
	return false
}
