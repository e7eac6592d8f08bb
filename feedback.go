package robot_interaction

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.viam.com/rdk/spatialmath"
)

// HandleEndEffector applies feedback from an end-effector marker.
func (h *Handler) HandleEndEffector(ctx context.Context, fb Feedback) {
	h.handle(ctx, KindEndEffector, fb)
}

// HandleJoint applies feedback from a joint marker.
func (h *Handler) HandleJoint(ctx context.Context, fb Feedback) {
	h.handle(ctx, KindJoint, fb)
}

// HandleGeneric applies feedback from a generic marker.
func (h *Handler) HandleGeneric(ctx context.Context, fb Feedback) {
	h.handle(ctx, KindGeneric, fb)
}

// Handle dispatches on fb.Kind.
func (h *Handler) Handle(ctx context.Context, fb Feedback) {
	h.handle(ctx, fb.Kind, fb)
}

// handle transforms the feedback pose, solves for it under exclusive access,
// records the commanded pose and error state, publishes, then notifies. Transform
// failures drop the event before anything is touched.
func (h *Handler) handle(ctx context.Context, kind ControlKind, fb Feedback) {
	ctx, span := tracer.Start(ctx, "interaction.feedback", trace.WithAttributes(
		attribute.String("handler", h.name),
		attribute.String("control", fb.Control),
		attribute.String("kind", kind.String()),
	))
	defer span.End()
	h.metrics.event(kind)

	offset := h.offsets.Lookup(kind, fb.Control)
	target, err := h.targetPose(ctx, fb, offset)
	if err != nil {
		h.logger.Debugf("dropping %s feedback for %q: %v", kind, fb.Control, err)
		h.metrics.dropped(kind)
		span.SetStatus(codes.Error, "transform failed")
		span.RecordError(err)
		return
	}

	ok, changed, err := h.apply(ctx, kind, fb.Control, target)
	if err != nil {
		h.logger.Warnf("could not apply %s feedback for %q: %v", kind, fb.Control, err)
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.Bool("solved", ok), attribute.Bool("error_changed", changed))
	h.metrics.inError.Set(float64(h.errs.Len()))

	h.notify.Notify(h, changed)
}

// apply runs steps that need exclusive access. The handle is always published,
// including when the solver panics, so the next writer is never locked out.
func (h *Handler) apply(ctx context.Context, kind ControlKind, id ControlID, target spatialmath.Pose) (ok, changed bool, err error) {
	u, err := h.coordinator.AcquireExclusive(ctx)
	if err != nil {
		return false, false, err
	}
	defer func() {
		if perr := h.coordinator.Publish(u); perr != nil && err == nil {
			err = perr
		}
	}()

	start := time.Now()
	ok = h.solve(ctx, kind, u, id, target)
	h.metrics.solved(kind, ok, time.Since(start).Seconds())

	h.lastPoses.Set(kind, id, target, h.planningFrame, time.Now())
	changed = h.errs.SetInError(kind, id, !ok)
	return ok, changed, nil
}

func (h *Handler) solve(ctx context.Context, kind ControlKind, u *UniqueState, id ControlID, target spatialmath.Pose) (ok bool) {
	solver := h.solvers.forKind(kind)
	if solver == nil {
		h.logger.Debugf("no %s solver configured, marking %q in error", kind, id)
		return false
	}
	before := u.Values()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorf("%s solver panicked for %q: %v", kind, id, r)
			// leave a valid state behind
			if err := u.SetValues(before); err != nil {
				h.logger.Errorf("could not restore state after %s solver panic: %v", kind, err)
			}
			ok = false
		}
	}()
	return solver.Solve(ctx, u, id, target)
}

// targetPose expresses the feedback pose in the planning frame and removes the
// control's offset from it.
func (h *Handler) targetPose(ctx context.Context, fb Feedback, offset spatialmath.Pose) (spatialmath.Pose, error) {
	if fb.Pose == nil {
		return nil, fmt.Errorf("%w: feedback for %q has no pose", ErrTransform, fb.Control)
	}
	inPlanning, err := h.transformer.TransformPose(ctx, fb.stamped(), h.planningFrame)
	if err != nil {
		return nil, err
	}
	if offset == nil {
		return inPlanning, nil
	}
	return spatialmath.Compose(inPlanning, spatialmath.PoseInverse(offset)), nil
}
