package robot_interaction

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
)

// Handler maintains the robot state driven by the interactive markers of one
// control group, together with the per-control offsets, last commanded poses and
// error flags. Feedback is applied with HandleEndEffector, HandleJoint and
// HandleGeneric; readers use State, which never blocks.
type Handler struct {
	name          string
	planningFrame string
	logger        logging.Logger

	coordinator *StateCoordinator
	offsets     *PoseOffsetTable
	lastPoses   *LastCommandTable
	errs        *ErrorTracker
	notify      NotificationChannel

	transformer Transformer
	solvers     SolverSet
	metrics     *handlerMetrics

	displayMu       sync.RWMutex
	meshesVisible   bool
	controlsVisible bool
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(logger logging.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithPlanningFrame sets the frame solvers receive targets in. Defaults to "world".
func WithPlanningFrame(frame string) Option {
	return func(h *Handler) { h.planningFrame = frame }
}

// WithTransformer sets the transform lookup. Without one, only feedback already
// expressed in the planning frame is accepted.
func WithTransformer(t Transformer) Option {
	return func(h *Handler) { h.transformer = t }
}

func WithSolvers(s SolverSet) Option {
	return func(h *Handler) { h.solvers = s }
}

func WithUpdateCallback(fn UpdateCallback) Option {
	return func(h *Handler) { h.notify.Set(fn) }
}

// NewHandler creates a handler starting from the provider's default state for group.
func NewHandler(name, group string, provider StateProvider, opts ...Option) (*Handler, error) {
	if provider == nil {
		return nil, errors.New("state provider is required")
	}
	initial, err := provider.DefaultState(group)
	if err != nil {
		return nil, errors.Wrapf(err, "building default state for group %q", group)
	}
	return NewHandlerWithState(name, initial, opts...)
}

// NewHandlerWithState creates a handler starting from initial. An empty name is
// replaced by a generated one.
func NewHandlerWithState(name string, initial *RobotState, opts ...Option) (*Handler, error) {
	if name == "" {
		name = "handler-" + uuid.NewString()
	}
	coordinator, err := NewStateCoordinator(initial)
	if err != nil {
		return nil, err
	}
	h := &Handler{
		name:            name,
		planningFrame:   DefaultPlanningFrame,
		coordinator:     coordinator,
		offsets:         NewPoseOffsetTable(),
		lastPoses:       NewLastCommandTable(),
		errs:            NewErrorTracker(),
		meshesVisible:   true,
		controlsVisible: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logging.NewLogger(name)
	}
	if h.transformer == nil {
		h.transformer = planningFrameOnly{}
	}
	h.metrics = newHandlerMetrics(name)
	coordinator.metrics = h.metrics
	return h, nil
}

func (h *Handler) Name() string { return h.name }

func (h *Handler) PlanningFrame() string { return h.planningFrame }

// State returns the latest published state without blocking.
func (h *Handler) State() *RobotState { return h.coordinator.Current() }

// SetState replaces the handler's state, waiting for any in-flight feedback to
// be published first.
func (h *Handler) SetState(ctx context.Context, state *RobotState) error {
	return h.coordinator.Replace(ctx, state)
}

// Coordinator exposes exclusive and shared state access.
func (h *Handler) Coordinator() *StateCoordinator { return h.coordinator }

// Resync re-derives the state from provider, typically after the underlying model
// changed. The provider is used for this call only.
func (h *Handler) Resync(ctx context.Context, provider StateProvider) error {
	state, err := provider.DefaultState(h.State().Group())
	if err != nil {
		return errors.Wrap(err, "resyncing state")
	}
	if err := h.coordinator.Replace(ctx, state); err != nil {
		return err
	}
	h.logger.Debugf("handler %s resynced to %d joints", h.name, state.NumJoints())
	return nil
}

// Update runs fn with exclusive access to a copy of the state and publishes the
// result, even when fn fails. fn must not call back into this handler's exclusive
// access.
func (h *Handler) Update(ctx context.Context, fn func(u *UniqueState) error) (err error) {
	u, err := h.coordinator.AcquireExclusive(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if perr := h.coordinator.Publish(u); perr != nil && err == nil {
			err = perr
		}
	}()
	return fn(u)
}

func (h *Handler) SetUpdateCallback(fn UpdateCallback) { h.notify.Set(fn) }

func (h *Handler) UpdateCallback() UpdateCallback { return h.notify.Get() }

func (h *Handler) ClearUpdateCallback() { h.notify.Clear() }

func (h *Handler) SetMeshesVisible(visible bool) {
	h.displayMu.Lock()
	defer h.displayMu.Unlock()
	h.meshesVisible = visible
}

func (h *Handler) MeshesVisible() bool {
	h.displayMu.RLock()
	defer h.displayMu.RUnlock()
	return h.meshesVisible
}

func (h *Handler) SetControlsVisible(visible bool) {
	h.displayMu.Lock()
	defer h.displayMu.Unlock()
	h.controlsVisible = visible
}

func (h *Handler) ControlsVisible() bool {
	h.displayMu.RLock()
	defer h.displayMu.RUnlock()
	return h.controlsVisible
}

// SetPoseOffset sets the offset of the control's marker, expressed in the frame
// of the control's parent. A nil offset clears it.
func (h *Handler) SetPoseOffset(kind ControlKind, id ControlID, offset spatialmath.Pose) {
	h.offsets.Set(kind, id, offset)
}

func (h *Handler) PoseOffset(kind ControlKind, id ControlID) (spatialmath.Pose, bool) {
	return h.offsets.Get(kind, id)
}

func (h *Handler) ClearPoseOffset(kind ControlKind, id ControlID) {
	h.offsets.Clear(kind, id)
}

// ClearPoseOffsets removes the offsets of every control of every kind.
func (h *Handler) ClearPoseOffsets() {
	h.offsets.ClearAll()
}

// LastMarkerPose returns the last pose commanded for the control, offset removed,
// in the planning frame.
func (h *Handler) LastMarkerPose(kind ControlKind, id ControlID) (StampedPose, bool) {
	return h.lastPoses.Get(kind, id)
}

func (h *Handler) ClearLastMarkerPose(kind ControlKind, id ControlID) {
	h.lastPoses.Clear(kind, id)
}

func (h *Handler) ClearLastMarkerPoses() {
	h.lastPoses.ClearAll()
}

// InError reports whether the control's last feedback could not be applied.
func (h *Handler) InError(kind ControlKind, id ControlID) bool {
	return h.errs.IsInError(kind, id)
}

// ClearError marks every control valid until its next feedback is processed.
func (h *Handler) ClearError() {
	h.errs.ClearAll()
	h.metrics.inError.Set(0)
}

// ControlsInError lists the controls in error as "kind/id".
func (h *Handler) ControlsInError() []string {
	return h.errs.Controls()
}

// Close releases the handler's metric series.
func (h *Handler) Close() {
	h.metrics.forget()
}
