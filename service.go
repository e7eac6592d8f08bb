package robot_interaction

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/spatialmath"
)

var InteractionHandlerModel = resource.NewModel("devrel", "interaction", "handler")

func init() {
	resource.RegisterService(
		generic.API,
		InteractionHandlerModel,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newInteractionService,
		},
	)
}

// interactionService exposes a Handler driving an arm's kinematic model over DoCommand.
type interactionService struct {
	resource.Named
	resource.AlwaysRebuild

	logger logging.Logger
	cfg    *Config
	arm    arm.Arm

	shared     *sharedHandler
	listenerID uint64
	handler    *Handler
	queue      *FeedbackQueue
	frames     *FrameBuffer
	options    *KinematicOptionsMap

	updates     atomic.Int64
	errorFlips  atomic.Int64
	lastChanged atomic.Bool
}

func newInteractionService(ctx context.Context, deps resource.Dependencies, conf resource.Config, logger logging.Logger) (resource.Resource, error) {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}

	armResource, err := deps.Lookup(resource.NewName(arm.API, cfg.Arm))
	if err != nil {
		return nil, fmt.Errorf("arm %q not available: %w", cfg.Arm, err)
	}
	a, ok := armResource.(arm.Arm)
	if !ok {
		return nil, fmt.Errorf("resource %q is not an arm", cfg.Arm)
	}

	model, err := a.Kinematics(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get kinematics for arm %q", cfg.Arm)
	}

	var initial []float64
	if cfg.UseCurrentPosition {
		initial, err = a.JointPositions(ctx, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read joint positions of arm %q", cfg.Arm)
		}
	}

	svc, err := newService(conf.ResourceName(), cfg, model, initial, logger)
	if err != nil {
		return nil, err
	}
	svc.arm = a
	return svc, nil
}

// newService builds the service around chain. initial, when non-nil, overrides
// the chain's default joint values.
func newService(name resource.Name, cfg *Config, chain KinematicChain, initial []float64, logger logging.Logger) (*interactionService, error) {
	svc := &interactionService{
		Named:  name.AsNamed(),
		logger: logger,
		cfg:    cfg,
	}

	build := func(callback UpdateCallback) (*sharedHandler, error) {
		return buildHandler(name.Name, cfg, chain, initial, callback, logger)
	}

	var shared *sharedHandler
	var err error
	if cfg.ShareHandler {
		shared, svc.listenerID, err = sharedHandlers.Acquire(cfg.Group, cfg.signature(chain), build, svc.onUpdate)
	} else {
		shared, err = build(svc.onUpdate)
	}
	if err != nil {
		return nil, err
	}
	svc.shared = shared
	svc.handler = shared.handler
	svc.queue = shared.queue
	svc.frames = shared.frames
	svc.options = shared.options

	logger.Infof("Interaction handler %s initialized for group %s with %d joints (planning frame %s, shared: %v)",
		svc.handler.Name(), cfg.Group, svc.handler.State().NumJoints(), cfg.PlanningFrame, cfg.ShareHandler)
	return svc, nil
}

func buildHandler(name string, cfg *Config, chain KinematicChain, initial []float64, callback UpdateCallback, logger logging.Logger) (*sharedHandler, error) {
	provider := ChainStateProvider{Chain: chain, JointNames: cfg.JointNames}
	state, err := provider.DefaultState(cfg.Group)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build initial state")
	}
	if initial != nil {
		state, err = NewRobotState(cfg.Group, cfg.JointNames, state.Limits(), initial)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build initial state from joint positions")
		}
	}

	frames := NewFrameBuffer(cfg.transformTolerance())
	for _, f := range cfg.Frames {
		parent := f.Parent
		if parent == "" {
			parent = cfg.PlanningFrame
		}
		if err := frames.SetStaticTransform(f.Name, parent, f.Pose.Pose()); err != nil {
			return nil, errors.Wrapf(err, "invalid frame %q", f.Name)
		}
	}

	options := NewKinematicOptionsMap(cfg.kinematicOptions())
	solver := NewChainSolver(ChainSolverConfig{
		Chain:        chain,
		Options:      options,
		Joints:       cfg.jointControls(),
		PositionOnly: cfg.PositionOnly,
		Logger:       logger,
	})

	handler, err := NewHandlerWithState(name, state,
		WithLogger(logger),
		WithPlanningFrame(cfg.PlanningFrame),
		WithTransformer(frames),
		WithSolvers(solver.Solvers(SolverFunc(acceptGeneric))),
		WithUpdateCallback(callback),
	)
	if err != nil {
		return nil, err
	}

	if cfg.OffsetsFile != "" {
		presets, err := LoadOffsetPresets(ResolveDataPath(cfg.OffsetsFile))
		if err != nil {
			logger.Warnf("Failed to load pose offsets from %s: %v", cfg.OffsetsFile, err)
		} else {
			ApplyOffsetPresets(handler, presets, logger)
		}
	}

	return &sharedHandler{
		handler: handler,
		queue:   NewFeedbackQueue(handler, cfg.QueueSize),
		frames:  frames,
		options: options,
	}, nil
}

// acceptGeneric records generic feedback as commanded intent without touching the state.
func acceptGeneric(context.Context, *UniqueState, ControlID, spatialmath.Pose) bool {
	return true
}

func (s *interactionService) onUpdate(h *Handler, errorChanged bool) {
	s.updates.Add(1)
	s.lastChanged.Store(errorChanged)
	if errorChanged {
		s.errorFlips.Add(1)
		s.logger.Debugf("handler %s error state changed, controls in error: %v", h.Name(), h.ControlsInError())
	}
}

func (s *interactionService) Close(ctx context.Context) error {
	s.logger.Info("Closing interaction handler")
	if s.cfg.ShareHandler {
		sharedHandlers.Release(s.cfg.Group, s.listenerID)
		return nil
	}
	s.shared.close()
	return nil
}
