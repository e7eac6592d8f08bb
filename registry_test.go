package robot_interaction

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/spatialmath"
)

func testBuild(t *testing.T, builds *int) func(UpdateCallback) (*sharedHandler, error) {
	return func(callback UpdateCallback) (*sharedHandler, error) {
		*builds++
		h, err := NewHandlerWithState(t.Name(), testState(t),
			WithLogger(logging.NewTestLogger(t)),
			WithUpdateCallback(callback))
		if err != nil {
			return nil, err
		}
		return &sharedHandler{
			handler: h,
			queue:   NewFeedbackQueue(h, 0),
			frames:  NewFrameBuffer(0),
			options: NewKinematicOptionsMap(DefaultKinematicOptions),
		}, nil
	}
}

// TestRegistryCreation tests basic registry creation and initialization
func TestRegistryCreation(t *testing.T) {
	registry := NewHandlerRegistry()
	require.NotNil(t, registry)
	require.NotNil(t, registry.entries)
	assert.Empty(t, registry.entries)
	assert.Equal(t, int64(0), registry.Status("arm"))
}

func TestRegistrySharing(t *testing.T) {
	registry := NewHandlerRegistry()
	builds := 0
	var mu sync.Mutex
	var heard []string
	listener := func(name string) UpdateCallback {
		return func(*Handler, bool) {
			mu.Lock()
			defer mu.Unlock()
			heard = append(heard, name)
		}
	}

	first, firstID, err := registry.Acquire("arm", "sig", testBuild(t, &builds), listener("first"))
	require.NoError(t, err)
	second, secondID, err := registry.Acquire("arm", "sig", testBuild(t, &builds), listener("second"))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
	assert.NotEqual(t, firstID, secondID)
	assert.Equal(t, int64(2), registry.Status("arm"))

	first.handler.HandleGeneric(context.Background(), Feedback{Control: "knob", Pose: spatialmath.NewZeroPose()})
	assert.Equal(t, []string{"first", "second"}, heard)

	registry.Release("arm", firstID)
	assert.Equal(t, int64(1), registry.Status("arm"))
	require.NoError(t, second.queue.Enqueue(Feedback{Control: "knob", Pose: spatialmath.NewZeroPose()}))
	require.NoError(t, second.queue.Flush(context.Background()))
	assert.Equal(t, []string{"first", "second", "second"}, heard)

	registry.Release("arm", secondID)
	assert.Equal(t, int64(0), registry.Status("arm"))
	assert.ErrorIs(t, second.queue.Enqueue(Feedback{Control: "knob"}), ErrQueueStopped)

	// releasing an unknown group is a no-op
	registry.Release("arm", secondID)
}

func TestRegistryConflict(t *testing.T) {
	registry := NewHandlerRegistry()
	builds := 0
	_, id, err := registry.Acquire("arm", "sig-a", testBuild(t, &builds), func(*Handler, bool) {})
	require.NoError(t, err)
	defer registry.Release("arm", id)

	_, _, err = registry.Acquire("arm", "sig-b", testBuild(t, &builds), func(*Handler, bool) {})
	assert.ErrorContains(t, err, "conflict")
	assert.Equal(t, int64(1), registry.Status("arm"))
	assert.Equal(t, 1, builds)
}

func TestRegistryFailedBuildIsRetried(t *testing.T) {
	registry := NewHandlerRegistry()
	failing := func(UpdateCallback) (*sharedHandler, error) { return nil, errors.New("no model") }
	_, _, err := registry.Acquire("arm", "sig", failing, func(*Handler, bool) {})
	assert.ErrorContains(t, err, "no model")
	assert.Equal(t, int64(0), registry.Status("arm"))

	builds := 0
	_, id, err := registry.Acquire("arm", "sig", testBuild(t, &builds), func(*Handler, bool) {})
	require.NoError(t, err)
	registry.Release("arm", id)
	assert.Equal(t, 1, builds)
}

func TestRegistryConcurrentAcquire(t *testing.T) {
	registry := NewHandlerRegistry()
	builds := 0
	build := testBuild(t, &builds)
	var buildMu sync.Mutex
	guarded := func(cb UpdateCallback) (*sharedHandler, error) {
		buildMu.Lock()
		defer buildMu.Unlock()
		return build(cb)
	}

	const n = 10
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, id, err := registry.Acquire("arm", "sig", guarded, func(*Handler, bool) {})
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, builds)
	assert.Equal(t, int64(n), registry.Status("arm"))

	for _, id := range ids {
		registry.Release("arm", id)
	}
	assert.Equal(t, int64(0), registry.Status("arm"))
}

func TestServicesShareHandler(t *testing.T) {
	cfg := testServiceConfig()
	cfg.Group = t.Name()
	cfg.ShareHandler = true
	_, _, err := cfg.Validate("services.0")
	require.NoError(t, err)

	a, err := newService(resource.NewName(generic.API, "a"), cfg, planarChain{}, nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	b, err := newService(resource.NewName(generic.API, "b"), cfg, planarChain{}, nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	assert.Same(t, a.handler, b.handler)
	assert.Equal(t, int64(2), sharedHandlers.Status(cfg.Group))

	_, err = a.DoCommand(context.Background(), map[string]interface{}{
		"command": "feedback",
		"control": "wrist",
		"kind":    "joint",
		"pose":    map[string]interface{}{},
		"wait":    true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.errorFlips.Load())
	assert.Equal(t, int64(1), b.errorFlips.Load())

	other := *cfg
	other.PlanningFrame = "base"
	_, err = newService(resource.NewName(generic.API, "c"), &other, planarChain{}, nil, logging.NewTestLogger(t))
	assert.Error(t, err)

	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, int64(1), sharedHandlers.Status(cfg.Group))
	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, int64(0), sharedHandlers.Status(cfg.Group))
}
