package robot_interaction

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/spatialmath"
)

func TestFeedbackQueueOrdering(t *testing.T) {
	solver := &recordingSolver{ok: true}
	h, _ := newTestHandler(t, SolverSet{Joint: solver})
	q := NewFeedbackQueue(h, 0)
	defer q.Close()

	var want []ControlID
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("joint-%d", i)
		want = append(want, id)
		require.NoError(t, q.Enqueue(Feedback{Control: id, Kind: KindJoint, Pose: spatialmath.NewZeroPose()}))
	}
	require.NoError(t, q.Flush(context.Background()))

	assert.Equal(t, want, solver.controls())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(20), h.State().Generation())
}

func TestFeedbackQueueFull(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	blocking := SolverFunc(func(context.Context, *UniqueState, ControlID, spatialmath.Pose) bool {
		entered <- struct{}{}
		<-release
		return true
	})
	h, _ := newTestHandler(t, SolverSet{EndEffector: blocking})
	q := NewFeedbackQueue(h, 1)
	defer q.Close()

	fb := Feedback{Control: "tool", Pose: spatialmath.NewZeroPose()}
	require.NoError(t, q.Enqueue(fb))
	<-entered

	require.NoError(t, q.Enqueue(fb))
	assert.ErrorIs(t, q.Enqueue(fb), ErrQueueFull)
	assert.Equal(t, 1, q.Len())

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Flush(ctx))
	assert.Equal(t, uint64(2), h.State().Generation())
}

func TestFeedbackQueueClose(t *testing.T) {
	h, _ := newTestHandler(t, SolverSet{})
	q := NewFeedbackQueue(h, 4)
	q.Close()

	assert.ErrorIs(t, q.Enqueue(Feedback{Control: "tool", Pose: spatialmath.NewZeroPose()}), ErrQueueStopped)
	assert.ErrorIs(t, q.Flush(context.Background()), ErrQueueStopped)
}
