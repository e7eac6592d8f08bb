package robot_interaction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/referenceframe"
)

func TestNewRobotState(t *testing.T) {
	t.Run("mismatched joint names", func(t *testing.T) {
		_, err := NewRobotState("g", []string{"a"}, nil, []float64{0, 0})
		assert.Error(t, err)
	})

	t.Run("mismatched limits", func(t *testing.T) {
		_, err := NewRobotState("g", nil, []referenceframe.Limit{{Min: 0, Max: 1}}, []float64{0, 0})
		assert.Error(t, err)
	})

	t.Run("values are copied", func(t *testing.T) {
		values := []float64{1, 2}
		s, err := NewRobotState("g", nil, nil, values)
		require.NoError(t, err)
		values[0] = 42
		assert.Equal(t, []float64{1, 2}, s.Values())

		out := s.Values()
		out[1] = 42
		assert.Equal(t, []float64{1, 2}, s.Values())
	})

	t.Run("joint lookup", func(t *testing.T) {
		s := testState(t)
		assert.Equal(t, 1, s.JointIndex("elbow"))
		assert.Equal(t, -1, s.JointIndex("wrist"))
		v, ok := s.JointValue("shoulder")
		assert.True(t, ok)
		assert.Equal(t, 0.0, v)
	})
}

func TestStateCoordinator(t *testing.T) {
	t.Run("nil initial state", func(t *testing.T) {
		_, err := NewStateCoordinator(nil)
		assert.ErrorIs(t, err, ErrNilState)
	})

	t.Run("publish installs a new generation", func(t *testing.T) {
		c, err := NewStateCoordinator(testState(t))
		require.NoError(t, err)
		before := c.Current()

		u, err := c.AcquireExclusive(context.Background())
		require.NoError(t, err)
		assert.True(t, u.SetJointValue(0, 0.5))
		assert.Equal(t, 0.0, c.Current().Values()[0], "unpublished writes are invisible")

		require.NoError(t, c.Publish(u))
		after := c.Current()
		assert.Equal(t, before.Generation()+1, after.Generation())
		assert.Equal(t, 0.5, after.Values()[0])
		assert.Equal(t, 0.0, before.Values()[0], "published states are never modified")
	})

	t.Run("discard keeps the current state", func(t *testing.T) {
		c, err := NewStateCoordinator(testState(t))
		require.NoError(t, err)
		u, err := c.AcquireExclusive(context.Background())
		require.NoError(t, err)
		u.SetJointValue(0, 0.5)
		require.NoError(t, c.Discard(u))
		assert.Equal(t, uint64(0), c.Current().Generation())
		assert.Equal(t, 0.0, c.Current().Values()[0])
		assert.False(t, c.Held())
	})

	t.Run("handle is released only once", func(t *testing.T) {
		c, err := NewStateCoordinator(testState(t))
		require.NoError(t, err)
		u, err := c.AcquireExclusive(context.Background())
		require.NoError(t, err)
		require.NoError(t, c.Publish(u))
		assert.ErrorIs(t, c.Publish(u), ErrAlreadyPublished)
		assert.ErrorIs(t, c.Discard(u), ErrAlreadyPublished)
	})

	t.Run("writes after publish never reach readers", func(t *testing.T) {
		c, err := NewStateCoordinator(testState(t))
		require.NoError(t, err)
		u, err := c.AcquireExclusive(context.Background())
		require.NoError(t, err)
		require.True(t, u.SetJointValue(0, 0.5))
		require.NoError(t, c.Publish(u))
		reader := c.Current()

		assert.True(t, u.Released())
		assert.False(t, u.SetJointValue(0, 1))
		assert.ErrorIs(t, u.SetValues([]float64{7, 7}), ErrAlreadyPublished)
		assert.Equal(t, []float64{0.5, 0}, reader.Values())
		assert.Equal(t, []float64{0.5, 0}, u.Values(), "the handle still reads what it published")
		assert.NotSame(t, reader, u.State())
	})

	t.Run("writes after discard are refused", func(t *testing.T) {
		c, err := NewStateCoordinator(testState(t))
		require.NoError(t, err)
		u, err := c.AcquireExclusive(context.Background())
		require.NoError(t, err)
		require.NoError(t, c.Discard(u))

		assert.False(t, u.SetJointValue(0, 1))
		assert.ErrorIs(t, u.SetValues([]float64{1, 1}), ErrAlreadyPublished)
		assert.Equal(t, []float64{0, 0}, c.Current().Values())
	})

	t.Run("handle from another coordinator", func(t *testing.T) {
		a, err := NewStateCoordinator(testState(t))
		require.NoError(t, err)
		b, err := NewStateCoordinator(testState(t))
		require.NoError(t, err)
		u, err := a.AcquireExclusive(context.Background())
		require.NoError(t, err)
		assert.ErrorIs(t, b.Publish(u), ErrNotExclusiveHolder)
		require.NoError(t, a.Publish(u))
	})

	t.Run("second writer waits for publish", func(t *testing.T) {
		c, err := NewStateCoordinator(testState(t))
		require.NoError(t, err)
		first, err := c.AcquireExclusive(context.Background())
		require.NoError(t, err)
		first.SetJointValue(0, 1)

		acquired := make(chan *UniqueState)
		go func() {
			u, err := c.AcquireExclusive(context.Background())
			if err == nil {
				acquired <- u
			}
		}()

		select {
		case <-acquired:
			t.Fatal("second writer acquired while the first still holds the state")
		case <-time.After(50 * time.Millisecond):
		}

		// readers are not blocked by the writer
		assert.Equal(t, 0.0, c.Current().Values()[0])

		require.NoError(t, c.Publish(first))
		select {
		case second := <-acquired:
			assert.Equal(t, 1.0, second.Values()[0], "second writer starts from the published state")
			require.NoError(t, c.Publish(second))
		case <-time.After(time.Second):
			t.Fatal("second writer never acquired")
		}
		assert.Equal(t, uint64(2), c.Current().Generation())
	})

	t.Run("acquire honours context", func(t *testing.T) {
		c, err := NewStateCoordinator(testState(t))
		require.NoError(t, err)
		u, ok := c.TryAcquireExclusive()
		require.True(t, ok)
		_, ok = c.TryAcquireExclusive()
		assert.False(t, ok)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = c.AcquireExclusive(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		require.NoError(t, c.Discard(u))
	})

	t.Run("replace", func(t *testing.T) {
		c, err := NewStateCoordinator(testState(t))
		require.NoError(t, err)
		next, err := NewRobotState("arm", []string{"shoulder", "elbow"}, nil, []float64{0.1, 0.2})
		require.NoError(t, err)
		require.NoError(t, c.Replace(context.Background(), next))
		assert.True(t, c.Current().Equal(next))
		assert.Equal(t, uint64(1), c.Current().Generation())
		assert.ErrorIs(t, c.Replace(context.Background(), nil), ErrNilState)
	})
}

func TestUniqueState(t *testing.T) {
	c, err := NewStateCoordinator(testState(t))
	require.NoError(t, err)
	u, err := c.AcquireExclusive(context.Background())
	require.NoError(t, err)
	defer c.Discard(u)

	assert.False(t, u.SetJointValue(5, 0), "out of range")
	assert.False(t, u.SetJointValue(0, 4), "outside limits")
	assert.True(t, u.SetJointValue(1, -1))
	assert.Equal(t, []float64{0, -1}, u.Values())

	assert.Error(t, u.SetValues([]float64{1}))
	require.NoError(t, u.SetValues([]float64{1, 2}))
	assert.Equal(t, []float64{1, 2}, u.State().Values())
}
