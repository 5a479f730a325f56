package cluster

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/andydunstall/meshmaster/pkg/log"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(log.NewNopLogger())

	r.Register("/foo", 6001)
	r.Register("/foo", 6000)
	r.Register("/bar/baz", 7000)

	assert.Equal(t, []int{6000, 6001}, r.Ports("/foo"))
	assert.Equal(t, []int{7000}, r.Ports("/bar/baz"))
	assert.Nil(t, r.Ports("/unknown"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Metrics().Topics))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Metrics().Publishers))
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	r := NewRegistry(log.NewNopLogger())

	r.Register("/foo", 6000)
	once := r.Snapshot()

	r.Register("/foo", 6000)
	assert.Equal(t, once, r.Snapshot())
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics().Publishers))
}

func TestRegistry_Unregister(t *testing.T) {
	t.Run("unregister publisher", func(t *testing.T) {
		r := NewRegistry(log.NewNopLogger())

		r.Register("/foo", 6000)
		r.Register("/foo", 6001)

		r.Unregister("/foo", 6000)
		assert.Equal(t, []int{6001}, r.Ports("/foo"))

		r.Unregister("/foo", 6001)
		assert.Nil(t, r.Ports("/foo"))
		assert.Equal(t, map[string][]int{}, r.Snapshot())

		assert.Equal(t, 0.0, testutil.ToFloat64(r.Metrics().Topics))
		assert.Equal(t, 0.0, testutil.ToFloat64(r.Metrics().Publishers))
	})

	// Removing a publisher that doesn't exist should have no affect.
	t.Run("unregister unknown", func(t *testing.T) {
		r := NewRegistry(log.NewNopLogger())

		r.Register("/foo", 6000)

		r.Unregister("/foo", 6001)
		r.Unregister("/bar", 6000)

		assert.Equal(t, map[string][]int{"/foo": {6000}}, r.Snapshot())
		assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics().Publishers))
	})
}

func TestRegistry_SnapshotIsolated(t *testing.T) {
	r := NewRegistry(log.NewNopLogger())
	r.Register("/foo", 6000)

	snapshot := r.Snapshot()

	r.Register("/foo", 6001)
	r.Register("/bar", 7000)
	assert.Equal(t, map[string][]int{"/foo": {6000}}, snapshot)

	// Modifying the snapshot must not affect the registry.
	snapshot["/foo"][0] = 1
	delete(snapshot, "/foo")
	assert.Equal(t, []int{6000, 6001}, r.Ports("/foo"))
}
