package cluster

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/meshmaster/pkg/log"
)

const (
	localID   = "10.26.104.10:11411"
	localName = "local_cluster"
)

func newTestDirectory() (*Directory, *Registry) {
	registry := NewRegistry(log.NewNopLogger())
	return NewDirectory(localID, localName, registry, log.NewNopLogger()), registry
}

func TestDirectory_Local(t *testing.T) {
	d, registry := newTestDirectory()
	registry.Register("/foo", 6000)

	assert.Equal(t, localID, d.LocalID())
	assert.Equal(t, localName, d.LocalName())

	name, ok := d.Name(localID)
	assert.True(t, ok)
	assert.Equal(t, localName, name)

	peer, ok := d.Peer(localID)
	require.True(t, ok)
	assert.True(t, peer.Local)
	assert.Equal(t, map[string][]int{"/foo": {6000}}, peer.Publishers)

	peers := d.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, localID, peers[0].ID)

	// The local node can't be merged or evicted.
	assert.False(t, d.Merge(localID, "other", nil, Version{}))
	assert.False(t, d.Evict(localID))
	name, _ = d.Name(localID)
	assert.Equal(t, localName, name)
}

func TestDirectory_ResolveLocal(t *testing.T) {
	d, registry := newTestDirectory()

	registry.Register("/foo", 6000)
	assert.Equal(t, []Locator{{Host: "localhost", Port: 6000}}, d.Resolve("/foo"))

	registry.Register("/foo", 6000)
	assert.Equal(t, []Locator{{Host: "localhost", Port: 6000}}, d.Resolve("/foo"))

	registry.Unregister("/foo", 6000)
	assert.Equal(t, []Locator{}, d.Resolve("/foo"))
}

func TestDirectory_Merge(t *testing.T) {
	t.Run("add peer", func(t *testing.T) {
		d, registry := newTestDirectory()
		registry.Register("/bar", 5000)

		assert.True(t, d.Merge("10.26.104.11:11411", "peerB", map[string][]int{
			"/bar": {6000},
		}, Version{}))

		assert.True(t, d.Contains("10.26.104.11:11411"))
		name, ok := d.Name("10.26.104.11:11411")
		assert.True(t, ok)
		assert.Equal(t, "peerB", name)

		assert.Equal(t, []Locator{
			{Host: "localhost", Port: 5000},
			{Host: "peerB", Port: 6000},
		}, d.Resolve("/bar"))
		assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics().Peers))
	})

	// Each update replaces the peers previous state.
	t.Run("replace peer", func(t *testing.T) {
		d, _ := newTestDirectory()

		d.Merge("10.26.104.11:11411", "peerB", map[string][]int{
			"/bar": {6000},
			"/baz": {6001},
		}, Version{})
		d.Merge("10.26.104.11:11411", "peerB2", map[string][]int{
			"/baz": {6002},
		}, Version{})

		assert.Equal(t, []Locator{}, d.Resolve("/bar"))
		assert.Equal(t, []Locator{{Host: "peerB2", Port: 6002}}, d.Resolve("/baz"))
		assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics().Peers))
	})

	t.Run("discard stale", func(t *testing.T) {
		d, _ := newTestDirectory()

		assert.True(t, d.Merge("10.26.104.11:11411", "peerB", map[string][]int{
			"/bar": {6000},
		}, Version{Incarnation: "a", Seq: 5}))

		// Older and duplicate updates from the same incarnation are ignored.
		assert.False(t, d.Merge("10.26.104.11:11411", "peerB", map[string][]int{
			"/bar": {6001},
		}, Version{Incarnation: "a", Seq: 4}))
		assert.False(t, d.Merge("10.26.104.11:11411", "peerB", map[string][]int{
			"/bar": {6001},
		}, Version{Incarnation: "a", Seq: 5}))
		assert.Equal(t, []Locator{{Host: "peerB", Port: 6000}}, d.Resolve("/bar"))

		// A restarted peer has a new incarnation so always applies.
		assert.True(t, d.Merge("10.26.104.11:11411", "peerB", map[string][]int{
			"/bar": {6002},
		}, Version{Incarnation: "b", Seq: 1}))
		assert.Equal(t, []Locator{{Host: "peerB", Port: 6002}}, d.Resolve("/bar"))
	})

	// Modifying the merged table must not affect the directory.
	t.Run("copy table", func(t *testing.T) {
		d, _ := newTestDirectory()

		table := map[string][]int{"/bar": {6000}}
		d.Merge("10.26.104.11:11411", "peerB", table, Version{})
		table["/bar"][0] = 1

		assert.Equal(t, []Locator{{Host: "peerB", Port: 6000}}, d.Resolve("/bar"))
	})

	// A peers table is a set of valid ports per topic.
	t.Run("normalize table", func(t *testing.T) {
		d, _ := newTestDirectory()

		d.Merge("10.26.104.11:11411", "peerB", map[string][]int{
			"/bar": {6001, 6000, 6000, -5, 70000},
			"/baz": {-1},
			"/car": {0},
		}, Version{})

		assert.Equal(t, []Locator{
			{Host: "peerB", Port: 6000},
			{Host: "peerB", Port: 6001},
		}, d.Resolve("/bar"))
		assert.Equal(t, []Locator{}, d.Resolve("/baz"))
		assert.Equal(t, []Locator{{Host: "peerB", Port: 0}}, d.Resolve("/car"))

		peer, ok := d.Peer("10.26.104.11:11411")
		require.True(t, ok)
		assert.Equal(t, map[string][]int{
			"/bar": {6000, 6001},
			"/car": {0},
		}, peer.Publishers)
	})
}

func TestDirectory_Evict(t *testing.T) {
	d, _ := newTestDirectory()

	d.Merge("10.26.104.11:11411", "peerB", map[string][]int{
		"/bar": {6000},
	}, Version{})
	d.Merge("10.26.104.12:11411", "peerC", map[string][]int{
		"/bar": {6001},
	}, Version{})

	assert.True(t, d.Evict("10.26.104.11:11411"))
	assert.False(t, d.Evict("10.26.104.11:11411"))

	assert.False(t, d.Contains("10.26.104.11:11411"))
	_, ok := d.Name("10.26.104.11:11411")
	assert.False(t, ok)
	_, ok = d.Peer("10.26.104.11:11411")
	assert.False(t, ok)

	assert.Equal(t, []Locator{{Host: "peerC", Port: 6001}}, d.Resolve("/bar"))
	assert.Equal(t, []string{"10.26.104.12:11411"}, d.PeerIDs())
	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics().Peers))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics().Evictions))
}

func TestDirectory_PeersMetadata(t *testing.T) {
	d, registry := newTestDirectory()
	registry.Register("/foo", 6000)

	d.Merge("10.26.104.11:11411", "peerB", map[string][]int{
		"/bar": {6000, 6001},
	}, Version{})

	metadata := d.PeersMetadata()
	require.Len(t, metadata, 2)

	assert.Equal(t, localID, metadata[0].ID)
	assert.True(t, metadata[0].Local)
	assert.Equal(t, 1, metadata[0].Publishers)

	assert.Equal(t, "10.26.104.11:11411", metadata[1].ID)
	assert.Equal(t, "peerB", metadata[1].Name)
	assert.Equal(t, 1, metadata[1].Topics)
	assert.Equal(t, 2, metadata[1].Publishers)
}
