package server

import (
	"context"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/andydunstall/meshmaster/pkg/log"
	"github.com/andydunstall/meshmaster/server/api/client"
	"github.com/andydunstall/meshmaster/server/cluster"
	"github.com/andydunstall/meshmaster/server/config"
	statusclient "github.com/andydunstall/meshmaster/server/status/client"
)

func testConfig(name string, peers []string) *config.Config {
	conf := config.Default()
	conf.Node.Name = name
	conf.Gossip.BindAddr = "127.0.0.1:0"
	conf.Gossip.Peers = peers
	conf.Gossip.Interval = time.Millisecond * 10
	conf.API.BindAddr = "127.0.0.1:0"
	conf.Admin.BindAddr = "127.0.0.1:0"
	conf.GracePeriod = time.Second * 5
	return conf
}

func apiClient(t *testing.T, s *Server) *client.Client {
	t.Helper()

	u, err := url.Parse("http://" + s.APIAddr())
	require.NoError(t, err)
	return client.NewClient(u)
}

func TestServer(t *testing.T) {
	nodeA, err := NewServer(testConfig("node_a", nil), log.NewNopLogger())
	require.NoError(t, err)
	nodeB, err := NewServer(
		testConfig("node_b", []string{nodeA.GossipAddr()}), log.NewNopLogger(),
	)
	require.NoError(t, err)

	assert.Equal(t, nodeA.GossipAddr(), nodeA.Directory().LocalID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return nodeA.Run(ctx)
	})
	g.Go(func() error {
		return nodeB.Run(ctx)
	})

	clientA := apiClient(t, nodeA)
	clientB := apiClient(t, nodeB)

	// Publish a topic on node B and lookup from node A.
	_, err = clientB.Publish(context.TODO(), "/foo", 6000)
	require.NoError(t, err)
	_, err = clientA.Publish(context.TODO(), "/foo", 6001)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		publishers, err := clientA.Lookup(context.TODO(), "/foo")
		return err == nil && assert.ObjectsAreEqual([]cluster.Locator{
			{Host: "localhost", Port: 6001},
			{Host: "node_b", Port: 6000},
		}, publishers)
	}, time.Second*10, time.Millisecond*10)

	// Inspect node A using the admin server.
	u, err := url.Parse("http://" + nodeA.AdminAddr())
	require.NoError(t, err)
	status := statusclient.NewClient(u)

	peers, err := statusclient.NewCluster(status).Peers()
	require.NoError(t, err)
	require.Len(t, peers, 2)

	conns, err := statusclient.NewGossip(status).Connections()
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, nodeB.GossipAddr(), conns[0].PeerID)

	// Request node B shuts down, after which node A evicts its publishers.
	require.NoError(t, clientB.Shutdown(context.TODO()))

	assert.Eventually(t, func() bool {
		publishers, err := clientA.Lookup(context.TODO(), "/foo")
		return err == nil && assert.ObjectsAreEqual([]cluster.Locator{
			{Host: "localhost", Port: 6001},
		}, publishers)
	}, time.Second*10, time.Millisecond*10)

	cancel()
	assert.NoError(t, g.Wait())
}

func TestServer_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	conf := testConfig("node_a", nil)
	conf.Gossip.BindAddr = ln.Addr().String()

	_, err = NewServer(conf, log.NewNopLogger())
	assert.ErrorContains(t, err, "gossip listen")
}

func TestAdvertiseAddrFromListenAddr(t *testing.T) {
	addr, err := advertiseAddrFromListenAddr("10.26.104.14:11411")
	require.NoError(t, err)
	assert.Equal(t, "10.26.104.14:11411", addr)

	addr, err = advertiseAddrFromListenAddr("node1.cluster:11411")
	require.NoError(t, err)
	assert.Equal(t, "node1.cluster:11411", addr)

	_, err = advertiseAddrFromListenAddr("11411")
	assert.Error(t, err)
}
