package client

import (
	"context"
	"net"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/andydunstall/meshmaster/pkg/log"
	"github.com/andydunstall/meshmaster/server/api"
	"github.com/andydunstall/meshmaster/server/cluster"
)

func TestClient(t *testing.T) {
	registry := cluster.NewRegistry(log.NewNopLogger())
	directory := cluster.NewDirectory(
		"10.26.104.10:11411", "local_cluster", registry, log.NewNopLogger(),
	)
	directory.Merge("10.26.104.11:11411", "peer_b", map[string][]int{
		"/foo": {7000},
	}, cluster.Version{})

	shutdown := atomic.NewBool(false)
	server := api.NewServer(registry, directory, func() {
		shutdown.Store(true)
	}, nil, log.NewNopLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = server.Serve(ln)
	}()
	defer server.Shutdown(context.TODO())

	u, err := url.Parse("http://" + ln.Addr().String())
	require.NoError(t, err)
	client := NewClient(u)

	t.Run("publish", func(t *testing.T) {
		publishers, err := client.Publish(context.TODO(), "/foo", 6000)
		require.NoError(t, err)
		assert.Equal(t, []cluster.Locator{
			{Host: "localhost", Port: 6000},
			{Host: "peer_b", Port: 7000},
		}, publishers)

		publishers, err = client.Lookup(context.TODO(), "/foo")
		require.NoError(t, err)
		assert.Len(t, publishers, 2)

		publishers, err = client.Subscribe(context.TODO(), "/foo")
		require.NoError(t, err)
		assert.Len(t, publishers, 2)

		require.NoError(t, client.Unsubscribe(context.TODO(), "/foo"))

		publishers, err = client.Unpublish(context.TODO(), "/foo", 6000)
		require.NoError(t, err)
		assert.Equal(t, []cluster.Locator{
			{Host: "peer_b", Port: 7000},
		}, publishers)
	})

	t.Run("lookup unknown", func(t *testing.T) {
		publishers, err := client.Lookup(context.TODO(), "/unknown")
		require.NoError(t, err)
		assert.Empty(t, publishers)
	})

	t.Run("bad request", func(t *testing.T) {
		_, err := client.Publish(context.TODO(), "/foo", 0)
		assert.ErrorContains(t, err, "bad status: 400")
	})

	t.Run("pid", func(t *testing.T) {
		pid, err := client.PID(context.TODO())
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
	})

	t.Run("uri", func(t *testing.T) {
		uri, err := client.URI(context.TODO())
		require.NoError(t, err)
		assert.Equal(t, "http://"+ln.Addr().String(), uri)
	})

	t.Run("shutdown", func(t *testing.T) {
		require.NoError(t, client.Shutdown(context.TODO()))
		assert.True(t, shutdown.Load())
	})
}

func TestConfig_Validate(t *testing.T) {
	conf := Config{URL: "http://localhost:11311"}
	assert.NoError(t, conf.Validate())

	conf = Config{}
	assert.Error(t, conf.Validate())
}
