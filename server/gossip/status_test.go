package gossip

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/meshmaster/server/cluster"
)

func TestStatus_Connections(t *testing.T) {
	gin.SetMode(gin.TestMode)

	nodeA := newTestReconciler(t, "node_a", nil)
	nodeB := newTestReconciler(t, "node_b", []string{nodeA.directory.LocalID()})

	router := gin.New()
	NewStatus(nodeA).Register(router.Group("/status/gossip"))

	// No connections.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status/gossip/connections", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	nodeB.registry.Register("/foo", 6000)
	runUntil(t, resolves(nodeA, "/foo", []cluster.Locator{
		{Host: "node_b", Port: 6000},
	}), nodeA, nodeB)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status/gossip/connections", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var conns []ConnStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conns))
	require.Len(t, conns, 1)
	assert.Equal(t, nodeB.directory.LocalID(), conns[0].PeerID)
	assert.Equal(t, "node_b", conns[0].PeerName)
	assert.Equal(t, "inbound", conns[0].Direction)
}
