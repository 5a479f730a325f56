package cluster

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/meshmaster/server/status"
)

type Status struct {
	directory *Directory
}

func NewStatus(directory *Directory) *Status {
	return &Status{
		directory: directory,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/registry", s.registryRoute)
	group.GET("/peers", s.listPeersRoute)
	group.GET("/peers/local", s.localPeerRoute)
	group.GET("/peers/:id", s.getPeerRoute)
	group.GET("/publishers", s.resolveRoute)
}

func (s *Status) registryRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.directory.LocalPeer().Publishers)
}

func (s *Status) listPeersRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.directory.PeersMetadata())
}

func (s *Status) localPeerRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.directory.LocalPeer())
}

func (s *Status) getPeerRoute(c *gin.Context) {
	peer, ok := s.directory.Peer(c.Param("id"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, peer)
}

func (s *Status) resolveRoute(c *gin.Context) {
	topic, ok := c.GetQuery("topic")
	if !ok || topic == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, s.directory.Resolve(topic))
}

var _ status.Handler = &Status{}
