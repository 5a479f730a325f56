package gossip

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/meshmaster/server/status"
)

type Status struct {
	reconciler *Reconciler
}

func NewStatus(reconciler *Reconciler) *Status {
	return &Status{
		reconciler: reconciler,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/connections", s.listConnectionsRoute)
}

func (s *Status) listConnectionsRoute(c *gin.Context) {
	conns := s.reconciler.Connections()
	if conns == nil {
		conns = []ConnStatus{}
	}
	c.JSON(http.StatusOK, conns)
}

var _ status.Handler = &Status{}
