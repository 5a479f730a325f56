package status

import "github.com/gin-gonic/gin"

// Handler is a handler in the status API.
//
// Each handler registers routes that expose the state of a single component,
// such as the peer directory or the gossip connections.
type Handler interface {
	// Register registers routes on the given group for the handler.
	Register(group *gin.RouterGroup)
}
