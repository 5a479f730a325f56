package api

import (
	"github.com/andydunstall/meshmaster/server/cluster"
)

type PublishRequest struct {
	Topic string `json:"topic" binding:"required"`
	Port  int    `json:"port" binding:"required,min=1,max=65535"`
}

type SubscribeRequest struct {
	Topic string `json:"topic" binding:"required"`
}

// PublishersResponse contains the known publishers of a topic across the
// cluster.
type PublishersResponse struct {
	Topic      string            `json:"topic"`
	Publishers []cluster.Locator `json:"publishers"`
}

type PIDResponse struct {
	PID int `json:"pid"`
}

type URIResponse struct {
	URI string `json:"uri"`
}

type errorResponse struct {
	Error string `json:"error"`
}
