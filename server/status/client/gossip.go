package client

import (
	"encoding/json"
	"fmt"

	"github.com/andydunstall/meshmaster/server/gossip"
)

type Gossip struct {
	client *Client
}

func NewGossip(client *Client) *Gossip {
	return &Gossip{
		client: client,
	}
}

func (g *Gossip) Connections() ([]gossip.ConnStatus, error) {
	r, err := g.client.Request("/status/gossip/connections", nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var conns []gossip.ConnStatus
	if err := json.NewDecoder(r).Decode(&conns); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return conns, nil
}
