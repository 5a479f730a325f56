package client

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/andydunstall/meshmaster/server/cluster"
)

type Cluster struct {
	client *Client
}

func NewCluster(client *Client) *Cluster {
	return &Cluster{
		client: client,
	}
}

// Registry returns the publishers registered on the node.
func (c *Cluster) Registry() (map[string][]int, error) {
	var table map[string][]int
	if err := c.get("/status/cluster/registry", nil, &table); err != nil {
		return nil, err
	}
	return table, nil
}

func (c *Cluster) Peers() ([]*cluster.PeerMetadata, error) {
	var peers []*cluster.PeerMetadata
	if err := c.get("/status/cluster/peers", nil, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

func (c *Cluster) Peer(peerID string) (*cluster.Peer, error) {
	var peer cluster.Peer
	if err := c.get("/status/cluster/peers/"+url.PathEscape(peerID), nil, &peer); err != nil {
		return nil, err
	}
	return &peer, nil
}

func (c *Cluster) LocalPeer() (*cluster.Peer, error) {
	var peer cluster.Peer
	if err := c.get("/status/cluster/peers/local", nil, &peer); err != nil {
		return nil, err
	}
	return &peer, nil
}

// Publishers returns the publishers of the topic known by the node.
func (c *Cluster) Publishers(topic string) ([]cluster.Locator, error) {
	var locators []cluster.Locator
	query := url.Values{}
	query.Set("topic", topic)
	if err := c.get("/status/cluster/publishers", query, &locators); err != nil {
		return nil, err
	}
	return locators, nil
}

func (c *Cluster) get(path string, query url.Values, v any) error {
	r, err := c.client.Request(path, query)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
