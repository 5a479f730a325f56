package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/andydunstall/meshmaster/pkg/log"
	"github.com/andydunstall/meshmaster/server/gossip"
)

type NodeConfig struct {
	// Name is the display name of the node, which peers use as the host of
	// the nodes publishers.
	//
	// Defaults to the hosts FQDN with '.' replaced by '_'.
	Name string `json:"name" yaml:"name"`
}

type APIConfig struct {
	// BindAddr is the address to bind to listen for API requests.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

func (c *APIConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

type AdminConfig struct {
	// BindAddr is the address to bind to listen for incoming HTTP connections.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

func (c *AdminConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

type Config struct {
	Node   NodeConfig    `json:"node" yaml:"node"`
	Gossip gossip.Config `json:"gossip" yaml:"gossip"`
	API    APIConfig     `json:"api" yaml:"api"`
	Admin  AdminConfig   `json:"admin" yaml:"admin"`
	Log    log.Config    `json:"log" yaml:"log"`

	// GracePeriod is the duration to gracefully shutdown the server. During
	// the grace period, the gossip loop completes its current round and the
	// HTTP servers wait for active requests to complete.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`
}

func Default() *Config {
	return &Config{
		Gossip: *gossip.Default(),
		API: APIConfig{
			BindAddr: "localhost:11311",
		},
		Admin: AdminConfig{
			BindAddr: ":11312",
		},
		Log: log.Config{
			Level: "info",
		},
		GracePeriod: time.Second * 30,
	}
}

func (c *Config) Validate() error {
	if err := c.Gossip.Validate(); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if c.GracePeriod == 0 {
		return fmt.Errorf("missing grace period")
	}

	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.Node.Name,
		"node.name",
		c.Node.Name,
		`
The display name of the node.

Peers resolve the nodes publishers with the display name as the host, so the
name should be resolvable by subscribers.

By default the name is the hosts fully qualified domain name with each '.'
replaced by '_', such as 'node1.cluster.local' becomes 'node1_cluster_local'.`,
	)

	c.Gossip.RegisterFlags(fs)

	fs.StringVar(
		&c.API.BindAddr,
		"api.bind-addr",
		c.API.BindAddr,
		`
The host/port to listen for API requests to publish, unpublish and lookup
topics.

The API is unauthenticated so by default only listens on localhost.`,
	)

	fs.StringVar(
		&c.Admin.BindAddr,
		"admin.bind-addr",
		c.Admin.BindAddr,
		`
The host/port to listen for incoming admin connections.

If the host is unspecified it defaults to all listeners, such as
'--admin.bind-addr :11312' will listen on '0.0.0.0:11312'`,
	)

	c.Log.RegisterFlags(fs)

	fs.DurationVar(
		&c.GracePeriod,
		"grace-period",
		c.GracePeriod,
		`
Maximum duration after a shutdown signal is received (SIGTERM or
SIGINT) to gracefully shutdown the node before terminating.
This includes completing the current gossip round and handling in-progress
API requests.`,
	)
}
