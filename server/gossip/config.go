package gossip

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// BindAddr is the address to bind to listen for peer connections.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to other peers.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`

	// Peers contains the 'host:port' addresses of the peers to connect to.
	Peers []string `json:"peers" yaml:"peers"`

	// Interval is the rate to gossip with each connected peer.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// AcceptWait is the maximum duration each round waits for an inbound
	// connection.
	AcceptWait time.Duration `json:"accept_wait" yaml:"accept_wait"`

	// DeadTimeout is the duration without receiving a message after which a
	// connection is considered dead.
	DeadTimeout time.Duration `json:"dead_timeout" yaml:"dead_timeout"`

	// DialTimeout is the timeout to resolve and connect to a peer.
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// WriteTimeout is the timeout to write a message to a peer.
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// MaxMessageSize is the maximum size of a message accepted from a peer.
	MaxMessageSize int `json:"max_message_size" yaml:"max_message_size"`
}

func Default() *Config {
	return &Config{
		BindAddr:       ":11411",
		Interval:       time.Second,
		DeadTimeout:    time.Second * 15,
		DialTimeout:    time.Second * 5,
		WriteTimeout:   time.Second,
		MaxMessageSize: 4 << 20,
	}
}

func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	for _, peer := range c.Peers {
		if _, _, err := net.SplitHostPort(peer); err != nil {
			return fmt.Errorf("invalid peer: %s: %w", peer, err)
		}
	}
	if c.Interval <= 0 {
		return fmt.Errorf("missing interval")
	}
	if c.AcceptWait < 0 {
		return fmt.Errorf("negative accept wait")
	}
	if c.DeadTimeout <= c.Interval {
		return fmt.Errorf("dead timeout must exceed interval")
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("missing dial timeout")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("missing write timeout")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("missing max message size")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.BindAddr,
		"gossip.bind-addr",
		c.BindAddr,
		`
The host/port to listen for connections from peers.

If the host is unspecified it defaults to all listeners, such as
a bind address ':11411' will listen on '0.0.0.0:11411'`,
	)
	fs.StringVar(
		&c.AdvertiseAddr,
		"gossip.advertise-addr",
		c.AdvertiseAddr,
		`
Gossip listen address to advertise to peers. Peers use the advertised address
to identify this node.

By default, if the bind address includes an IP to bind to that will be used.
If the bind address does not include an IP (such as ':11411') the nodes
private IP will be used, such as a bind address of ':11411' may have an
advertise address of '10.26.104.14:11411'.`,
	)
	fs.StringSliceVar(
		&c.Peers,
		"gossip.peers",
		c.Peers,
		`
A list of 'host:port' addresses of peers to connect to.

The node will attempt to connect to each peer every gossip interval until it
is reachable, such as '--gossip.peers 10.26.104.14:11411,node2:11411'.`,
	)
	fs.DurationVar(
		&c.Interval,
		"gossip.interval",
		c.Interval,
		`
The interval to gossip with each connected peer and retry unreachable peers.`,
	)
	fs.DurationVar(
		&c.AcceptWait,
		"gossip.accept-wait",
		c.AcceptWait,
		`
The maximum duration each gossip round waits for a new inbound connection.

Zero only accepts connections that are already pending.`,
	)
	fs.DurationVar(
		&c.DeadTimeout,
		"gossip.dead-timeout",
		c.DeadTimeout,
		`
The duration without receiving a message from a peer connection before the
connection is closed.

Once a peer has no remaining connections it is removed, along with its
publishers.`,
	)
	fs.DurationVar(
		&c.DialTimeout,
		"gossip.dial-timeout",
		c.DialTimeout,
		`
The timeout to resolve and connect to a peer.`,
	)
	fs.DurationVar(
		&c.WriteTimeout,
		"gossip.write-timeout",
		c.WriteTimeout,
		`
The timeout to write a message to a peer. A peer that doesn't accept a message
within the timeout is disconnected.`,
	)
	fs.IntVar(
		&c.MaxMessageSize,
		"gossip.max-message-size",
		c.MaxMessageSize,
		`
The maximum size of a message accepted from a peer, in bytes.`,
	)
}
