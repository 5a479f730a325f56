package gossip

import (
	"net"

	"github.com/benbjohnson/clock"
)

type options struct {
	dialer   Dialer
	resolver Resolver
	clock    clock.Clock
}

type Option interface {
	apply(*options)
}

func defaultOptions() options {
	return options{
		dialer:   &net.Dialer{},
		resolver: net.DefaultResolver,
		clock:    clock.New(),
	}
}

type dialerOption struct {
	Dialer Dialer
}

func (o dialerOption) apply(opts *options) {
	opts.dialer = o.Dialer
}

// WithDialer sets the dialer used to connect to peers.
func WithDialer(d Dialer) Option {
	return dialerOption{Dialer: d}
}

type resolverOption struct {
	Resolver Resolver
}

func (o resolverOption) apply(opts *options) {
	opts.resolver = o.Resolver
}

// WithResolver sets the resolver used to look up peer hosts.
func WithResolver(r Resolver) Option {
	return resolverOption{Resolver: r}
}

type clockOption struct {
	Clock clock.Clock
}

func (o clockOption) apply(opts *options) {
	opts.clock = o.Clock
}

// WithClock sets the clock used to schedule gossip rounds and track peer
// liveness.
func WithClock(c clock.Clock) Option {
	return clockOption{Clock: c}
}
