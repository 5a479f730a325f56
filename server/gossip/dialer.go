package gossip

import (
	"context"
	"fmt"
	"net"
)

// Dialer connects to peers. *net.Dialer implements Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Resolver resolves peer hosts. *net.Resolver implements Resolver.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// dialResult is the outcome of an attempt to connect to a static peer.
type dialResult struct {
	// addr is the configured 'host:port' address of the peer.
	addr string
	// peerID is the resolved address of the peer, or empty if the address
	// couldn't be resolved.
	peerID string
	// skipped is true if the resolved peer was already connected (or is the
	// local node) so no connection was attempted.
	skipped bool
	conn    net.Conn
	err     error
}

// dial resolves and connects to the static peer with the given address,
// then reports the result to the reconciliation loop.
//
// Each dial runs in its own goroutine so a slow peer never blocks the loop.
func (r *Reconciler) dial(addr string) {
	defer r.wg.Done()

	result := r.dialPeer(addr)

	select {
	case r.dialResults <- result:
	case <-r.shutdownCh:
		if result.conn != nil {
			result.conn.Close()
		}
	}
}

func (r *Reconciler) dialPeer(addr string) dialResult {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.DialTimeout)
	defer cancel()

	peerID, err := r.resolve(ctx, addr)
	if err != nil {
		return dialResult{
			addr: addr,
			err:  fmt.Errorf("resolve: %w", err),
		}
	}

	if peerID == r.directory.LocalID() || r.isLive(peerID) {
		return dialResult{
			addr:    addr,
			peerID:  peerID,
			skipped: true,
		}
	}

	nc, err := r.dialer.DialContext(ctx, "tcp", peerID)
	if err != nil {
		return dialResult{
			addr:   addr,
			peerID: peerID,
			err:    fmt.Errorf("dial: %w", err),
		}
	}
	return dialResult{
		addr:   addr,
		peerID: peerID,
		conn:   nc,
	}
}

// resolve resolves the host of addr to an IP address, preferring IPv4.
func (r *Reconciler) resolve(ctx context.Context, addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid addr: %s: %w", addr, err)
	}

	if ip := net.ParseIP(host); ip != nil {
		return net.JoinHostPort(ip.String(), port), nil
	}

	ips, err := r.resolver.LookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("lookup host: %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("lookup host: %s: no addresses", host)
	}

	resolved := ips[0]
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			resolved = ip
			break
		}
	}
	return net.JoinHostPort(resolved, port), nil
}
