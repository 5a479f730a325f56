package gossip

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/andydunstall/meshmaster/pkg/log"
	"github.com/andydunstall/meshmaster/server/cluster"
)

const (
	closeReasonSend      = "send"
	closeReasonReceive   = "receive"
	closeReasonEOF       = "eof"
	closeReasonTimeout   = "timeout"
	closeReasonSelf      = "self"
	closeReasonShutdown  = "shutdown"
	dialFailureLogPeriod = time.Minute

	// Accept errors are retried after a delay that doubles from
	// acceptRetryMinDelay up to acceptRetryMaxDelay.
	acceptRetryMinDelay = time.Millisecond * 5
	acceptRetryMaxDelay = time.Second
)

// ConnStatus describes an open peer connection.
type ConnStatus struct {
	PeerID      string    `json:"peer_id"`
	PeerName    string    `json:"peer_name,omitempty"`
	RemoteAddr  string    `json:"remote_addr"`
	Direction   string    `json:"direction"`
	ConnectedAt time.Time `json:"connected_at"`
	LastActive  time.Time `json:"last_active"`
}

// Reconciler runs the reconciliation loop, which once per interval accepts
// inbound peer connections, gossips with every connected peer, removes dead
// connections and peers, and attempts to connect to any unreachable static
// peers.
type Reconciler struct {
	ln net.Listener

	directory *cluster.Directory
	registry  *cluster.Registry

	config *Config

	incarnation string
	seq         uint64

	// conns contains the open connections, keyed by peer ID. Only accessed
	// by the reconciliation loop.
	conns map[string][]*conn

	accepted chan net.Conn

	dialer      Dialer
	resolver    Resolver
	dialResults chan dialResult
	// pendingDials contains the static peers with a dial in progress.
	pendingDials map[string]struct{}
	// resolved maps each static peer to its last resolved peer ID.
	resolved     map[string]string
	dialLimiters map[string]*rate.Limiter

	// live and connStatus are published by the loop after each round for
	// dial goroutines and the status API.
	live       map[string]struct{}
	connStatus []ConnStatus
	statusMu   sync.RWMutex

	clock clock.Clock

	done       *atomic.Bool
	closed     *atomic.Bool
	shutdownCh chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	metrics *Metrics

	logger log.Logger
}

func NewReconciler(
	ln net.Listener,
	directory *cluster.Directory,
	registry *cluster.Registry,
	config *Config,
	logger log.Logger,
	opts ...Option,
) *Reconciler {
	options := defaultOptions()
	for _, o := range opts {
		o.apply(&options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		ln:           ln,
		directory:    directory,
		registry:     registry,
		config:       config,
		incarnation:  uuid.NewString(),
		conns:        make(map[string][]*conn),
		accepted:     make(chan net.Conn, 16),
		dialer:       options.dialer,
		resolver:     options.resolver,
		dialResults:  make(chan dialResult, len(config.Peers)+1),
		pendingDials: make(map[string]struct{}),
		resolved:     make(map[string]string),
		dialLimiters: make(map[string]*rate.Limiter),
		live:         make(map[string]struct{}),
		clock:        options.clock,
		done:         atomic.NewBool(false),
		closed:       atomic.NewBool(false),
		shutdownCh:   make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		metrics:      newMetrics(),
		logger:       logger.WithSubsystem("gossip"),
	}
}

// Run runs the reconciliation loop until RequestShutdown or Close is called.
//
// After RequestShutdown, the loop completes its current round before
// returning. Once the loop returns, all peer connections are closed and
// their peers removed from the directory.
func (r *Reconciler) Run() error {
	r.logger.Info(
		"starting gossip",
		zap.String("node-id", r.directory.LocalID()),
		zap.String("name", r.directory.LocalName()),
		zap.String("addr", r.ln.Addr().String()),
		zap.Strings("peers", r.config.Peers),
	)

	r.wg.Add(1)
	go r.acceptLoop()

	defer r.shutdown()

	ticker := r.clock.Ticker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-r.shutdownCh:
			return nil
		}

		r.round()

		if r.done.Load() {
			r.logger.Info("gossip stopping")
			return nil
		}
	}
}

// RequestShutdown stops the reconciliation loop after its current round.
func (r *Reconciler) RequestShutdown() {
	r.done.Store(true)
}

// Close stops the reconciliation loop immediately and closes the listener.
func (r *Reconciler) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		// Already closed.
		return nil
	}

	r.done.Store(true)
	close(r.shutdownCh)
	r.cancel()

	if err := r.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Incarnation returns the ID of this run of the node.
func (r *Reconciler) Incarnation() string {
	return r.incarnation
}

// Connections returns the open peer connections as of the last round.
func (r *Reconciler) Connections() []ConnStatus {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()

	return append([]ConnStatus(nil), r.connStatus...)
}

func (r *Reconciler) Metrics() *Metrics {
	return r.metrics
}

// round runs a single round of the reconciliation loop.
func (r *Reconciler) round() {
	r.acceptPending()
	r.registerDialed()
	r.exchange()
	r.dialUnreachable()
	r.publishStatus()
}

func (r *Reconciler) acceptLoop() {
	defer r.wg.Done()

	var retryDelay time.Duration
	for {
		nc, err := r.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			if retryDelay == 0 {
				retryDelay = acceptRetryMinDelay
			} else {
				retryDelay *= 2
			}
			if retryDelay > acceptRetryMaxDelay {
				retryDelay = acceptRetryMaxDelay
			}
			r.logger.Warn(
				"failed to accept connection; retrying",
				zap.Duration("delay", retryDelay),
				zap.Error(err),
			)

			select {
			case <-r.clock.After(retryDelay):
				continue
			case <-r.shutdownCh:
				return
			}
		}
		retryDelay = 0

		r.logger.Debug(
			"accepted conn",
			zap.String("addr", nc.RemoteAddr().String()),
		)

		select {
		case r.accepted <- nc:
		case <-r.shutdownCh:
			nc.Close()
			return
		}
	}
}

// acceptPending registers the accepted connections. If there are none, it
// waits up to the accept wait for a connection.
func (r *Reconciler) acceptPending() {
	var wait <-chan time.Time
	if r.config.AcceptWait > 0 {
		timer := r.clock.Timer(r.config.AcceptWait)
		defer timer.Stop()
		wait = timer.C
	}

	for {
		select {
		case nc := <-r.accepted:
			r.addConn(nc, nc.RemoteAddr().String(), directionInbound)
			wait = nil
			continue
		default:
		}

		if wait == nil {
			return
		}

		select {
		case nc := <-r.accepted:
			r.addConn(nc, nc.RemoteAddr().String(), directionInbound)
			wait = nil
		case <-wait:
			return
		case <-r.shutdownCh:
			return
		}
	}
}

// registerDialed handles the dials completed since the last round.
func (r *Reconciler) registerDialed() {
	for {
		select {
		case result := <-r.dialResults:
			r.handleDialResult(result)
		default:
			return
		}
	}
}

func (r *Reconciler) handleDialResult(result dialResult) {
	delete(r.pendingDials, result.addr)
	if result.peerID != "" {
		r.resolved[result.addr] = result.peerID
	}

	if result.err != nil {
		r.metrics.DialFailures.Inc()

		// Unreachable peers are retried every round so only warn
		// periodically.
		limiter, ok := r.dialLimiters[result.addr]
		if !ok {
			limiter = rate.NewLimiter(rate.Every(dialFailureLogPeriod), 1)
			r.dialLimiters[result.addr] = limiter
		}
		logFn := r.logger.Debug
		if limiter.Allow() {
			logFn = r.logger.Warn
		}
		logFn(
			"failed to connect to peer",
			zap.String("addr", result.addr),
			zap.Error(result.err),
		)
		return
	}
	if result.skipped || result.conn == nil {
		return
	}

	delete(r.dialLimiters, result.addr)

	r.logger.Info(
		"connected to peer",
		zap.String("addr", result.addr),
		zap.String("peer", result.peerID),
	)

	r.metrics.ConnectionsOutbound.Inc()
	if c := r.addConn(result.conn, result.peerID, directionOutbound); c != nil {
		c.staticAddr = result.addr
	}
}

// addConn registers a new connection and sends the peer our state. Returns
// nil if the connection failed.
func (r *Reconciler) addConn(nc net.Conn, peerID string, dir direction) *conn {
	c := newConn(nc, peerID, dir, r.clock.Now(), r.config.WriteTimeout)
	go c.readLoop(r.config.MaxMessageSize)

	if dir == directionInbound {
		r.metrics.ConnectionsInbound.Inc()
	}
	r.metrics.Connections.Inc()

	frame, ok := r.localFrame()
	if ok {
		if err := r.send(c, frame); err != nil {
			r.logger.Warn(
				"failed to send to peer",
				zap.String("peer", peerID),
				zap.Error(err),
			)
			r.closeConn(c, closeReasonSend)
			return nil
		}
	}

	r.conns[peerID] = append(r.conns[peerID], c)
	return c
}

// exchange gossips with every open connection, then removes any peers
// without a remaining connection.
func (r *Reconciler) exchange() {
	frame, ok := r.localFrame()
	now := r.clock.Now()

	conns := make(map[string][]*conn, len(r.conns))
	for _, peerConns := range r.conns {
		for _, c := range peerConns {
			if reason, alive := r.exchangeConn(c, frame, ok, now); !alive {
				r.closeConn(c, reason)
				continue
			}
			// The peer ID may have changed if the peer advertised its
			// address.
			conns[c.peerID] = append(conns[c.peerID], c)
		}
	}
	r.conns = conns

	for _, peerID := range r.directory.PeerIDs() {
		if _, ok := r.conns[peerID]; !ok {
			r.directory.Evict(peerID)
		}
	}
}

// exchangeConn sends our state to the peer and merges any state received
// from the peer. Returns false with the reason if the connection is dead.
func (r *Reconciler) exchangeConn(
	c *conn,
	frame []byte,
	sendFrame bool,
	now time.Time,
) (string, bool) {
	if sendFrame {
		if err := r.send(c, frame); err != nil {
			r.logger.Warn(
				"failed to send to peer",
				zap.String("peer", c.peerID),
				zap.Error(err),
			)
			return closeReasonSend, false
		}
	}

	frames, recvErr := c.Receive()
	for _, b := range frames {
		r.metrics.MessagesInbound.Inc()
		r.metrics.BytesInbound.Add(float64(len(b)))

		m, err := decodeMessage(b)
		if err != nil {
			r.metrics.MalformedMessages.Inc()
			r.logger.Warn(
				"discarding malformed message",
				zap.String("peer", c.peerID),
				zap.Error(err),
			)
			continue
		}
		if m.Incarnation == r.incarnation {
			r.logger.Warn(
				"connected to self",
				zap.String("addr", c.RemoteAddr()),
			)
			return closeReasonSelf, false
		}
		r.handleMessage(c, m, now)
	}

	if recvErr != nil {
		if errors.Is(recvErr, io.EOF) {
			r.logger.Debug(
				"peer closed connection",
				zap.String("peer", c.peerID),
			)
			return closeReasonEOF, false
		}
		r.logger.Warn(
			"failed to receive from peer",
			zap.String("peer", c.peerID),
			zap.Error(recvErr),
		)
		return closeReasonReceive, false
	}

	if now.Sub(c.lastActive) > r.config.DeadTimeout {
		r.logger.Warn(
			"peer connection timed out",
			zap.String("peer", c.peerID),
			zap.Duration("idle", now.Sub(c.lastActive)),
		)
		return closeReasonTimeout, false
	}

	return "", true
}

func (r *Reconciler) handleMessage(c *conn, m *message, now time.Time) {
	c.lastActive = now

	// Peers are identified by the address they advertise. Until the first
	// message, inbound connections are keyed by their ephemeral remote
	// address and outbound connections by the address dialed, which may
	// differ from the advertised address (such as a hostname resolving to
	// loopback or a NAT address).
	if m.Addr != "" &&
		m.Addr != c.peerID &&
		m.Addr != r.directory.LocalID() {
		r.logger.Debug(
			"peer advertised address",
			zap.String("addr", c.peerID),
			zap.String("peer", m.Addr),
			zap.String("direction", string(c.direction)),
		)
		c.peerID = m.Addr
		if c.staticAddr != "" {
			// Record the static peer as connected under its advertised
			// address so it isn't dialed again.
			r.resolved[c.staticAddr] = m.Addr
		}
	}

	r.directory.Merge(c.peerID, m.Name, m.Publishers, cluster.Version{
		Incarnation: m.Incarnation,
		Seq:         m.Seq,
	})
}

// dialUnreachable starts a dial to each static peer that isn't connected and
// doesn't already have a dial in progress.
func (r *Reconciler) dialUnreachable() {
	for _, addr := range r.config.Peers {
		if _, ok := r.pendingDials[addr]; ok {
			continue
		}
		if peerID, ok := r.resolved[addr]; ok {
			if _, ok := r.conns[peerID]; ok {
				continue
			}
		}

		r.pendingDials[addr] = struct{}{}
		r.wg.Add(1)
		go r.dial(addr)
	}
}

func (r *Reconciler) publishStatus() {
	live := make(map[string]struct{}, len(r.conns))
	var status []ConnStatus
	for peerID, conns := range r.conns {
		live[peerID] = struct{}{}

		name, _ := r.directory.Name(peerID)
		for _, c := range conns {
			status = append(status, ConnStatus{
				PeerID:      peerID,
				PeerName:    name,
				RemoteAddr:  c.RemoteAddr(),
				Direction:   string(c.direction),
				ConnectedAt: c.connectedAt,
				LastActive:  c.lastActive,
			})
		}
	}
	sort.Slice(status, func(i, j int) bool {
		if status[i].PeerID != status[j].PeerID {
			return status[i].PeerID < status[j].PeerID
		}
		return status[i].RemoteAddr < status[j].RemoteAddr
	})

	r.statusMu.Lock()
	r.live = live
	r.connStatus = status
	r.statusMu.Unlock()
}

// isLive returns whether the peer had an open connection as of the last
// round.
func (r *Reconciler) isLive(peerID string) bool {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()

	_, ok := r.live[peerID]
	return ok
}

// localFrame encodes the local state to send to each peer.
func (r *Reconciler) localFrame() ([]byte, bool) {
	r.seq++
	frame, err := encodeFrame(&message{
		Name:        r.directory.LocalName(),
		Addr:        r.directory.LocalID(),
		Incarnation: r.incarnation,
		Seq:         r.seq,
		Publishers:  r.registry.Snapshot(),
	})
	if err != nil {
		r.logger.Error("failed to encode local state", zap.Error(err))
		return nil, false
	}
	return frame, true
}

func (r *Reconciler) send(c *conn, frame []byte) error {
	if err := c.Send(frame); err != nil {
		return err
	}
	r.metrics.MessagesOutbound.Inc()
	r.metrics.BytesOutbound.Add(float64(len(frame)))
	return nil
}

func (r *Reconciler) closeConn(c *conn, reason string) {
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		r.logger.Debug(
			"failed to close connection",
			zap.String("peer", c.peerID),
			zap.Error(err),
		)
	}
	r.metrics.Connections.Dec()
	r.metrics.ConnectionsClosed.With(prometheus.Labels{"reason": reason}).Inc()
}

// shutdown closes every connection and waits for the accept and dial
// goroutines to exit.
func (r *Reconciler) shutdown() {
	if err := r.Close(); err != nil {
		r.logger.Warn("failed to close listener", zap.Error(err))
	}

	var errs error
	for peerID, conns := range r.conns {
		for _, c := range conns {
			errs = multierr.Append(errs, c.Close())
			r.metrics.Connections.Dec()
			r.metrics.ConnectionsClosed.With(prometheus.Labels{"reason": closeReasonShutdown}).Inc()
		}
		r.directory.Evict(peerID)
	}
	r.conns = make(map[string][]*conn)

	r.wg.Wait()

	// Close any connections accepted or dialed while shutting down.
	for {
		select {
		case nc := <-r.accepted:
			errs = multierr.Append(errs, nc.Close())
		case result := <-r.dialResults:
			if result.conn != nil {
				errs = multierr.Append(errs, result.conn.Close())
			}
		default:
			if errs != nil {
				r.logger.Debug("failed to close connections", zap.Error(errs))
			}
			r.publishStatus()
			return
		}
	}
}
