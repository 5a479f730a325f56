package gossip

import (
	"io"
	"net"
	"sync"
	"time"
)

type direction string

const (
	directionInbound  direction = "inbound"
	directionOutbound direction = "outbound"
)

// conn is a connection to a peer.
//
// The connection is owned by the reconciliation loop, except for a reader
// goroutine that decodes incoming frames and queues them for the loop to
// receive without blocking.
type conn struct {
	nc net.Conn

	// peerID is the ID of the peer the connection is to. Inbound connections
	// are identified by their remote address, and outbound connections by
	// the address dialed, until the peer advertises its own address.
	peerID    string
	direction direction
	// staticAddr is the configured static peer address an outbound
	// connection was dialed from.
	staticAddr string

	connectedAt time.Time
	// lastActive is the last time a message was received.
	lastActive time.Time

	writeTimeout time.Duration

	frames chan []byte
	// readErr is the error that stopped the reader. Only read once frames is
	// closed.
	readErr error

	closeOnce sync.Once
	closeCh   chan struct{}
}

func newConn(
	nc net.Conn,
	peerID string,
	direction direction,
	now time.Time,
	writeTimeout time.Duration,
) *conn {
	return &conn{
		nc:           nc,
		peerID:       peerID,
		direction:    direction,
		connectedAt:  now,
		lastActive:   now,
		writeTimeout: writeTimeout,
		frames:       make(chan []byte, 16),
		closeCh:      make(chan struct{}),
	}
}

// readLoop reads frames until the connection fails or is closed.
func (c *conn) readLoop(maxFrameSize int) {
	defer close(c.frames)

	decoder := newFrameDecoder(maxFrameSize)
	buf := make([]byte, 4096)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			_, _ = decoder.Write(buf[:n])
			for {
				frame, ferr := decoder.Next()
				if ferr != nil {
					c.readErr = ferr
					return
				}
				if frame == nil {
					break
				}

				select {
				case c.frames <- frame:
				case <-c.closeCh:
					c.readErr = net.ErrClosed
					return
				}
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// Send writes the frame to the peer, waiting at most the write timeout.
func (c *conn) Send(frame []byte) error {
	if err := c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	_, err := c.nc.Write(frame)
	return err
}

// Receive returns the frames received since the last call without blocking.
//
// Once the reader has stopped, Receive returns any remaining frames along
// with the error that stopped the reader. An orderly close by the peer
// returns io.EOF.
func (c *conn) Receive() ([][]byte, error) {
	var frames [][]byte
	for {
		select {
		case frame, ok := <-c.frames:
			if !ok {
				if c.readErr == nil {
					return frames, io.EOF
				}
				return frames, c.readErr
			}
			frames = append(frames, frame)
		default:
			return frames, nil
		}
	}
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.nc.Close()
	})
	return err
}

func (c *conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}
