package gossip

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveN(t *testing.T, c *conn, n int) [][]byte {
	t.Helper()

	var frames [][]byte
	deadline := time.Now().Add(time.Second * 5)
	for len(frames) < n {
		received, err := c.Receive()
		require.NoError(t, err)
		frames = append(frames, received...)

		require.True(t, time.Now().Before(deadline), "receive timeout")
		time.Sleep(time.Millisecond)
	}
	return frames
}

func TestConn_Receive(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := newConn(local, "remote", directionOutbound, time.Now(), time.Second)
	defer c.Close()
	go c.readLoop(1024)

	// No frames received yet.
	frames, err := c.Receive()
	require.NoError(t, err)
	assert.Empty(t, frames)

	var stream []byte
	for seq := uint64(1); seq <= 3; seq++ {
		frame, err := encodeFrame(&message{Name: "node_1", Seq: seq})
		require.NoError(t, err)
		stream = append(stream, frame...)
	}
	go func() {
		// Split the stream across writes.
		_, _ = remote.Write(stream[:3])
		_, _ = remote.Write(stream[3:])
	}()

	frames = receiveN(t, c, 3)
	for i, b := range frames {
		m, err := decodeMessage(b)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), m.Seq)
	}
}

func TestConn_Send(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := newConn(local, "remote", directionInbound, time.Now(), time.Second)
	defer c.Close()

	frame, err := encodeFrame(&message{Name: "node_1", Seq: 1})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Send(frame)
	}()

	buf := make([]byte, len(frame))
	_, err = io.ReadFull(remote, buf)
	require.NoError(t, err)
	assert.Equal(t, frame, buf)
	assert.NoError(t, <-errCh)
}

func TestConn_SendTimeout(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := newConn(local, "remote", directionInbound, time.Now(), time.Millisecond*10)
	defer c.Close()

	// The remote never reads so the write blocks until the deadline.
	err := c.Send([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestConn_RemoteClosed(t *testing.T) {
	local, remote := net.Pipe()

	c := newConn(local, "remote", directionOutbound, time.Now(), time.Second)
	defer c.Close()
	go c.readLoop(1024)

	remote.Close()

	deadline := time.Now().Add(time.Second * 5)
	for {
		_, err := c.Receive()
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			return
		}
		require.True(t, time.Now().Before(deadline), "receive timeout")
		time.Sleep(time.Millisecond)
	}
}

func TestConn_CorruptStream(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := newConn(local, "remote", directionOutbound, time.Now(), time.Second)
	defer c.Close()
	go c.readLoop(4)

	go func() {
		// Length prefix exceeds the max frame size.
		_, _ = remote.Write([]byte{0x10})
	}()

	deadline := time.Now().Add(time.Second * 5)
	for {
		_, err := c.Receive()
		if err != nil {
			assert.ErrorIs(t, err, errFrameTooLarge)
			return
		}
		require.True(t, time.Now().Before(deadline), "receive timeout")
		time.Sleep(time.Millisecond)
	}
}
