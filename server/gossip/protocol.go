package gossip

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/multiformats/go-varint"
	"github.com/ugorji/go/codec"
)

const (
	supportedVersion uint8 = 1
)

var (
	errFrameTooLarge = errors.New("frame too large")
	errEmptyFrame    = errors.New("empty frame")
)

// message is the state a node gossips to each connected peer.
//
// A message only ever contains the senders own publishers.
type message struct {
	// Name is the senders display name.
	Name string `codec:"name"`
	// Addr is the senders advertised gossip address.
	Addr string `codec:"addr"`
	// Incarnation identifies the senders process.
	Incarnation string `codec:"incarnation"`
	// Seq increases with each message sent by the incarnation.
	Seq uint64 `codec:"seq"`
	// Publishers maps each topic published on the sender to its ports.
	Publishers map[string][]int `codec:"publishers"`
}

// encodeFrame encodes the message into a frame.
//
// A frame contains a uvarint length prefix followed by the frame body, which
// is the protocol version followed by the MessagePack encoded message.
func encodeFrame(m *message) ([]byte, error) {
	var body bytes.Buffer
	_ = body.WriteByte(supportedVersion)

	var handle codec.MsgpackHandle
	if err := codec.NewEncoder(&body, &handle).Encode(m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	frame := varint.ToUvarint(uint64(body.Len()))
	return append(frame, body.Bytes()...), nil
}

// decodeMessage decodes a frame body returned by frameDecoder.
func decodeMessage(b []byte) (*message, error) {
	if len(b) == 0 {
		return nil, errEmptyFrame
	}
	if b[0] != supportedVersion {
		return nil, fmt.Errorf("unsupported version: %d", b[0])
	}

	var handle codec.MsgpackHandle
	var m message
	if err := codec.NewDecoderBytes(b[1:], &handle).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &m, nil
}

// frameDecoder splits a byte stream into frames.
//
// Bytes are buffered across writes, so a frame may arrive over any number of
// reads and a read may contain any number of frames.
type frameDecoder struct {
	buf []byte

	maxFrameSize int
}

func newFrameDecoder(maxFrameSize int) *frameDecoder {
	return &frameDecoder{
		maxFrameSize: maxFrameSize,
	}
}

// Write appends bytes read from the stream.
func (d *frameDecoder) Write(b []byte) (int, error) {
	d.buf = append(d.buf, b...)
	return len(b), nil
}

// Next returns the body of the next complete frame, or nil if the buffered
// bytes don't yet contain a complete frame.
//
// An error means the stream is corrupt and no further frames can be read.
func (d *frameDecoder) Next() ([]byte, error) {
	size, n, err := varint.FromUvarint(d.buf)
	if err != nil {
		if errors.Is(err, varint.ErrUnderflow) {
			// Length prefix incomplete.
			return nil, nil
		}
		return nil, fmt.Errorf("frame length: %w", err)
	}
	if size == 0 {
		return nil, errEmptyFrame
	}
	if size > uint64(d.maxFrameSize) {
		return nil, fmt.Errorf("%w: %d > %d", errFrameTooLarge, size, d.maxFrameSize)
	}
	if uint64(len(d.buf)-n) < size {
		return nil, nil
	}

	end := n + int(size)
	frame := make([]byte, size)
	copy(frame, d.buf[n:end])

	// Shift the remaining bytes to the start of the buffer to reuse it.
	remaining := copy(d.buf, d.buf[end:])
	d.buf = d.buf[:remaining]

	return frame, nil
}

// Buffered returns the number of buffered bytes not yet returned as a frame.
func (d *frameDecoder) Buffered() int {
	return len(d.buf)
}
