// Package client implements drivers.I2C on the host side of a bridge link.
package client

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"watchy/bridge"
	"watchy/protocol"
)

var (
	ErrTimeout       = errors.New("bridge: response timeout")
	ErrClosed        = errors.New("bridge: closed")
	ErrTooLong       = errors.New("bridge: transaction too long")
	ErrShortResponse = errors.New("bridge: response shorter than requested read")
)

// DefaultTimeout bounds the wait for each response.
const DefaultTimeout = 500 * time.Millisecond

// Client implements drivers.I2C on top of a bridge Server reachable
// through rw. Transactions are serialized; a Client is safe for concurrent
// use.
type Client struct {
	rw      io.ReadWriter
	Timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	seq     uint8
	payload []byte
	out     []byte

	blocks    chan protocol.Block
	readErr   error
	done      chan struct{}
	closeOnce sync.Once
}

// New starts reading responses from rw in the background.
func New(rw io.ReadWriter) *Client {
	c := &Client{
		rw:      rw,
		Timeout: DefaultTimeout,
		log:     zerolog.Nop(),
		seq:     protocol.SeqDest,
		payload: make([]byte, 0, protocol.PayloadMax),
		out:     make([]byte, 0, protocol.BlockLengthMax),
		blocks:  make(chan protocol.Block, 4),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetLogger replaces the default no-op logger.
func (c *Client) SetLogger(log zerolog.Logger) {
	c.log = log
}

func (c *Client) readLoop() {
	dec := protocol.NewDecoder(c.rw)
	for {
		b, err := dec.Next()
		if err != nil {
			c.readErr = err
			close(c.blocks)
			return
		}
		select {
		case c.blocks <- b:
		case <-c.done:
			return
		}
	}
}

// Tx implements drivers.I2C. With an empty r it is a plain write of w;
// otherwise w is sent and len(r) bytes are read back after a repeated start.
func (c *Client) Tx(addr uint16, w, r []byte) error {
	if len(w) > bridge.MaxTransfer || len(r) > bridge.MaxTransfer {
		return fmt.Errorf("%w: write %d read %d (max %d)", ErrTooLong, len(w), len(r), bridge.MaxTransfer)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	var payload []byte
	if len(r) == 0 {
		payload = bridge.AppendWrite(c.payload[:0], addr, w)
	} else {
		payload = bridge.AppendRead(c.payload[:0], addr, w, len(r))
	}

	seq := c.seq
	c.seq = protocol.NextSeq(seq)

	c.payload = payload
	out, err := protocol.AppendBlock(c.out[:0], seq, payload)
	if err != nil {
		return err
	}
	c.out = out
	if _, err := c.rw.Write(out); err != nil {
		return fmt.Errorf("bridge: write: %w", err)
	}

	res, err := c.await(seq)
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		c.log.Debug().
			Uint16("addr", addr).
			Uint32("status", res.Status).
			Str("message", res.Message).
			Msg("remote failure")
		return err
	}
	if len(r) > 0 {
		if len(res.Data) < len(r) {
			return fmt.Errorf("%w: got %d of %d bytes", ErrShortResponse, len(res.Data), len(r))
		}
		copy(r, res.Data)
	}
	return nil
}

func (c *Client) await(seq uint8) (bridge.Result, error) {
	timer := time.NewTimer(c.Timeout)
	defer timer.Stop()

	for {
		select {
		case b, ok := <-c.blocks:
			if !ok {
				return bridge.Result{}, fmt.Errorf("%w: %v", ErrClosed, c.readErr)
			}
			if b.Seq != seq {
				// Late answer to a request that already timed out.
				c.log.Debug().
					Uint8("expected", seq).
					Uint8("got", b.Seq).
					Msg("discarding stale response")
				continue
			}
			return bridge.DecodeResult(b.Payload)

		case <-timer.C:
			return bridge.Result{}, fmt.Errorf("%w after %v (seq 0x%02x)", ErrTimeout, c.Timeout, seq)

		case <-c.done:
			return bridge.Result{}, ErrClosed
		}
	}
}

// Close stops the reader and closes rw if it is an io.Closer.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if closer, ok := c.rw.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}
