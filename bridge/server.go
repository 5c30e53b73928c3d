package bridge

import (
	"errors"
	"fmt"
	"io"

	"tinygo.org/x/drivers"

	"watchy/protocol"
)

// Server answers bridge commands read from rw by running them on bus.
// One response block is written per valid request block, carrying the
// request's sequence byte.
type Server struct {
	rw    io.ReadWriter
	bus   drivers.I2C
	dec   *protocol.Decoder
	debug func(string)

	out  []byte
	rbuf [MaxTransfer]byte

	// Handled and Failed count requests; Failed includes bus errors.
	Handled int
	Failed  int
}

// NewServer returns a server bridging rw to bus.
func NewServer(rw io.ReadWriter, bus drivers.I2C) *Server {
	return &Server{
		rw:    rw,
		bus:   bus,
		dec:   protocol.NewDecoder(rw),
		debug: func(string) {},
		out:   make([]byte, 0, protocol.BlockLengthMax),
	}
}

// SetDebugWriter sets the sink for per-request diagnostics.
func (s *Server) SetDebugWriter(w func(string)) {
	if w == nil {
		w = func(string) {}
	}
	s.debug = w
}

// Serve handles requests until the stream ends. It returns nil on io.EOF.
func (s *Server) Serve() error {
	for {
		b, err := s.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := s.respond(b); err != nil {
			return err
		}
	}
}

func (s *Server) respond(b protocol.Block) error {
	out, err := protocol.AppendBlock(s.out[:0], b.Seq, s.handle(b.Payload))
	if err != nil {
		return err
	}
	s.out = out
	_, err = s.rw.Write(out)
	return err
}

// handle decodes one request and returns the result payload.
func (s *Server) handle(payload []byte) []byte {
	s.Handled++

	cmd, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return s.fail(StatusBadRequest, err)
	}

	switch cmd {
	case CmdI2CWrite:
		addr, data, err := decodeWriteArgs(&payload)
		if err != nil {
			return s.fail(StatusBadRequest, err)
		}
		if err := s.bus.Tx(addr, data, nil); err != nil {
			return s.fail(StatusBusError, err)
		}
		return AppendResult(nil, StatusOK, nil, "")

	case CmdI2CRead:
		addr, reg, n, err := decodeReadArgs(&payload)
		if err != nil {
			return s.fail(StatusBadRequest, err)
		}
		r := s.rbuf[:n]
		if err := s.bus.Tx(addr, reg, r); err != nil {
			return s.fail(StatusBusError, err)
		}
		return AppendResult(nil, StatusOK, r, "")
	}

	return s.fail(StatusBadRequest, fmt.Errorf("unknown command %d", cmd))
}

// maxMessage keeps an error result inside one block.
const maxMessage = 160

func (s *Server) fail(status uint32, err error) []byte {
	s.Failed++
	msg := err.Error()
	s.debug("bridge: " + msg)
	if len(msg) > maxMessage {
		msg = msg[:maxMessage]
	}
	return AppendResult(nil, status, nil, msg)
}

func decodeWriteArgs(args *[]byte) (uint16, []byte, error) {
	addr, err := protocol.DecodeVLQUint(args)
	if err != nil {
		return 0, nil, err
	}
	if addr > MaxAddress {
		return 0, nil, fmt.Errorf("address 0x%x is not a 7-bit address", addr)
	}
	data, err := protocol.DecodeVLQBytes(args)
	if err != nil {
		return 0, nil, err
	}
	return uint16(addr), data, nil
}

func decodeReadArgs(args *[]byte) (uint16, []byte, int, error) {
	addr, reg, err := decodeWriteArgs(args)
	if err != nil {
		return 0, nil, 0, err
	}
	n, err := protocol.DecodeVLQUint(args)
	if err != nil {
		return 0, nil, 0, err
	}
	if n == 0 || n > MaxTransfer {
		return 0, nil, 0, fmt.Errorf("read length %d out of range", n)
	}
	return addr, reg, int(n), nil
}
