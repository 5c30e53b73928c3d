package protocol

import (
	"errors"
	"fmt"
	"io"
)

var ErrPayloadTooLong = errors.New("payload too long for one block")

// AppendBlock frames payload with the given sequence byte and appends the
// block to dst.
func AppendBlock(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > PayloadMax {
		return dst, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLong, len(payload), PayloadMax)
	}

	start := len(dst)
	dst = append(dst, uint8(len(payload)+BlockLengthMin), seq)
	dst = append(dst, payload...)

	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), SyncByte), nil
}

// EncodeBlock returns payload framed as a single block.
func EncodeBlock(seq uint8, payload []byte) ([]byte, error) {
	return AppendBlock(make([]byte, 0, len(payload)+BlockLengthMin), seq, payload)
}

// Decoder extracts blocks from a byte stream. Corrupt input is skipped by
// scanning for the next sync byte, the same recovery the MCU side of
// Klipper performs.
type Decoder struct {
	r      io.Reader
	buf    []byte
	chunk  [BlockLengthMax]byte
	synced bool

	// Dropped counts blocks discarded for a bad length, sequence, sync or CRC.
	Dropped int
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, synced: true}
}

// Next returns the next valid block. It returns the reader's error, io.EOF
// included, once no complete block is buffered.
func (d *Decoder) Next() (Block, error) {
	for {
		if b, ok := d.parse(); ok {
			return b, nil
		}

		n, err := d.r.Read(d.chunk[:])
		d.buf = append(d.buf, d.chunk[:n]...)
		if err != nil && n == 0 {
			return Block{}, err
		}
	}
}

// parse consumes buffered bytes until a block is found or more input is
// needed.
func (d *Decoder) parse() (Block, bool) {
	for len(d.buf) > 0 {
		if !d.synced {
			i := 0
			for i < len(d.buf) && d.buf[i] != SyncByte {
				i++
			}
			if i == len(d.buf) {
				d.buf = d.buf[:0]
				return Block{}, false
			}
			d.buf = d.buf[i+1:]
			d.synced = true
			continue
		}

		// Skip leading sync bytes
		if d.buf[0] == SyncByte {
			d.buf = d.buf[1:]
			continue
		}

		if len(d.buf) < BlockLengthMin {
			return Block{}, false
		}

		msgLen := int(d.buf[BlockPositionLen])
		seq := d.buf[BlockPositionSeq]
		if msgLen < BlockLengthMin || seq&^SeqMask != SeqDest {
			d.desync()
			continue
		}

		if len(d.buf) < msgLen {
			return Block{}, false
		}

		if d.buf[msgLen-1] != SyncByte {
			d.desync()
			continue
		}
		frameCRC := uint16(d.buf[msgLen-BlockTrailerSize])<<8 | uint16(d.buf[msgLen-BlockTrailerSize+1])
		if frameCRC != CRC16(d.buf[:msgLen-BlockTrailerSize]) {
			d.desync()
			continue
		}

		payload := make([]byte, msgLen-BlockLengthMin)
		copy(payload, d.buf[BlockHeaderSize:])
		d.buf = d.buf[msgLen:]
		return Block{Seq: seq, Payload: payload}, true
	}
	return Block{}, false
}

func (d *Decoder) desync() {
	d.Dropped++
	d.synced = false
	// Drop the length byte so the scan cannot land on the same block.
	d.buf = d.buf[1:]
}
