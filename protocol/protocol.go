// Package protocol implements the framing used by the I2C bridge. It is a
// trimmed form of the Klipper block format: a length byte, a sequence
// byte, a payload of VLQ encoded fields, a CRC16 and a sync byte.
package protocol

// Version of the bridge protocol.
const Version = "1"

// Block layout constants
const (
	BlockHeaderSize  = 2 // length, sequence
	BlockTrailerSize = 3 // crc16 (big endian), sync
	BlockLengthMin   = BlockHeaderSize + BlockTrailerSize
	BlockLengthMax   = 255
	PayloadMax       = BlockLengthMax - BlockLengthMin

	BlockPositionLen = 0
	BlockPositionSeq = 1

	SyncByte = 0x7E

	// Sequence bytes carry SeqDest in the high nibble.
	SeqDest = 0x10
	SeqMask = 0x0F
)

// Block is a decoded frame.
type Block struct {
	Seq     uint8
	Payload []byte
}

// NextSeq returns the sequence byte following seq.
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & SeqMask) | SeqDest
}
