package packet

import (
	"encoding/binary"
	"errors"
)

// ErrInvalidPacket is returned when the outer block framing of a received
// packet cannot be decoded, or decodes to zero blocks. Per-chunk failures
// inside a well-framed packet never produce this error.
var ErrInvalidPacket = errors.New("packet: invalid packet framing")

// encodeBlocks serializes blocks (index 0 is the main block, the rest are
// reply blocks) as a length-prefixed little-endian binary structure:
// uint64 block count, then per block a uint64 chunk count followed by
// uint64-length-prefixed chunk byte strings. This is self-delimiting and
// round-trips exactly, satisfying the wire format's only hard requirement;
// the concrete layout is otherwise an implementation choice.
func encodeBlocks(blocks [][][]byte) []byte {
	size := 8
	for _, block := range blocks {
		size += 8
		for _, c := range block {
			size += 8 + len(c)
		}
	}

	out := make([]byte, 0, size)
	out = appendUint64(out, uint64(len(blocks)))
	for _, block := range blocks {
		out = appendUint64(out, uint64(len(block)))
		for _, c := range block {
			out = appendUint64(out, uint64(len(c)))
			out = append(out, c...)
		}
	}
	return out
}

func appendUint64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}

// decodeBlocks is the inverse of encodeBlocks. It returns ErrInvalidPacket
// for any framing error: truncated length prefixes, a length prefix that
// would read past the end of the buffer, or trailing garbage after the
// last declared block.
func decodeBlocks(data []byte) ([][][]byte, error) {
	r := reader{data: data}

	blockCount, err := r.readUint64()
	if err != nil {
		return nil, ErrInvalidPacket
	}

	blocks := make([][][]byte, 0, blockCount)
	for i := uint64(0); i < blockCount; i++ {
		chunkCount, err := r.readUint64()
		if err != nil {
			return nil, ErrInvalidPacket
		}
		block := make([][]byte, 0, chunkCount)
		for j := uint64(0); j < chunkCount; j++ {
			chunkLen, err := r.readUint64()
			if err != nil {
				return nil, ErrInvalidPacket
			}
			c, err := r.readBytes(chunkLen)
			if err != nil {
				return nil, ErrInvalidPacket
			}
			block = append(block, c)
		}
		blocks = append(blocks, block)
	}

	if !r.atEnd() {
		return nil, ErrInvalidPacket
	}
	return blocks, nil
}

// reader walks a byte slice without ever panicking on malformed lengths.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) readUint64() (uint64, error) {
	if len(r.data)-r.pos < 8 {
		return 0, ErrInvalidPacket
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) readBytes(n uint64) ([]byte, error) {
	if n > uint64(len(r.data)-r.pos) {
		return nil, ErrInvalidPacket
	}
	out := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *reader) atEnd() bool {
	return r.pos == len(r.data)
}
