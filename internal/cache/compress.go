package cache

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Compressed payloads are framed with a 4-byte magic plus the original length
// so a reader can detect compression without out-of-band state.
var lz4Magic = []byte{0xd5, 0x1f, 0x51, 0x7e}

const lz4HeaderSize = 8 // magic + uint32 original length

// compressPayload frames and LZ4-compresses data. If compression does not
// shrink the payload, the original bytes are returned unframed.
func compressPayload(data []byte) []byte {
	bound := lz4.CompressBlockBound(len(data))
	dst := make([]byte, lz4HeaderSize+bound)
	copy(dst, lz4Magic)
	binary.LittleEndian.PutUint32(dst[4:], uint32(len(data)))

	written, err := lz4.CompressBlock(data, dst[lz4HeaderSize:], nil)
	if err != nil || written == 0 || lz4HeaderSize+written >= len(data) {
		return data
	}
	return dst[:lz4HeaderSize+written]
}

// decompressPayload reverses compressPayload. Unframed payloads pass through.
func decompressPayload(data []byte) ([]byte, error) {
	if !isCompressed(data) {
		return data, nil
	}

	origLen := binary.LittleEndian.Uint32(data[4:])
	dst := make([]byte, origLen)
	n, err := lz4.UncompressBlock(data[lz4HeaderSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress failed: %w", err)
	}
	if uint32(n) != origLen {
		return nil, fmt.Errorf("lz4 decompress produced %d bytes, expected %d", n, origLen)
	}
	return dst, nil
}

func isCompressed(data []byte) bool {
	if len(data) < lz4HeaderSize {
		return false
	}
	for i, b := range lz4Magic {
		if data[i] != b {
			return false
		}
	}
	return true
}
