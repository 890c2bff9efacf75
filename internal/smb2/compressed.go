package smb2

import "encoding/binary"

// CompressedHeaderSize is the fixed prefix of SMB2_COMPRESSION_TRANSFORM_HEADER
// (MS-SMB2 2.2.42.1): protocol_id(4) + original_compressed_size(4) +
// [unchained: algorithm(2)+flags(2)+offset/length(4)] or
// [chained: flags(2)+reserved... then a sequence of chained items].
const CompressedHeaderSize = 16

// compressionAlgorithmNeedsOriginalSize reports whether a chained item
// for algorithm carries its own 4-byte original_size field. Per spec.md
// §6, the "pattern-v1" family does; LZ4/LZ77/LZ77+Huffman/plain do not.
func compressionAlgorithmNeedsOriginalSize(algorithm uint16) bool {
	return algorithm == CompressionPatternV1
}

// CompressedChainItem is one record of a chained compressed message.
type CompressedChainItem struct {
	Algorithm    uint16
	Flags        uint16
	OriginalSize uint32 // only meaningful when compressionAlgorithmNeedsOriginalSize(Algorithm)
	Payload      []byte
}

// EncodedSize returns the wire size of this chained item including its
// own 8-byte (or 12-byte, for pattern-v1) sub-header.
func (it *CompressedChainItem) EncodedSize() int {
	n := 8 + len(it.Payload)
	if compressionAlgorithmNeedsOriginalSize(it.Algorithm) {
		n += 4
	}
	return n
}

func (it *CompressedChainItem) Encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], it.Algorithm)
	binary.LittleEndian.PutUint16(buf[2:4], it.Flags)
	off := 8
	if compressionAlgorithmNeedsOriginalSize(it.Algorithm) {
		binary.LittleEndian.PutUint32(buf[4:8], uint32(len(it.Payload)+4))
		binary.LittleEndian.PutUint32(buf[8:12], it.OriginalSize)
		off = 12
	} else {
		binary.LittleEndian.PutUint32(buf[4:8], uint32(len(it.Payload)))
	}
	copy(buf[off:], it.Payload)
}

// DecodeCompressedChainItem decodes one chained item starting at buf[0]
// and returns it along with the number of bytes it consumed.
func DecodeCompressedChainItem(buf []byte) (CompressedChainItem, int, error) {
	if len(buf) < 8 {
		return CompressedChainItem{}, 0, errShortCompressedItem
	}
	algo := binary.LittleEndian.Uint16(buf[0:2])
	flags := binary.LittleEndian.Uint16(buf[2:4])
	length := binary.LittleEndian.Uint32(buf[4:8])
	if compressionAlgorithmNeedsOriginalSize(algo) {
		if len(buf) < 12 || int(length) < 4 {
			return CompressedChainItem{}, 0, errShortCompressedItem
		}
		origSize := binary.LittleEndian.Uint32(buf[8:12])
		payloadLen := int(length) - 4
		if 12+payloadLen > len(buf) {
			return CompressedChainItem{}, 0, errShortCompressedItem
		}
		payload := buf[12 : 12+payloadLen]
		return CompressedChainItem{Algorithm: algo, Flags: flags, OriginalSize: origSize, Payload: payload}, 12 + payloadLen, nil
	}
	if 8+int(length) > len(buf) {
		return CompressedChainItem{}, 0, errShortCompressedItem
	}
	payload := buf[8 : 8+length]
	return CompressedChainItem{Algorithm: algo, Flags: flags, Payload: payload}, 8 + int(length), nil
}

type compressedErr string

func (e compressedErr) Error() string { return string(e) }

const errShortCompressedItem = compressedErr("truncated compressed chain item")

// EncodeUnchainedCompressed builds an unchained (single-algorithm)
// compressed message: 16-byte header + payload.
func EncodeUnchainedCompressed(originalSize uint32, algorithm uint16, payload []byte) []byte {
	buf := make([]byte, CompressedHeaderSize+len(payload))
	copy(buf[0:4], ProtocolCompressed)
	binary.LittleEndian.PutUint32(buf[4:8], originalSize)
	binary.LittleEndian.PutUint16(buf[8:10], algorithm)
	binary.LittleEndian.PutUint16(buf[10:12], 0) // flags: unchained
	binary.LittleEndian.PutUint32(buf[12:16], 0) // offset/length, unused unchained
	copy(buf[16:], payload)
	return buf
}

// EncodeChainedCompressed builds a chained compressed message out of
// items, each independently flagged (CompressionCapsFlagChained).
func EncodeChainedCompressed(originalSize uint32, items []CompressedChainItem) []byte {
	total := CompressedHeaderSize
	for _, it := range items {
		total += it.EncodedSize()
	}
	buf := make([]byte, total)
	copy(buf[0:4], ProtocolCompressed)
	binary.LittleEndian.PutUint32(buf[4:8], originalSize)
	binary.LittleEndian.PutUint16(buf[8:10], 0) // algorithm unused in chained form
	binary.LittleEndian.PutUint16(buf[10:12], CompressionCapsFlagChained)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	off := CompressedHeaderSize
	for _, it := range items {
		it.Encode(buf[off:])
		off += it.EncodedSize()
	}
	return buf
}

// CompressedCodec is a read view over a compressed frame.
type CompressedCodec []byte

func (c CompressedCodec) IsInvalid() bool {
	return len(c) < CompressedHeaderSize || string(c[0:4]) != ProtocolCompressed
}
func (c CompressedCodec) OriginalCompressedSize() uint32 { return binary.LittleEndian.Uint32(c[4:8]) }
func (c CompressedCodec) IsChained() bool                { return binary.LittleEndian.Uint16(c[10:12])&CompressionCapsFlagChained != 0 }
func (c CompressedCodec) Algorithm() uint16              { return binary.LittleEndian.Uint16(c[8:10]) }
func (c CompressedCodec) Payload() []byte                { return c[CompressedHeaderSize:] }

// DecodeChain decodes every chained item in a chained compressed frame.
func (c CompressedCodec) DecodeChain() ([]CompressedChainItem, error) {
	var items []CompressedChainItem
	buf := c.Payload()
	for len(buf) > 0 {
		it, n, err := DecodeCompressedChainItem(buf)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
		buf = buf[n:]
	}
	return items, nil
}
