package smb3

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/smb3client/smb3/internal/erref"
	"github.com/smb3client/smb3/internal/smb2"
)

// compressor/decompressor wrap the single compression algorithm this
// client actually negotiates and exercises end to end: LZ4, via the
// third-party codec the rest of the pack already depends on
// (backube-volsync vendors github.com/pierrec/lz4/v4). MS-SMB2's other
// algorithms — LZNT1, plain LZ77, LZ77+Huffman, Pattern_V1 — are
// Microsoft-proprietary formats with no implementation anywhere in the
// example corpus or its transitive dependency set; negotiating one of
// them and then being asked to actually compress/decompress is reported
// as a transform error rather than hand-rolling an undocumented codec.
type compressor struct {
	algorithm uint16
}

func newCompressor(algorithms []uint16) *compressor {
	for _, a := range algorithms {
		if a == smb2.CompressionLZ4 {
			return &compressor{algorithm: smb2.CompressionLZ4}
		}
	}
	return nil
}

// compress produces a single-fragment (unchained) compressed message iff
// it is actually smaller than plain, per spec.md §4.3's ">1024 bytes"
// gate being a necessary, not sufficient, condition in this
// implementation: a payload that does not compress usefully is still
// sent plain, matching MS-SMB2 3.1.4.4's "MAY be sent uncompressed".
func (c *compressor) compress(plain []byte) ([]byte, bool, error) {
	if c == nil || len(plain) <= 1024 {
		return nil, false, nil
	}

	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(plain); err != nil {
		return nil, false, &erref.TransformError{Dir: erref.Outgoing, Phase: erref.PhaseCompress, Reason: err.Error()}
	}
	if err := w.Close(); err != nil {
		return nil, false, &erref.TransformError{Dir: erref.Outgoing, Phase: erref.PhaseCompress, Reason: err.Error()}
	}

	if buf.Len() >= len(plain) {
		return nil, false, nil
	}

	out := smb2.EncodeUnchainedCompressed(uint32(len(plain)), c.algorithm, buf.Bytes())
	return out, true, nil
}

// decompress reverses compress, dispatching on the algorithm the chain
// item (or unchained header) names rather than the locally negotiated
// one, since a server may legally choose any algorithm it advertised.
func decompress(cc smb2.CompressedCodec) ([]byte, error) {
	if cc.IsChained() {
		items, err := cc.DecodeChain()
		if err != nil {
			return nil, &erref.TransformError{Dir: erref.Incoming, Phase: erref.PhaseDecompress, Reason: err.Error()}
		}
		var out []byte
		for _, it := range items {
			chunk, err := decompressOne(it.Algorithm, it.Payload, int(it.OriginalSize))
			if err != nil {
				return nil, err
			}
			out = append(out, chunk...)
		}
		return out, nil
	}

	return decompressOne(cc.Algorithm(), cc.Payload(), int(cc.OriginalCompressedSize()))
}

func decompressOne(algorithm uint16, payload []byte, originalSize int) ([]byte, error) {
	if algorithm == smb2.CompressionNone {
		return payload, nil
	}
	if algorithm != smb2.CompressionLZ4 {
		return nil, &erref.TransformError{
			Dir:    erref.Incoming,
			Phase:  erref.PhaseDecompress,
			Reason: "unsupported compression algorithm",
		}
	}

	r := lz4.NewReader(bytes.NewReader(payload))
	out := make([]byte, 0, originalSize)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &erref.TransformError{Dir: erref.Incoming, Phase: erref.PhaseDecompress, Reason: err.Error()}
		}
	}
	return out, nil
}
