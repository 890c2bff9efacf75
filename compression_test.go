package smb3

import (
	"bytes"
	"testing"

	"github.com/smb3client/smb3/internal/smb2"
)

func TestCompressSkipsSmallPayloads(t *testing.T) {
	c := newCompressor([]uint16{smb2.CompressionLZ4})
	out, ok, err := c.compress(bytes.Repeat([]byte{1}, 100))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if ok || out != nil {
		t.Fatalf("a payload at or under 1024 bytes must never be compressed")
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	c := newCompressor([]uint16{smb2.CompressionLZ4})
	plain := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)

	out, ok, err := c.compress(plain)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !ok {
		t.Fatalf("a long, highly repetitive payload should compress smaller than plain")
	}

	cc := smb2.CompressedCodec(out)
	if cc.IsInvalid() {
		t.Fatalf("compress produced an invalid compressed header")
	}

	got, err := decompress(cc)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round-tripped payload does not match the original")
	}
}

func TestNewCompressorRejectsUnsupportedAlgorithms(t *testing.T) {
	// LZ77 is the only algorithm on this list, and this client never
	// implements it; newCompressor must report "nothing negotiated"
	// rather than pick something it cannot drive.
	c := newCompressor([]uint16{smb2.CompressionLZ77})
	if c != nil {
		t.Fatalf("newCompressor must return nil when none of the algorithms offered is LZ4")
	}
}

func TestDecompressOneRejectsUnsupportedAlgorithm(t *testing.T) {
	_, err := decompressOne(smb2.CompressionLZ77, []byte("x"), 1)
	if err == nil {
		t.Fatalf("decompressOne must reject an algorithm other than None/LZ4")
	}
}
