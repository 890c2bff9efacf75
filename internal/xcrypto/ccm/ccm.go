// Package ccm implements AES-CCM (RFC 3610 / NIST SP 800-38C), the
// cipher SMB 3.0/3.0.2 requires and 3.1.1 may negotiate (spec.md §4.3).
// Like cmac, this is hand-rolled because CCM is absent from both
// crypto/cipher and golang.org/x/crypto — the same gap the teacher fills
// with its own internal/crypto/ccm package.
package ccm

import (
	"crypto/cipher"
	"crypto/subtle"
	"errors"
)

const blockSize = 16

type ccm struct {
	block     cipher.Block
	nonceSize int
	tagSize   int
}

// NewCCMWithNonceAndTagSizes returns a cipher.AEAD implementing CCM mode
// over block (which must have a 16-byte block size) with the given
// nonce and tag sizes. SMB2 uses nonceSize 11, tagSize 16.
func NewCCMWithNonceAndTagSizes(block cipher.Block, nonceSize, tagSize int) (cipher.AEAD, error) {
	if block.BlockSize() != blockSize {
		return nil, errors.New("ccm: cipher must have a 16-byte block size")
	}
	if nonceSize < 7 || nonceSize > 13 {
		return nil, errors.New("ccm: invalid nonce size")
	}
	if tagSize < 4 || tagSize > 16 || tagSize%2 != 0 {
		return nil, errors.New("ccm: invalid tag size")
	}
	return &ccm{block: block, nonceSize: nonceSize, tagSize: tagSize}, nil
}

func (c *ccm) NonceSize() int { return c.nonceSize }
func (c *ccm) Overhead() int  { return c.tagSize }

// lengthFieldSize (q, in RFC 3610 terms) is the number of bytes used to
// encode the message length in the counter/B0 blocks.
func (c *ccm) lengthFieldSize() int { return 15 - c.nonceSize }

func (c *ccm) b0(nonce []byte, adataLen, plaintextLen int) [blockSize]byte {
	var b0 [blockSize]byte
	q := c.lengthFieldSize()
	flags := byte(0)
	if adataLen > 0 {
		flags |= 0x40
	}
	flags |= byte((c.tagSize-2)/2) << 3
	flags |= byte(q - 1)
	b0[0] = flags
	copy(b0[1:1+c.nonceSize], nonce)
	putBE(b0[1+c.nonceSize:blockSize], uint64(plaintextLen), q)
	return b0
}

func putBE(dst []byte, v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

func (c *ccm) counter0(nonce []byte) [blockSize]byte {
	var a0 [blockSize]byte
	q := c.lengthFieldSize()
	a0[0] = byte(q - 1)
	copy(a0[1:1+c.nonceSize], nonce)
	return a0
}

// cbcMac computes the RFC 3610 CBC-MAC over B0, the encoded associated
// data, and the plaintext, returning the full-block MAC (tag truncation
// happens by the caller).
func (c *ccm) cbcMac(nonce, adata, plaintext []byte) [blockSize]byte {
	var x [blockSize]byte
	b0 := c.b0(nonce, len(adata), len(plaintext))
	c.block.Encrypt(x[:], b0[:])

	feed := func(block []byte) {
		var padded [blockSize]byte
		copy(padded[:], block)
		var xored [blockSize]byte
		subtle.XORBytes(xored[:], x[:], padded[:])
		c.block.Encrypt(x[:], xored[:])
	}

	if len(adata) > 0 {
		enc := encodeAdataLength(len(adata))
		buf := append(enc, adata...)
		for len(buf) > 0 {
			n := blockSize
			if n > len(buf) {
				n = len(buf)
			}
			feed(buf[:n])
			buf = buf[n:]
		}
	}
	buf := plaintext
	for len(buf) > 0 {
		n := blockSize
		if n > len(buf) {
			n = len(buf)
		}
		feed(buf[:n])
		buf = buf[n:]
	}
	return x
}

func encodeAdataLength(l int) []byte {
	switch {
	case l == 0:
		return nil
	case l < 0xFF00:
		b := make([]byte, 2)
		b[0] = byte(l >> 8)
		b[1] = byte(l)
		return b
	default:
		b := make([]byte, 6)
		b[0] = 0xFF
		b[1] = 0xFE
		putBE(b[2:6], uint64(l), 4)
		return b
	}
}

// ctr applies the CCM counter-mode keystream (counter blocks A1, A2, ...)
// to src, writing into dst. Both may overlap at offset 0.
func (c *ccm) ctr(nonce []byte, startCounter uint64, dst, src []byte) {
	a0 := c.counter0(nonce)
	q := c.lengthFieldSize()
	counter := startCounter
	off := 0
	for off < len(src) {
		var a [blockSize]byte
		copy(a[:], a0[:])
		putBE(a[1+c.nonceSize:blockSize], counter, q)
		var s [blockSize]byte
		c.block.Encrypt(s[:], a[:])
		n := blockSize
		if off+n > len(src) {
			n = len(src) - off
		}
		subtle.XORBytes(dst[off:off+n], src[off:off+n], s[:n])
		counter++
		off += n
	}
}

func (c *ccm) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	if len(nonce) != c.nonceSize {
		panic("ccm: invalid nonce length")
	}
	ret, out := sliceForAppend(dst, len(plaintext)+c.tagSize)

	mac := c.cbcMac(nonce, additionalData, plaintext)

	c.ctr(nonce, 1, out[:len(plaintext)], plaintext)

	var s0 [blockSize]byte
	a0 := c.counter0(nonce)
	c.block.Encrypt(s0[:], a0[:])
	var tag [blockSize]byte
	subtle.XORBytes(tag[:], mac[:], s0[:])
	copy(out[len(plaintext):], tag[:c.tagSize])

	return ret
}

func (c *ccm) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != c.nonceSize {
		return nil, errors.New("ccm: invalid nonce length")
	}
	if len(ciphertext) < c.tagSize {
		return nil, errors.New("ccm: ciphertext too short")
	}
	tag := ciphertext[len(ciphertext)-c.tagSize:]
	ct := ciphertext[:len(ciphertext)-c.tagSize]

	ret, out := sliceForAppend(dst, len(ct))
	c.ctr(nonce, 1, out, ct)

	mac := c.cbcMac(nonce, additionalData, out)
	var s0 [blockSize]byte
	a0 := c.counter0(nonce)
	c.block.Encrypt(s0[:], a0[:])
	var expected [blockSize]byte
	subtle.XORBytes(expected[:], mac[:], s0[:])

	if subtle.ConstantTimeCompare(expected[:c.tagSize], tag) != 1 {
		for i := range out {
			out[i] = 0
		}
		return nil, errors.New("ccm: message authentication failed")
	}
	return ret, nil
}

func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}
