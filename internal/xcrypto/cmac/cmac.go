// Package cmac implements AES-CMAC (NIST SP 800-38B), one of the
// signing algorithms SMB 3.0+ negotiates (spec.md §4.3). Neither
// crypto/cipher nor golang.org/x/crypto ships CMAC, so — following the
// same path the teacher takes with its own internal/crypto/cmac package —
// it is built here directly on the cipher.Block's single-block Encrypt,
// chaining the CBC-MAC by hand.
package cmac

import (
	"crypto/cipher"
	"crypto/subtle"
	"hash"
)

const blockSize = 16

type cmac struct {
	block   cipher.Block
	k1, k2  [blockSize]byte
	buf     []byte
	x       [blockSize]byte
}

// New returns a hash.Hash computing AES-CMAC using block, which must
// have a 16-byte block size (AES-128/192/256 all qualify).
func New(block cipher.Block) hash.Hash {
	if block.BlockSize() != blockSize {
		panic("cmac: block cipher must have a 16-byte block size")
	}
	c := &cmac{block: block}
	c.deriveSubkeys()
	return c
}

func (c *cmac) deriveSubkeys() {
	var zero, l [blockSize]byte
	c.block.Encrypt(l[:], zero[:])
	c.k1 = shiftAndMaybeXor(l)
	c.k2 = shiftAndMaybeXor(c.k1)
}

func shiftAndMaybeXor(in [blockSize]byte) [blockSize]byte {
	var out [blockSize]byte
	msb := in[0] & 0x80
	var carry byte
	for i := blockSize - 1; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		if in[i]&0x80 != 0 {
			carry = 1
		} else {
			carry = 0
		}
	}
	if msb != 0 {
		out[blockSize-1] ^= 0x87
	}
	return out
}

func (c *cmac) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *cmac) Sum(b []byte) []byte {
	mac := c.compute()
	return append(b, mac[:]...)
}

func (c *cmac) Reset() {
	c.buf = nil
	c.x = [blockSize]byte{}
}

func (c *cmac) Size() int      { return blockSize }
func (c *cmac) BlockSize() int { return blockSize }

func (c *cmac) compute() [blockSize]byte {
	msg := c.buf
	n := len(msg)

	nBlocks := (n + blockSize - 1) / blockSize
	complete := n > 0 && n%blockSize == 0
	if nBlocks == 0 {
		nBlocks = 1
		complete = false
	}

	var last [blockSize]byte
	lastStart := (nBlocks - 1) * blockSize
	if complete {
		copy(last[:], msg[lastStart:])
		last = xor16(last, c.k1)
	} else {
		rem := msg[lastStart:]
		copy(last[:], rem)
		last[len(rem)] = 0x80
		last = xor16(last, c.k2)
	}

	var x [blockSize]byte
	for i := 0; i < nBlocks-1; i++ {
		var blk [blockSize]byte
		copy(blk[:], msg[i*blockSize:(i+1)*blockSize])
		x = xor16(x, blk)
		var y [blockSize]byte
		c.block.Encrypt(y[:], x[:])
		x = y
	}
	x = xor16(x, last)
	var out [blockSize]byte
	c.block.Encrypt(out[:], x[:])
	return out
}

func xor16(a, b [blockSize]byte) [blockSize]byte {
	var out [blockSize]byte
	subtle.XORBytes(out[:], a[:], b[:])
	return out
}
