package smb2

import "encoding/binary"

// NegotiateContext is implemented by the typed context records a 3.1.1
// negotiate request may carry (spec.md glossary: "Negotiate context").
type NegotiateContext interface {
	ContextType() uint16
	ContextData() []byte
}

// HashContext carries the client's preferred preauth-integrity hash
// algorithms and salt (SMB2_PREAUTH_INTEGRITY_CAPABILITIES).
type HashContext struct {
	HashAlgorithms []uint16
	HashSalt       []byte
}

func (c *HashContext) ContextType() uint16 { return SMB2_PREAUTH_INTEGRITY_CAPABILITIES }
func (c *HashContext) ContextData() []byte {
	buf := make([]byte, 4+2*len(c.HashAlgorithms)+len(c.HashSalt))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(c.HashAlgorithms)))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(c.HashSalt)))
	off := 4
	for _, a := range c.HashAlgorithms {
		binary.LittleEndian.PutUint16(buf[off:off+2], a)
		off += 2
	}
	copy(buf[off:], c.HashSalt)
	return buf
}

// CipherContext carries the client's preferred ciphers
// (SMB2_ENCRYPTION_CAPABILITIES).
type CipherContext struct {
	Ciphers []uint16
}

func (c *CipherContext) ContextType() uint16 { return SMB2_ENCRYPTION_CAPABILITIES }
func (c *CipherContext) ContextData() []byte {
	buf := make([]byte, 2+2*len(c.Ciphers))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(c.Ciphers)))
	off := 2
	for _, a := range c.Ciphers {
		binary.LittleEndian.PutUint16(buf[off:off+2], a)
		off += 2
	}
	return buf
}

// CompressionContext carries the client's preferred compression
// algorithms (SMB2_COMPRESSION_CAPABILITIES).
type CompressionContext struct {
	Algorithms []uint16
}

func (c *CompressionContext) ContextType() uint16 { return SMB2_COMPRESSION_CAPABILITIES }
func (c *CompressionContext) ContextData() []byte {
	buf := make([]byte, 8+2*len(c.Algorithms))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(c.Algorithms)))
	binary.LittleEndian.PutUint16(buf[2:4], 0) // padding
	binary.LittleEndian.PutUint32(buf[4:8], CompressionCapsFlagNone)
	off := 8
	for _, a := range c.Algorithms {
		binary.LittleEndian.PutUint16(buf[off:off+2], a)
		off += 2
	}
	return buf
}

// SigningContext carries the client's preferred signing algorithms
// (SMB2_SIGNING_CAPABILITIES, added in 3.1.1).
type SigningContext struct {
	SigningAlgorithms []uint16
}

func (c *SigningContext) ContextType() uint16 { return SMB2_SIGNING_CAPABILITIES }
func (c *SigningContext) ContextData() []byte {
	buf := make([]byte, 2+2*len(c.SigningAlgorithms))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(c.SigningAlgorithms)))
	off := 2
	for _, a := range c.SigningAlgorithms {
		binary.LittleEndian.PutUint16(buf[off:off+2], a)
		off += 2
	}
	return buf
}

// NegotiateRequest is the SMB2_NEGOTIATE request body.
type NegotiateRequest struct {
	hdr           Header
	SecurityMode  uint16
	Capabilities  uint32
	ClientGuid    [16]byte
	Dialects      []uint16
	Contexts      []NegotiateContext
}

func (r *NegotiateRequest) Header() *Header { r.hdr.Command = SMB2_NEGOTIATE; return &r.hdr }

func (r *NegotiateRequest) Size() int {
	n := HeaderSize + 36 + 2*len(r.Dialects)
	if len(r.Dialects)%2 != 0 {
		n += 2 // padding to 8-byte alignment before contexts
	}
	for _, c := range r.Contexts {
		n += 8 + len(c.ContextData())
		if pad := len(c.ContextData()) % 8; pad != 0 {
			n += 8 - pad
		}
	}
	return n
}

func (r *NegotiateRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	body := buf[HeaderSize:]
	binary.LittleEndian.PutUint16(body[0:2], 36)
	binary.LittleEndian.PutUint16(body[2:4], uint16(len(r.Dialects)))
	binary.LittleEndian.PutUint16(body[4:6], r.SecurityMode)
	binary.LittleEndian.PutUint16(body[6:8], 0) // reserved
	binary.LittleEndian.PutUint32(body[8:12], r.Capabilities)
	copy(body[12:28], r.ClientGuid[:])

	dialectsOff := 36
	haveSMB311 := false
	for i, d := range r.Dialects {
		binary.LittleEndian.PutUint16(body[dialectsOff+2*i:dialectsOff+2*i+2], d)
		if d == SMB311 {
			haveSMB311 = true
		}
	}
	off := dialectsOff + 2*len(r.Dialects)
	if len(r.Dialects)%2 != 0 {
		off += 2
	}
	if haveSMB311 && len(r.Contexts) > 0 {
		ctxOff := HeaderSize + off
		binary.LittleEndian.PutUint32(body[28:32], uint32(ctxOff))
		binary.LittleEndian.PutUint16(body[32:34], uint16(len(r.Contexts)))
		for _, c := range r.Contexts {
			data := c.ContextData()
			binary.LittleEndian.PutUint16(body[off:off+2], c.ContextType())
			binary.LittleEndian.PutUint16(body[off+2:off+4], uint16(len(data)))
			binary.LittleEndian.PutUint32(body[off+4:off+8], 0)
			copy(body[off+8:off+8+len(data)], data)
			adv := 8 + len(data)
			if pad := len(data) % 8; pad != 0 {
				adv += 8 - pad
			}
			off += adv
		}
	}
}

// NegotiateResponseDecoder reads an SMB2_NEGOTIATE response body.
type NegotiateResponseDecoder []byte

func (d NegotiateResponseDecoder) IsInvalid() bool {
	return len(d) < 64 || binary.LittleEndian.Uint16(d[0:2]) != 65
}
func (d NegotiateResponseDecoder) SecurityMode() uint16   { return binary.LittleEndian.Uint16(d[2:4]) }
func (d NegotiateResponseDecoder) DialectRevision() uint16 { return binary.LittleEndian.Uint16(d[4:6]) }
func (d NegotiateResponseDecoder) NegotiateContextCount() uint16 {
	return binary.LittleEndian.Uint16(d[6:8])
}
func (d NegotiateResponseDecoder) ServerGuid() []byte        { return d[8:24] }
func (d NegotiateResponseDecoder) Capabilities() uint32      { return binary.LittleEndian.Uint32(d[24:28]) }
func (d NegotiateResponseDecoder) MaxTransactSize() uint32   { return binary.LittleEndian.Uint32(d[28:32]) }
func (d NegotiateResponseDecoder) MaxReadSize() uint32       { return binary.LittleEndian.Uint32(d[32:36]) }
func (d NegotiateResponseDecoder) MaxWriteSize() uint32      { return binary.LittleEndian.Uint32(d[36:40]) }
func (d NegotiateResponseDecoder) SystemTime() uint64        { return binary.LittleEndian.Uint64(d[40:48]) }
func (d NegotiateResponseDecoder) ServerStartTime() uint64   { return binary.LittleEndian.Uint64(d[48:56]) }
func (d NegotiateResponseDecoder) SecurityBufferOffset() uint16 {
	return binary.LittleEndian.Uint16(d[56:58])
}
func (d NegotiateResponseDecoder) SecurityBufferLength() uint16 {
	return binary.LittleEndian.Uint16(d[58:60])
}
func (d NegotiateResponseDecoder) NegotiateContextOffset() uint32 {
	return binary.LittleEndian.Uint32(d[60:64])
}
func (d NegotiateResponseDecoder) SecurityBuffer() []byte {
	off := d.SecurityBufferOffset()
	l := d.SecurityBufferLength()
	// SecurityBufferOffset is relative to the start of the SMB2 header;
	// d here starts at the body (+64), so subtract HeaderSize.
	start := int(off) - HeaderSize
	if start < 0 || start+int(l) > len(d) {
		return nil
	}
	return d[start : start+int(l)]
}
func (d NegotiateResponseDecoder) NegotiateContextList() []byte {
	start := int(d.NegotiateContextOffset()) - HeaderSize
	if start < 0 || start > len(d) {
		return nil
	}
	return d[start:]
}

// NegotiateContextDecoder reads one chained negotiate-context record.
type NegotiateContextDecoder []byte

func (d NegotiateContextDecoder) IsInvalid() bool { return len(d) < 8 }
func (d NegotiateContextDecoder) ContextType() uint16 {
	return binary.LittleEndian.Uint16(d[0:2])
}
func (d NegotiateContextDecoder) DataLength() uint16 { return binary.LittleEndian.Uint16(d[2:4]) }
func (d NegotiateContextDecoder) Data() []byte {
	l := int(d.DataLength())
	if 8+l > len(d) {
		return nil
	}
	return d[8 : 8+l]
}

// Next returns the byte offset of the next chained context, 8-byte
// aligned per MS-SMB2 2.2.3.1.
func (d NegotiateContextDecoder) Next() int {
	l := int(d.DataLength())
	adv := 8 + l
	if pad := l % 8; pad != 0 {
		adv += 8 - pad
	}
	return adv
}

// HashContextDataDecoder reads SMB2_PREAUTH_INTEGRITY_CAPABILITIES data.
type HashContextDataDecoder []byte

func (d HashContextDataDecoder) IsInvalid() bool { return len(d) < 4 }
func (d HashContextDataDecoder) HashAlgorithmCount() uint16 {
	return binary.LittleEndian.Uint16(d[0:2])
}
func (d HashContextDataDecoder) SaltLength() uint16 { return binary.LittleEndian.Uint16(d[2:4]) }
func (d HashContextDataDecoder) HashAlgorithms() []uint16 {
	n := int(d.HashAlgorithmCount())
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint16(d[4+2*i : 6+2*i])
	}
	return out
}
func (d HashContextDataDecoder) Salt() []byte {
	off := 4 + 2*int(d.HashAlgorithmCount())
	return d[off : off+int(d.SaltLength())]
}

// CipherContextDataDecoder reads SMB2_ENCRYPTION_CAPABILITIES data.
type CipherContextDataDecoder []byte

func (d CipherContextDataDecoder) IsInvalid() bool { return len(d) < 2 }
func (d CipherContextDataDecoder) CipherCount() uint16 {
	return binary.LittleEndian.Uint16(d[0:2])
}
func (d CipherContextDataDecoder) Ciphers() []uint16 {
	n := int(d.CipherCount())
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint16(d[2+2*i : 4+2*i])
	}
	return out
}

// CompressionContextDataDecoder reads SMB2_COMPRESSION_CAPABILITIES data.
type CompressionContextDataDecoder []byte

func (d CompressionContextDataDecoder) IsInvalid() bool { return len(d) < 8 }
func (d CompressionContextDataDecoder) AlgorithmCount() uint16 {
	return binary.LittleEndian.Uint16(d[0:2])
}
func (d CompressionContextDataDecoder) Flags() uint32 { return binary.LittleEndian.Uint32(d[4:8]) }
func (d CompressionContextDataDecoder) Algorithms() []uint16 {
	n := int(d.AlgorithmCount())
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint16(d[8+2*i : 10+2*i])
	}
	return out
}

// SigningContextDataDecoder reads SMB2_SIGNING_CAPABILITIES data.
type SigningContextDataDecoder []byte

func (d SigningContextDataDecoder) IsInvalid() bool { return len(d) < 2 }
func (d SigningContextDataDecoder) AlgorithmCount() uint16 {
	return binary.LittleEndian.Uint16(d[0:2])
}
func (d SigningContextDataDecoder) Algorithms() []uint16 {
	n := int(d.AlgorithmCount())
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint16(d[2+2*i : 4+2*i])
	}
	return out
}
