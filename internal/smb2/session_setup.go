package smb2

import "encoding/binary"

// SessionSetupRequest is the SMB2_SESSION_SETUP request body.
type SessionSetupRequest struct {
	hdr               Header
	Flags             byte
	SecurityMode      byte
	Capabilities      uint32
	Channel           uint32
	PreviousSessionId uint64
	SecurityBuffer    []byte
}

func (r *SessionSetupRequest) Header() *Header { r.hdr.Command = SMB2_SESSION_SETUP; return &r.hdr }
func (r *SessionSetupRequest) Size() int       { return HeaderSize + 24 + len(r.SecurityBuffer) }

func (r *SessionSetupRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	body := buf[HeaderSize:]
	binary.LittleEndian.PutUint16(body[0:2], 25)
	body[2] = r.Flags
	body[3] = r.SecurityMode
	binary.LittleEndian.PutUint32(body[4:8], r.Capabilities)
	binary.LittleEndian.PutUint32(body[8:12], r.Channel)
	binary.LittleEndian.PutUint16(body[12:14], uint16(HeaderSize+24))
	binary.LittleEndian.PutUint16(body[14:16], uint16(len(r.SecurityBuffer)))
	binary.LittleEndian.PutUint64(body[16:24], r.PreviousSessionId)
	copy(body[24:], r.SecurityBuffer)
}

// SessionSetupResponseDecoder reads an SMB2_SESSION_SETUP response body.
type SessionSetupResponseDecoder []byte

func (d SessionSetupResponseDecoder) IsInvalid() bool {
	return len(d) < 8 || binary.LittleEndian.Uint16(d[0:2]) != 9
}
func (d SessionSetupResponseDecoder) SessionFlags() uint16 { return binary.LittleEndian.Uint16(d[2:4]) }
func (d SessionSetupResponseDecoder) SecurityBufferOffset() uint16 {
	return binary.LittleEndian.Uint16(d[4:6])
}
func (d SessionSetupResponseDecoder) SecurityBufferLength() uint16 {
	return binary.LittleEndian.Uint16(d[6:8])
}
func (d SessionSetupResponseDecoder) SecurityBuffer() []byte {
	start := int(d.SecurityBufferOffset()) - HeaderSize
	l := int(d.SecurityBufferLength())
	if start < 0 || start+l > len(d) {
		return nil
	}
	return d[start : start+l]
}

// LogoffRequest is the SMB2_LOGOFF request body (no fields beyond the
// fixed structure size).
type LogoffRequest struct {
	hdr Header
}

func (r *LogoffRequest) Header() *Header { r.hdr.Command = SMB2_LOGOFF; return &r.hdr }
func (r *LogoffRequest) Size() int       { return HeaderSize + 4 }
func (r *LogoffRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	binary.LittleEndian.PutUint16(buf[HeaderSize:HeaderSize+2], 4)
}

// CancelRequest carries message id 0xFFFFFFFFFFFFFFFF semantics at the
// connection layer; its body has no payload.
type CancelRequest struct {
	hdr Header
}

func (r *CancelRequest) Header() *Header { r.hdr.Command = SMB2_CANCEL; return &r.hdr }
func (r *CancelRequest) Size() int       { return HeaderSize + 4 }
func (r *CancelRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	binary.LittleEndian.PutUint16(buf[HeaderSize:HeaderSize+2], 4)
}

// EchoRequest is the SMB2_ECHO keepalive request.
type EchoRequest struct {
	hdr Header
}

func (r *EchoRequest) Header() *Header { r.hdr.Command = SMB2_ECHO; return &r.hdr }
func (r *EchoRequest) Size() int       { return HeaderSize + 4 }
func (r *EchoRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	binary.LittleEndian.PutUint16(buf[HeaderSize:HeaderSize+2], 4)
}
