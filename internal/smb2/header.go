package smb2

import "encoding/binary"

// HeaderSize is the fixed size of the SMB2 plain header (MS-SMB2 2.2.1.1).
const HeaderSize = 64

// Header is the decoded form of the 64-byte SMB2 plain header, built by
// callers before Encode and read back out of PacketCodec after decode.
// Packet implementations return a pointer to their embedded Header so the
// connection layer can stamp message id / session id / tree id / credit
// fields without knowing the concrete request type (spec.md §3
// OutgoingMessage).
type Header struct {
	CreditCharge          uint16
	Status                uint32 // ChannelSequence+Reserved on request, Status on response
	Command               uint16
	CreditRequestResponse uint16
	Flags                 uint32
	NextCommand           uint32
	MessageId             uint64
	SessionId             uint64
	TreeId                uint32
	Signature             [16]byte
}

// Packet is implemented by every outgoing SMB2 request body. Size/Encode
// follow the teacher's pattern of a struct that knows its own encoded
// size and writes itself into a caller-provided buffer; Header returns
// the mutable header so the connection/session/tree layers can stamp
// their scope ids into it before the bytes are rendered (spec.md's data
// flow: ResourceHandle -> Tree -> Session -> Connection).
type Packet interface {
	Header() *Header
	Size() int
	Encode(buf []byte)
}

// EncodeHeader writes h into buf[0:64]. The signature field (bytes 48:64)
// is written as-is; callers that need to sign zero it first via
// ZeroSignature.
func EncodeHeader(h *Header, buf []byte) {
	copy(buf[0:4], ProtocolPlain)
	binary.LittleEndian.PutUint16(buf[4:6], HeaderSize)
	binary.LittleEndian.PutUint16(buf[6:8], h.CreditCharge)
	binary.LittleEndian.PutUint32(buf[8:12], h.Status)
	binary.LittleEndian.PutUint16(buf[12:14], h.Command)
	binary.LittleEndian.PutUint16(buf[14:16], h.CreditRequestResponse)
	binary.LittleEndian.PutUint32(buf[16:20], h.Flags)
	binary.LittleEndian.PutUint32(buf[20:24], h.NextCommand)
	binary.LittleEndian.PutUint64(buf[24:32], h.MessageId)
	binary.LittleEndian.PutUint32(buf[32:36], 0) // reserved / process id
	binary.LittleEndian.PutUint32(buf[36:40], h.TreeId)
	binary.LittleEndian.PutUint64(buf[40:48], h.SessionId)
	copy(buf[48:64], h.Signature[:])
}

// PacketCodec is a read/write view over a raw plain-header SMB2 frame,
// mirroring the teacher's PacketCodec accessor style.
type PacketCodec []byte

func (p PacketCodec) IsInvalid() bool {
	if len(p) < HeaderSize {
		return true
	}
	return string(p[0:4]) != ProtocolPlain || binary.LittleEndian.Uint16(p[4:6]) != HeaderSize
}

func (p PacketCodec) CreditCharge() uint16 { return binary.LittleEndian.Uint16(p[6:8]) }
func (p PacketCodec) Status() uint32       { return binary.LittleEndian.Uint32(p[8:12]) }
func (p PacketCodec) Command() uint16      { return binary.LittleEndian.Uint16(p[12:14]) }
func (p PacketCodec) CreditResponse() uint16 {
	return binary.LittleEndian.Uint16(p[14:16])
}
func (p PacketCodec) Flags() uint32       { return binary.LittleEndian.Uint32(p[16:20]) }
func (p PacketCodec) SetFlags(f uint32)   { binary.LittleEndian.PutUint32(p[16:20], f) }
func (p PacketCodec) NextCommand() int    { return int(binary.LittleEndian.Uint32(p[20:24])) }
func (p PacketCodec) MessageId() uint64   { return binary.LittleEndian.Uint64(p[24:32]) }
func (p PacketCodec) AsyncId() uint64     { return binary.LittleEndian.Uint64(p[32:40]) }
func (p PacketCodec) TreeId() uint32      { return binary.LittleEndian.Uint32(p[36:40]) }
func (p PacketCodec) SessionId() uint64   { return binary.LittleEndian.Uint64(p[40:48]) }
func (p PacketCodec) Signature() []byte   { return p[48:64] }
func (p PacketCodec) SetSignature(s []byte) {
	copy(p[48:64], s)
}
func (p PacketCodec) ZeroSignature() { copy(p[48:64], zero16[:]) }

// Data returns the body bytes following the fixed header.
func (p PacketCodec) Data() []byte {
	if off := p.NextCommand(); off != 0 && off <= len(p) {
		return p[HeaderSize:off]
	}
	return p[HeaderSize:]
}

var zero16 [16]byte

// PosMarker reserves a slot for a length/offset field whose value is only
// known once a later section of the buffer has been written, following
// the back-patch pattern spec.md §9 calls for. It never escapes the
// package that created it.
type PosMarker struct {
	buf []byte
	off int
}

// ReservePosMarker records where a 2 or 4 byte field lives and returns a
// handle to patch it later.
func ReservePosMarker(buf []byte, off int) PosMarker {
	return PosMarker{buf: buf, off: off}
}

func (m PosMarker) SetUint16(v uint16) { binary.LittleEndian.PutUint16(m.buf[m.off:m.off+2], v) }
func (m PosMarker) SetUint32(v uint32) { binary.LittleEndian.PutUint32(m.buf[m.off:m.off+4], v) }

// PatchOffsetFrom16 sets a 2-byte little-endian offset relative to base.
func PatchOffsetFrom16(buf []byte, fieldOff, base, target int) {
	binary.LittleEndian.PutUint16(buf[fieldOff:fieldOff+2], uint16(target-base))
}

// PatchOffsetFrom32 sets a 4-byte little-endian offset relative to base.
func PatchOffsetFrom32(buf []byte, fieldOff, base, target int) {
	binary.LittleEndian.PutUint32(buf[fieldOff:fieldOff+4], uint32(target-base))
}
