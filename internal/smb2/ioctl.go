package smb2

import "encoding/binary"

// IoctlRequest is the SMB2_IOCTL request body. Uses WildcardFileId when
// the FSCTL does not target a specific open (spec.md §4.6).
type IoctlRequest struct {
	hdr               Header
	CtlCode           uint32
	FileId            [2]uint64
	InputBuffer       []byte
	MaxInputResponse  uint32
	MaxOutputResponse uint32
	Flags             uint32
}

func (r *IoctlRequest) Header() *Header { r.hdr.Command = SMB2_IOCTL; return &r.hdr }
func (r *IoctlRequest) Size() int       { return HeaderSize + 56 + len(r.InputBuffer) }

func (r *IoctlRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	body := buf[HeaderSize:]
	binary.LittleEndian.PutUint16(body[0:2], 57)
	binary.LittleEndian.PutUint16(body[2:4], 0) // reserved
	binary.LittleEndian.PutUint32(body[4:8], r.CtlCode)
	binary.LittleEndian.PutUint64(body[8:16], r.FileId[0])
	binary.LittleEndian.PutUint64(body[16:24], r.FileId[1])
	inOff := 0
	if len(r.InputBuffer) > 0 {
		inOff = HeaderSize + 56
	}
	binary.LittleEndian.PutUint32(body[24:28], uint32(inOff))
	binary.LittleEndian.PutUint32(body[28:32], uint32(len(r.InputBuffer)))
	binary.LittleEndian.PutUint32(body[32:36], r.MaxInputResponse)
	binary.LittleEndian.PutUint32(body[36:40], 0) // OutputOffset (unused on request)
	binary.LittleEndian.PutUint32(body[40:44], 0) // OutputCount
	binary.LittleEndian.PutUint32(body[44:48], r.MaxOutputResponse)
	binary.LittleEndian.PutUint32(body[48:52], r.Flags)
	binary.LittleEndian.PutUint32(body[52:56], 0) // reserved2
	copy(body[56:], r.InputBuffer)
}

// IoctlResponseDecoder reads an SMB2_IOCTL response body.
type IoctlResponseDecoder []byte

func (d IoctlResponseDecoder) IsInvalid() bool {
	return len(d) < 48 || binary.LittleEndian.Uint16(d[0:2]) != 49
}
func (d IoctlResponseDecoder) CtlCode() uint32 { return binary.LittleEndian.Uint32(d[4:8]) }
func (d IoctlResponseDecoder) OutputOffset() uint32 {
	return binary.LittleEndian.Uint32(d[32:36])
}
func (d IoctlResponseDecoder) OutputCount() uint32 { return binary.LittleEndian.Uint32(d[36:40]) }
func (d IoctlResponseDecoder) OutputBuffer() []byte {
	off := int(d.OutputOffset()) - HeaderSize
	l := int(d.OutputCount())
	if off < 0 || off+l > len(d) {
		return nil
	}
	return d[off : off+l]
}

// NetworkInterfaceInfoDecoder reads one NETWORK_INTERFACE_INFO record
// from an FSCTL_QUERY_NETWORK_INTERFACE_INFO response (MS-SMB2 2.2.32.5),
// used by the client facade's multichannel interface selection.
type NetworkInterfaceInfoDecoder []byte

func (d NetworkInterfaceInfoDecoder) Next() uint32    { return binary.LittleEndian.Uint32(d[0:4]) }
func (d NetworkInterfaceInfoDecoder) IfIndex() uint32 { return binary.LittleEndian.Uint32(d[4:8]) }
func (d NetworkInterfaceInfoDecoder) Capability() uint32 {
	return binary.LittleEndian.Uint32(d[8:12])
}
func (d NetworkInterfaceInfoDecoder) LinkSpeed() uint64 {
	return binary.LittleEndian.Uint64(d[16:24])
}
func (d NetworkInterfaceInfoDecoder) RssCapable() bool { return d.Capability()&0x1 != 0 }
func (d NetworkInterfaceInfoDecoder) RdmaCapable() bool { return d.Capability()&0x2 != 0 }

// SockAddrFamily values in NETWORK_INTERFACE_INFO's sockaddr_storage.
const (
	SockAddrFamilyIPv4 = 0x2
	SockAddrFamilyIPv6 = 0x17
)

func (d NetworkInterfaceInfoDecoder) Family() uint16 {
	return binary.LittleEndian.Uint16(d[24:26])
}
func (d NetworkInterfaceInfoDecoder) IPv4() [4]byte {
	var a [4]byte
	copy(a[:], d[28:32])
	return a
}
