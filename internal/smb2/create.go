package smb2

import "encoding/binary"

// CreateContextRequest is one chained create context in a CREATE request
// (MS-SMB2 2.2.13.2).
type CreateContextRequest struct {
	Name string // 4-byte tag, e.g. CreateContextDHnQ
	Data []byte
}

func (c *CreateContextRequest) encodedSize() int {
	n := 16 + len(c.Name) + len(c.Data)
	if pad := n % 8; pad != 0 {
		n += 8 - pad
	}
	return n
}

func (c *CreateContextRequest) encode(buf []byte, last bool) int {
	nameLen := len(c.Name)
	dataOff := 16 + nameLen
	if pad := dataOff % 8; pad != 0 {
		dataOff += 8 - pad
	}
	total := dataOff + len(c.Data)
	if pad := total % 8; pad != 0 {
		total += 8 - pad
	}
	if !last {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	} else {
		binary.LittleEndian.PutUint32(buf[0:4], 0)
	}
	binary.LittleEndian.PutUint16(buf[4:6], 16) // NameOffset
	binary.LittleEndian.PutUint16(buf[6:8], uint16(nameLen))
	binary.LittleEndian.PutUint16(buf[8:10], 0) // reserved
	binary.LittleEndian.PutUint16(buf[10:12], uint16(dataOff))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(c.Data)))
	copy(buf[16:16+nameLen], c.Name)
	copy(buf[dataOff:dataOff+len(c.Data)], c.Data)
	return total
}

// MxAcRequestData encodes an empty MxAc (maximal access) request — the
// client sends no timestamp, asking for the access mask as of "now".
func MxAcRequestData() []byte { return nil }

// QFidRequestData encodes an empty QFid request.
func QFidRequestData() []byte { return nil }

// DurableHandleV2RequestData encodes a DH2Q create context.
func DurableHandleV2RequestData(timeout uint32, createGuid [16]byte, persistent bool) []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:4], timeout)
	flags := uint32(0)
	if persistent {
		flags = 0x2
	}
	binary.LittleEndian.PutUint32(buf[4:8], flags)
	copy(buf[16:32], createGuid[:])
	return buf
}

// LeaseRequestData encodes an RqLs (lease request, v1) create context.
func LeaseRequestData(leaseKey [16]byte, leaseState uint32) []byte {
	buf := make([]byte, 32)
	copy(buf[0:16], leaseKey[:])
	binary.LittleEndian.PutUint32(buf[16:20], leaseState)
	return buf
}

// CreateRequest is the SMB2_CREATE request body.
type CreateRequest struct {
	hdr                Header
	SecurityFlags      byte
	RequestedOplock    byte
	ImpersonationLevel uint32
	DesiredAccess      uint32
	FileAttributes     uint32
	ShareAccess        uint32
	CreateDisposition  uint32
	CreateOptions      uint32
	Name               string
	Contexts           []CreateContextRequest
}

func (r *CreateRequest) Header() *Header { r.hdr.Command = SMB2_CREATE; return &r.hdr }

func (r *CreateRequest) Size() int {
	n := HeaderSize + 56 + encodedUTF16Len(r.Name)
	if pad := n % 8; pad != 0 {
		n += 8 - pad
	}
	for _, c := range r.Contexts {
		n += c.encodedSize()
	}
	return n
}

func (r *CreateRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	body := buf[HeaderSize:]
	binary.LittleEndian.PutUint16(body[0:2], 57)
	body[2] = r.SecurityFlags
	body[3] = r.RequestedOplock
	binary.LittleEndian.PutUint32(body[4:8], r.ImpersonationLevel)
	binary.LittleEndian.PutUint64(body[8:16], 0) // SmbCreateFlags
	binary.LittleEndian.PutUint64(body[16:24], 0) // Reserved
	binary.LittleEndian.PutUint32(body[24:28], r.DesiredAccess)
	binary.LittleEndian.PutUint32(body[28:32], r.FileAttributes)
	binary.LittleEndian.PutUint32(body[32:36], r.ShareAccess)
	binary.LittleEndian.PutUint32(body[36:40], r.CreateDisposition)
	binary.LittleEndian.PutUint32(body[40:44], r.CreateOptions)

	nameOff := 56
	nameLen := encodedUTF16Len(r.Name)
	binary.LittleEndian.PutUint16(body[44:46], uint16(HeaderSize+nameOff))
	binary.LittleEndian.PutUint16(body[46:48], uint16(nameLen))
	putUTF16(body[nameOff:], r.Name)

	ctxOff := nameOff + nameLen
	if pad := ctxOff % 8; pad != 0 {
		ctxOff += 8 - pad
	}
	if len(r.Contexts) > 0 {
		binary.LittleEndian.PutUint32(body[48:52], uint32(HeaderSize+ctxOff))
		total := 0
		for i, c := range r.Contexts {
			n := c.encode(body[ctxOff+total:], i == len(r.Contexts)-1)
			total += n
		}
		binary.LittleEndian.PutUint32(body[52:56], uint32(total))
	}
}

// CreateResponseDecoder reads an SMB2_CREATE response body.
type CreateResponseDecoder []byte

func (d CreateResponseDecoder) IsInvalid() bool {
	return len(d) < 88 || binary.LittleEndian.Uint16(d[0:2]) != 89
}
func (d CreateResponseDecoder) OplockLevel() byte      { return d[2] }
func (d CreateResponseDecoder) CreateAction() uint32    { return binary.LittleEndian.Uint32(d[4:8]) }
func (d CreateResponseDecoder) CreationTime() uint64    { return binary.LittleEndian.Uint64(d[8:16]) }
func (d CreateResponseDecoder) LastWriteTime() uint64   { return binary.LittleEndian.Uint64(d[24:32]) }
func (d CreateResponseDecoder) ChangeTime() uint64      { return binary.LittleEndian.Uint64(d[32:40]) }
func (d CreateResponseDecoder) EndofFile() uint64       { return binary.LittleEndian.Uint64(d[48:56]) }
func (d CreateResponseDecoder) FileAttributes() uint32  { return binary.LittleEndian.Uint32(d[56:60]) }
func (d CreateResponseDecoder) FileId() [2]uint64 {
	return [2]uint64{binary.LittleEndian.Uint64(d[64:72]), binary.LittleEndian.Uint64(d[72:80])}
}
func (d CreateResponseDecoder) CreateContextsOffset() uint32 {
	return binary.LittleEndian.Uint32(d[80:84])
}
func (d CreateResponseDecoder) CreateContextsLength() uint32 {
	return binary.LittleEndian.Uint32(d[84:88])
}
func (d CreateResponseDecoder) CreateContexts() []byte {
	off := int(d.CreateContextsOffset()) - HeaderSize
	l := int(d.CreateContextsLength())
	if off < 0 || off+l > len(d) {
		return nil
	}
	return d[off : off+l]
}

// CreateContextResponseDecoder reads one chained response create
// context.
type CreateContextResponseDecoder []byte

func (d CreateContextResponseDecoder) IsInvalid() bool { return len(d) < 16 }
func (d CreateContextResponseDecoder) Next() int       { return int(binary.LittleEndian.Uint32(d[0:4])) }
func (d CreateContextResponseDecoder) NameOffset() uint16 {
	return binary.LittleEndian.Uint16(d[4:6])
}
func (d CreateContextResponseDecoder) NameLength() uint16 {
	return binary.LittleEndian.Uint16(d[6:8])
}
func (d CreateContextResponseDecoder) DataOffset() uint16 {
	return binary.LittleEndian.Uint16(d[10:12])
}
func (d CreateContextResponseDecoder) DataLength() uint32 {
	return binary.LittleEndian.Uint32(d[12:16])
}
func (d CreateContextResponseDecoder) Name() []byte {
	off := int(d.NameOffset())
	l := int(d.NameLength())
	if off+l > len(d) {
		return nil
	}
	return d[off : off+l]
}
func (d CreateContextResponseDecoder) Data() []byte {
	off := int(d.DataOffset())
	l := int(d.DataLength())
	if off+l > len(d) {
		return nil
	}
	return d[off : off+l]
}

// MxAcResponseDecoder reads an MxAc response (query status + maximal
// access mask).
type MxAcResponseDecoder []byte

func (d MxAcResponseDecoder) IsInvalid() bool     { return len(d) < 8 }
func (d MxAcResponseDecoder) QueryStatus() uint32 { return binary.LittleEndian.Uint32(d[0:4]) }
func (d MxAcResponseDecoder) MaximalAccess() uint32 {
	return binary.LittleEndian.Uint32(d[4:8])
}

// QFidResponseDecoder reads a QFid response (file id + volume id).
type QFidResponseDecoder []byte

func (d QFidResponseDecoder) IsInvalid() bool { return len(d) < 32 }
func (d QFidResponseDecoder) FileId() []byte  { return d[0:16] }

// CloseRequest is the SMB2_CLOSE request body.
type CloseRequest struct {
	hdr    Header
	Flags  uint16
	FileId [2]uint64
}

func (r *CloseRequest) Header() *Header { r.hdr.Command = SMB2_CLOSE; return &r.hdr }
func (r *CloseRequest) Size() int       { return HeaderSize + 24 }
func (r *CloseRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	body := buf[HeaderSize:]
	binary.LittleEndian.PutUint16(body[0:2], 24)
	binary.LittleEndian.PutUint16(body[2:4], r.Flags)
	binary.LittleEndian.PutUint32(body[4:8], 0)
	binary.LittleEndian.PutUint64(body[8:16], r.FileId[0])
	binary.LittleEndian.PutUint64(body[16:24], r.FileId[1])
}

// CloseResponseDecoder reads an SMB2_CLOSE response body.
type CloseResponseDecoder []byte

func (d CloseResponseDecoder) IsInvalid() bool {
	return len(d) < 60 || binary.LittleEndian.Uint16(d[0:2]) != 60
}
func (d CloseResponseDecoder) EndOfFile() uint64 { return binary.LittleEndian.Uint64(d[48:56]) }
