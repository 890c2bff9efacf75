package smb2

import "encoding/binary"

// ReadRequest is the SMB2_READ request body. Per spec.md §9 / DESIGN.md,
// the wire structure size 0x31 demands one byte of padding buffer even
// though no read channel blob is carried here; that trailing byte is
// preserved deliberately.
type ReadRequest struct {
	hdr           Header
	Padding       byte
	Flags         byte
	Length        uint32
	Offset        uint64
	FileId        [2]uint64
	MinimumCount  uint32
	Channel       uint32
	RemainingBytes uint32
}

func (r *ReadRequest) Header() *Header { r.hdr.Command = SMB2_READ; return &r.hdr }
func (r *ReadRequest) Size() int       { return HeaderSize + 48 + 1 } // +1 placeholder buffer byte

func (r *ReadRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	body := buf[HeaderSize:]
	binary.LittleEndian.PutUint16(body[0:2], 49)
	body[2] = r.Padding
	body[3] = r.Flags
	binary.LittleEndian.PutUint32(body[4:8], r.Length)
	binary.LittleEndian.PutUint64(body[8:16], r.Offset)
	binary.LittleEndian.PutUint64(body[16:24], r.FileId[0])
	binary.LittleEndian.PutUint64(body[24:32], r.FileId[1])
	binary.LittleEndian.PutUint32(body[32:36], r.MinimumCount)
	binary.LittleEndian.PutUint32(body[36:40], r.Channel)
	binary.LittleEndian.PutUint32(body[40:44], r.RemainingBytes)
	binary.LittleEndian.PutUint16(body[44:46], 0) // ReadChannelInfoOffset
	binary.LittleEndian.PutUint16(body[46:48], 0) // ReadChannelInfoLength
	body[48] = 0                                  // the load-bearing placeholder byte
}

// ReadResponseDecoder reads an SMB2_READ response body.
type ReadResponseDecoder []byte

func (d ReadResponseDecoder) IsInvalid() bool {
	return len(d) < 16 || binary.LittleEndian.Uint16(d[0:2]) != 17
}
func (d ReadResponseDecoder) DataOffset() byte  { return d[2] }
func (d ReadResponseDecoder) DataLength() uint32 { return binary.LittleEndian.Uint32(d[4:8]) }
func (d ReadResponseDecoder) Data() []byte {
	off := int(d.DataOffset()) - HeaderSize
	l := int(d.DataLength())
	if off < 0 || off+l > len(d) {
		return nil
	}
	return d[off : off+l]
}
