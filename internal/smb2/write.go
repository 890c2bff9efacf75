package smb2

import "encoding/binary"

// WriteRequest is the SMB2_WRITE request body. Per spec.md §4.6, writes
// are zero-copy: the wire bytes travel separately as additional data and
// are never part of this struct's own Encode.
type WriteRequest struct {
	hdr     Header
	Offset  uint64
	FileId  [2]uint64
	Channel uint32
	Flags   uint32
	Length  uint32 // byte count of the out-of-band payload
}

func (r *WriteRequest) Header() *Header { r.hdr.Command = SMB2_WRITE; return &r.hdr }
func (r *WriteRequest) Size() int       { return HeaderSize + 48 }

func (r *WriteRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	body := buf[HeaderSize:]
	binary.LittleEndian.PutUint16(body[0:2], 49)
	binary.LittleEndian.PutUint16(body[2:4], uint16(HeaderSize+48)) // DataOffset: payload follows immediately
	binary.LittleEndian.PutUint32(body[4:8], r.Length)
	binary.LittleEndian.PutUint64(body[8:16], r.Offset)
	binary.LittleEndian.PutUint64(body[16:24], r.FileId[0])
	binary.LittleEndian.PutUint64(body[24:32], r.FileId[1])
	binary.LittleEndian.PutUint32(body[32:36], r.Channel)
	binary.LittleEndian.PutUint32(body[36:40], 0) // RemainingBytes
	binary.LittleEndian.PutUint16(body[40:42], 0) // WriteChannelInfoOffset
	binary.LittleEndian.PutUint16(body[42:44], 0) // WriteChannelInfoLength
	binary.LittleEndian.PutUint32(body[44:48], r.Flags)
}

// WriteResponseDecoder reads an SMB2_WRITE response body.
type WriteResponseDecoder []byte

func (d WriteResponseDecoder) IsInvalid() bool {
	return len(d) < 16 || binary.LittleEndian.Uint16(d[0:2]) != 17
}
func (d WriteResponseDecoder) Count() uint32 { return binary.LittleEndian.Uint32(d[4:8]) }
