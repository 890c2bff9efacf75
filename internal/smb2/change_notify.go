package smb2

import "encoding/binary"

// ChangeNotifyRequest is the SMB2_CHANGE_NOTIFY request body. The
// response to this request is a long-running, asynchronously-completed
// one (spec.md §4.6 "allow_async").
type ChangeNotifyRequest struct {
	hdr                Header
	Flags              uint16
	OutputBufferLength uint32
	FileId             [2]uint64
	CompletionFilter   uint32
}

func (r *ChangeNotifyRequest) Header() *Header {
	r.hdr.Command = SMB2_CHANGE_NOTIFY
	return &r.hdr
}
func (r *ChangeNotifyRequest) Size() int { return HeaderSize + 32 }
func (r *ChangeNotifyRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	body := buf[HeaderSize:]
	binary.LittleEndian.PutUint16(body[0:2], 32)
	binary.LittleEndian.PutUint16(body[2:4], r.Flags)
	binary.LittleEndian.PutUint32(body[4:8], r.OutputBufferLength)
	binary.LittleEndian.PutUint64(body[8:16], r.FileId[0])
	binary.LittleEndian.PutUint64(body[16:24], r.FileId[1])
	binary.LittleEndian.PutUint32(body[24:28], r.CompletionFilter)
	binary.LittleEndian.PutUint32(body[28:32], 0) // reserved
}

// ChangeNotifyResponseDecoder reads an SMB2_CHANGE_NOTIFY response.
type ChangeNotifyResponseDecoder []byte

func (d ChangeNotifyResponseDecoder) IsInvalid() bool {
	return len(d) < 8 || binary.LittleEndian.Uint16(d[0:2]) != 9
}
func (d ChangeNotifyResponseDecoder) OutputBufferOffset() uint16 {
	return binary.LittleEndian.Uint16(d[2:4])
}
func (d ChangeNotifyResponseDecoder) OutputBufferLength() uint32 {
	return binary.LittleEndian.Uint32(d[4:8])
}
func (d ChangeNotifyResponseDecoder) OutputBuffer() []byte {
	off := int(d.OutputBufferOffset()) - HeaderSize
	l := int(d.OutputBufferLength())
	if off < 0 || off+l > len(d) {
		return nil
	}
	return d[off : off+l]
}

// FileNotifyInformationDecoder reads one MS-FSCC 2.4.42 change entry.
type FileNotifyInformationDecoder []byte

func (d FileNotifyInformationDecoder) NextEntryOffset() uint32 {
	return binary.LittleEndian.Uint32(d[0:4])
}
func (d FileNotifyInformationDecoder) Action() uint32 { return binary.LittleEndian.Uint32(d[4:8]) }
func (d FileNotifyInformationDecoder) FileNameLength() uint32 {
	return binary.LittleEndian.Uint32(d[8:12])
}
func (d FileNotifyInformationDecoder) FileNameUTF16() []byte {
	l := int(d.FileNameLength())
	if 12+l > len(d) {
		return nil
	}
	return d[12 : 12+l]
}
