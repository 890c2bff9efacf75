package smb2

import "encoding/binary"

// QueryDirectoryRequest is the SMB2_QUERY_DIRECTORY request body. Exactly
// one may be in flight per handle at a time (spec.md §4.6).
type QueryDirectoryRequest struct {
	hdr                  Header
	FileInformationClass byte
	Flags                byte
	FileIndex            uint32
	FileId               [2]uint64
	Pattern              string
	OutputBufferLength    uint32
}

func (r *QueryDirectoryRequest) Header() *Header {
	r.hdr.Command = SMB2_QUERY_DIRECTORY
	return &r.hdr
}

func (r *QueryDirectoryRequest) Size() int {
	return HeaderSize + 32 + encodedUTF16Len(r.Pattern)
}

func (r *QueryDirectoryRequest) Encode(buf []byte) {
	EncodeHeader(&r.hdr, buf)
	body := buf[HeaderSize:]
	binary.LittleEndian.PutUint16(body[0:2], 33)
	body[2] = r.FileInformationClass
	body[3] = r.Flags
	binary.LittleEndian.PutUint32(body[4:8], r.FileIndex)
	binary.LittleEndian.PutUint64(body[8:16], r.FileId[0])
	binary.LittleEndian.PutUint64(body[16:24], r.FileId[1])
	patLen := encodedUTF16Len(r.Pattern)
	binary.LittleEndian.PutUint16(body[24:26], uint16(HeaderSize+32))
	binary.LittleEndian.PutUint16(body[26:28], uint16(patLen))
	binary.LittleEndian.PutUint32(body[28:32], r.OutputBufferLength)
	putUTF16(body[32:], r.Pattern)
}

// QueryDirectoryResponseDecoder reads an SMB2_QUERY_DIRECTORY response.
type QueryDirectoryResponseDecoder []byte

func (d QueryDirectoryResponseDecoder) IsInvalid() bool {
	return len(d) < 8 || binary.LittleEndian.Uint16(d[0:2]) != 9
}
func (d QueryDirectoryResponseDecoder) OutputBufferOffset() uint16 {
	return binary.LittleEndian.Uint16(d[2:4])
}
func (d QueryDirectoryResponseDecoder) OutputBufferLength() uint32 {
	return binary.LittleEndian.Uint32(d[4:8])
}
func (d QueryDirectoryResponseDecoder) OutputBuffer() []byte {
	off := int(d.OutputBufferOffset()) - HeaderSize
	l := int(d.OutputBufferLength())
	if off < 0 || off+l > len(d) {
		return nil
	}
	return d[off : off+l]
}

// FileIdBothDirectoryInformationDecoder reads one entry of a
// FileIdBothDirectoryInformation listing (MS-FSCC 2.4.17).
type FileIdBothDirectoryInformationDecoder []byte

func (d FileIdBothDirectoryInformationDecoder) NextEntryOffset() uint32 {
	return binary.LittleEndian.Uint32(d[0:4])
}
func (d FileIdBothDirectoryInformationDecoder) CreationTime() uint64 {
	return binary.LittleEndian.Uint64(d[8:16])
}
func (d FileIdBothDirectoryInformationDecoder) LastWriteTime() uint64 {
	return binary.LittleEndian.Uint64(d[24:32])
}
func (d FileIdBothDirectoryInformationDecoder) EndOfFile() uint64 {
	return binary.LittleEndian.Uint64(d[40:48])
}
func (d FileIdBothDirectoryInformationDecoder) FileAttributes() uint32 {
	return binary.LittleEndian.Uint32(d[56:60])
}
func (d FileIdBothDirectoryInformationDecoder) FileNameLength() uint32 {
	return binary.LittleEndian.Uint32(d[60:64])
}
func (d FileIdBothDirectoryInformationDecoder) FileId() uint64 {
	return binary.LittleEndian.Uint64(d[96:104])
}
func (d FileIdBothDirectoryInformationDecoder) FileNameUTF16() []byte {
	l := int(d.FileNameLength())
	if 104+l > len(d) {
		return nil
	}
	return d[104 : 104+l]
}
