package smb2

import "encoding/binary"

// ErrorResponseDecoder reads an SMB2_ERROR response body (MS-SMB2
// 2.2.2).
type ErrorResponseDecoder []byte

func (d ErrorResponseDecoder) IsInvalid() bool {
	return len(d) < 8 || binary.LittleEndian.Uint16(d[0:2]) != 9
}
func (d ErrorResponseDecoder) ErrorContextCount() byte { return d[2] }
func (d ErrorResponseDecoder) ByteCount() uint32       { return binary.LittleEndian.Uint32(d[4:8]) }
func (d ErrorResponseDecoder) ErrorData() []byte {
	if int(d.ByteCount()) == 0 {
		return nil
	}
	return d[8:]
}

// ErrorContextResponseDecoder reads one chained SMB2_ERROR_CONTEXT_RESPONSE
// record (MS-SMB2 2.2.2.1, used by SMB 3.1.1 error replies).
type ErrorContextResponseDecoder []byte

func (d ErrorContextResponseDecoder) IsInvalid() bool { return len(d) < 8 }
func (d ErrorContextResponseDecoder) DataLength() uint32 {
	return binary.LittleEndian.Uint32(d[0:4])
}
func (d ErrorContextResponseDecoder) ErrorId() uint32 { return binary.LittleEndian.Uint32(d[4:8]) }
func (d ErrorContextResponseDecoder) ErrorContextData() []byte {
	l := int(d.DataLength())
	if 8+l > len(d) {
		return nil
	}
	return d[8 : 8+l]
}
func (d ErrorContextResponseDecoder) Next() int {
	adv := 8 + int(d.DataLength())
	if pad := adv % 8; pad != 0 {
		adv += 8 - pad
	}
	return adv
}
