package smb2

import "encoding/binary"

// TransformHeaderSize is the fixed size of the SMB2_TRANSFORM_HEADER
// (MS-SMB2 2.2.41): protocol_id(4) + signature(16) + nonce(16) +
// original_message_size(4) + reserved(2) + flags(2) + session_id(8) = 52.
const TransformHeaderSize = 52

// TransformCodec is a read/write view over an encrypted frame.
type TransformCodec []byte

func (t TransformCodec) IsInvalid() bool {
	return len(t) < TransformHeaderSize || string(t[0:4]) != ProtocolEncrypted
}

func (t TransformCodec) SetProtocolId() { copy(t[0:4], ProtocolEncrypted) }

// Signature is the 16-byte AEAD tag slot.
func (t TransformCodec) Signature() []byte     { return t[4:20] }
func (t TransformCodec) SetSignature(s []byte) { copy(t[4:20], s) }

// Nonce is 16 bytes wide on the wire; only the low 11 (CCM) or 12 (GCM)
// bytes are meaningful, the rest must be zero.
func (t TransformCodec) Nonce() []byte     { return t[20:36] }
func (t TransformCodec) SetNonce(n []byte) { copy(t[20:36], n) }

func (t TransformCodec) OriginalMessageSize() uint32 {
	return binary.LittleEndian.Uint32(t[36:40])
}
func (t TransformCodec) SetOriginalMessageSize(v uint32) {
	binary.LittleEndian.PutUint32(t[36:40], v)
}

func (t TransformCodec) Flags() uint16       { return binary.LittleEndian.Uint16(t[42:44]) }
func (t TransformCodec) SetFlags(f uint16)   { binary.LittleEndian.PutUint16(t[42:44], f) }
func (t TransformCodec) SessionId() uint64   { return binary.LittleEndian.Uint64(t[44:52]) }
func (t TransformCodec) SetSessionId(id uint64) {
	binary.LittleEndian.PutUint64(t[44:52], id)
}

// EncryptedData returns the ciphertext following the transform header.
func (t TransformCodec) EncryptedData() []byte { return t[TransformHeaderSize:] }

// AssociatedData returns the additional authenticated data for the AEAD
// call: the transform header with the signature field zeroed, per
// MS-SMB2 3.1.4.3.
func (t TransformCodec) AssociatedData() []byte {
	ad := make([]byte, TransformHeaderSize)
	copy(ad, t[:TransformHeaderSize])
	for i := 4; i < 20; i++ {
		ad[i] = 0
	}
	return ad
}
