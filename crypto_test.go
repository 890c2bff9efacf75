package smb3

import (
	"bytes"
	"testing"

	"github.com/smb3client/smb3/internal/smb2"
)

func TestDeriveCryptoContextSigningOnly(t *testing.T) {
	sessionKey := bytes.Repeat([]byte{0x11}, 16)

	cc, err := deriveCryptoContext(dialect2x{rev: smb2.SMB210}, 0, sessionKey, nil)
	if err != nil {
		t.Fatalf("deriveCryptoContext: %v", err)
	}
	if cc.signer == nil || cc.verifier == nil {
		t.Fatalf("dialect 2.10 session must carry a signer/verifier")
	}
	if cc.encrypter != nil || cc.decrypter != nil {
		t.Fatalf("dialect 2.10 session must not carry an encrypter/decrypter")
	}
}

func TestDeriveCryptoContextKeyLengths(t *testing.T) {
	sessionKey := bytes.Repeat([]byte{0x22}, 16)
	preauth := bytes.Repeat([]byte{0x33}, 64)

	cases := []struct {
		name     string
		cipherId uint16
	}{
		{"aes128ccm", smb2.AES128CCM},
		{"aes256ccm", smb2.AES256CCM},
		{"aes128gcm", smb2.AES128GCM},
		{"aes256gcm", smb2.AES256GCM},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cc, err := deriveCryptoContext(dialect311{}, c.cipherId, sessionKey, preauth)
			if err != nil {
				t.Fatalf("deriveCryptoContext: %v", err)
			}
			if cc.encrypter == nil || cc.decrypter == nil {
				t.Fatalf("3.1.1 session must carry an encrypter/decrypter")
			}
			if got := cc.encrypter.Overhead(); got != 16 {
				t.Fatalf("unexpected AEAD tag size: got %d want 16", got)
			}
			// aes.NewCipher rejects anything but a 16/24/32-byte key, so
			// reaching here at all confirms cipherKeyLen picked a size
			// AES accepted for this cipherId.
		})
	}
}

func TestKDFDeterministic(t *testing.T) {
	ki := []byte("some session key material")
	label := []byte("SMBSigningKey\x00")
	ctx := bytes.Repeat([]byte{0xAB}, 64)

	a := kdf(ki, label, ctx, 32)
	b := kdf(ki, label, ctx, 32)
	if !bytes.Equal(a, b) {
		t.Fatalf("kdf must be deterministic for identical inputs")
	}
	if len(a) != 32 {
		t.Fatalf("kdf output length = %d, want 32", len(a))
	}

	c := kdf(ki, label, ctx, 16)
	if bytes.Equal(a[:16], c) {
		t.Fatalf("truncating a 32-byte kdf output must not equal a fresh 16-byte derivation (different length-in-bits block)")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	sessionKey := bytes.Repeat([]byte{0x44}, 16)
	cc, err := deriveCryptoContext(dialect2x{rev: smb2.SMB210}, 0, sessionKey, nil)
	if err != nil {
		t.Fatalf("deriveCryptoContext: %v", err)
	}

	req := &smb2.LogoffRequest{}
	req.Header().MessageId = 7
	req.Header().SessionId = 42
	pkt := make([]byte, req.Size())
	req.Encode(pkt)

	signed := signPacket(cc, pkt)
	if !verifyPacket(cc, signed) {
		t.Fatalf("verifyPacket rejected a packet signPacket just produced")
	}

	signed[10] ^= 0xFF
	if verifyPacket(cc, signed) {
		t.Fatalf("verifyPacket accepted a tampered packet")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sessionKey := bytes.Repeat([]byte{0x55}, 16)
	preauth := bytes.Repeat([]byte{0x66}, 64)

	cc, err := deriveCryptoContext(dialect311{}, smb2.AES128GCM, sessionKey, preauth)
	if err != nil {
		t.Fatalf("deriveCryptoContext: %v", err)
	}
	// Encrypt and decrypt from the same perspective: borrow the
	// encrypter's key for the decrypter too, so this test exercises the
	// transform-header framing (tag placement, associated data) without
	// needing a second, server-side cryptoContext derivation.
	cc.decrypter = cc.encrypter

	req := &smb2.LogoffRequest{}
	req.Header().MessageId = 3
	req.Header().SessionId = 99
	pkt := make([]byte, req.Size())
	req.Encode(pkt)

	out, err := encryptPacket(cc, 99, pkt)
	if err != nil {
		t.Fatalf("encryptPacket: %v", err)
	}

	tc := smb2.TransformCodec(out)
	if tc.IsInvalid() {
		t.Fatalf("encryptPacket produced an invalid transform header")
	}
	if tc.SessionId() != 99 {
		t.Fatalf("SessionId = %d, want 99", tc.SessionId())
	}
	if len(tc.EncryptedData()) != len(pkt) {
		t.Fatalf("EncryptedData length = %d, want %d (ciphertext must not carry the AEAD tag)", len(tc.EncryptedData()), len(pkt))
	}

	sealed := append(append([]byte{}, tc.EncryptedData()...), tc.Signature()...)
	plain, err := cc.decrypter.Open(sealed[:0], tc.Nonce()[:cc.decrypter.NonceSize()], sealed, tc.AssociatedData())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(plain, pkt) {
		t.Fatalf("decrypted plaintext does not match the original packet")
	}
}
