package smb3

import (
	"bytes"
	"testing"

	"github.com/smb3client/smb3/internal/smb2"
)

// peerCryptoContext derives a cryptoContext for sign/verify round trips
// (signer and verifier always agree, being HMAC/CMAC over the same key)
// and, for the encrypt/decrypt paths, aliases decrypter to encrypter so
// a single transformer's own output can be fed back through its own
// decodeIncoming — standing in for "the other end of the wire, which
// would derive the matching key from the same session".
func peerCryptoContext(t *testing.T, behavior dialectBehavior, cipherId uint16) *cryptoContext {
	t.Helper()
	sessionKey := bytes.Repeat([]byte{0x71}, 16)
	preauth := bytes.Repeat([]byte{0x72}, 64)

	cc, err := deriveCryptoContext(behavior, cipherId, sessionKey, preauth)
	if err != nil {
		t.Fatalf("deriveCryptoContext: %v", err)
	}
	if cc.decrypter != nil {
		cc.decrypter = cc.encrypter
	}
	return cc
}

func TestTransformerSignedRoundTrip(t *testing.T) {
	tr := newTransformer()
	cc := peerCryptoContext(t, dialect2x{rev: smb2.SMB210}, 0)
	tr.sessionStarted(1, cc)

	sessID := uint64(1)
	req := &smb2.LogoffRequest{}
	msg := &OutgoingMessage{Request: req, SessionId: &sessID, Sign: true}

	pkt, err := tr.encodeOutgoing(msg)
	if err != nil {
		t.Fatalf("encodeOutgoing: %v", err)
	}

	plain, form, err := tr.decodeIncoming(pkt)
	if err != nil {
		t.Fatalf("decodeIncoming: %v", err)
	}
	if !form.Signed || form.Encrypted || form.Compressed {
		t.Fatalf("unexpected MessageForm: %+v", form)
	}
	if len(plain) == 0 {
		t.Fatalf("decodeIncoming returned an empty plaintext")
	}
}

func TestTransformerSignedRoundTripRejectsTampering(t *testing.T) {
	tr := newTransformer()
	cc := peerCryptoContext(t, dialect2x{rev: smb2.SMB210}, 0)
	tr.sessionStarted(1, cc)

	sessID := uint64(1)
	req := &smb2.LogoffRequest{}
	msg := &OutgoingMessage{Request: req, SessionId: &sessID, Sign: true}

	pkt, err := tr.encodeOutgoing(msg)
	if err != nil {
		t.Fatalf("encodeOutgoing: %v", err)
	}
	pkt[len(pkt)-1] ^= 0xFF

	if _, _, err := tr.decodeIncoming(pkt); err == nil {
		t.Fatalf("decodeIncoming accepted a tampered signed packet")
	}
}

func TestTransformerEncryptedRoundTrip(t *testing.T) {
	tr := newTransformer()
	cc := peerCryptoContext(t, dialect311{}, smb2.AES128GCM)
	tr.sessionStarted(7, cc)

	sessID := uint64(7)
	req := &smb2.LogoffRequest{}
	msg := &OutgoingMessage{Request: req, SessionId: &sessID, Encrypt: true}

	pkt, err := tr.encodeOutgoing(msg)
	if err != nil {
		t.Fatalf("encodeOutgoing: %v", err)
	}

	tc := smb2.TransformCodec(pkt)
	if tc.IsInvalid() {
		t.Fatalf("encrypted output is not a valid transform header")
	}

	plain, form, err := tr.decodeIncoming(pkt)
	if err != nil {
		t.Fatalf("decodeIncoming: %v", err)
	}
	if !form.Encrypted || form.Signed {
		t.Fatalf("unexpected MessageForm: %+v", form)
	}
	if len(plain) == 0 {
		t.Fatalf("decodeIncoming returned an empty plaintext")
	}
}

func TestTransformerRejectsSignAndEncryptTogether(t *testing.T) {
	tr := newTransformer()
	cc := peerCryptoContext(t, dialect311{}, smb2.AES128CCM)
	tr.sessionStarted(9, cc)

	sessID := uint64(9)
	req := &smb2.LogoffRequest{}
	msg := &OutgoingMessage{Request: req, SessionId: &sessID, Sign: true, Encrypt: true}

	if _, err := tr.encodeOutgoing(msg); err == nil {
		t.Fatalf("encodeOutgoing must reject a message asking for both sign and encrypt")
	}
}

func TestTransformerUnknownSessionFails(t *testing.T) {
	tr := newTransformer()

	sessID := uint64(123)
	req := &smb2.LogoffRequest{}
	msg := &OutgoingMessage{Request: req, SessionId: &sessID, Sign: true}

	if _, err := tr.encodeOutgoing(msg); err == nil {
		t.Fatalf("encodeOutgoing must fail signing for a session with no registered crypto context")
	}
}
