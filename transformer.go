package smb3

import (
	"bytes"
	"crypto/rand"
	"sync"

	"github.com/smb3client/smb3/internal/erref"
	"github.com/smb3client/smb3/internal/smb2"
)

// MessageForm records what was actually observed on the wire for an
// incoming message (spec.md §3 "IncomingMessage"), used by §8's
// signed-or-encrypted invariant checks.
type MessageForm struct {
	Compressed bool
	Encrypted  bool
	Signed     bool
}

// OutgoingMessage is the descriptor the Worker accepts for sending
// (spec.md §3). Sign/Encrypt/Compress are resolved by the caller (Tree,
// Session) before the message reaches the Transformer.
type OutgoingMessage struct {
	Request         smb2.Packet
	AdditionalData  []byte
	SessionId       *uint64
	Sign            bool
	Encrypt         bool
	Compress        bool
	CreditCharge    uint16
	CreditRequest   uint16
}

// IncomingMessage is the structured response handed back up through the
// Worker once the Transformer's inbound pipeline has run.
type IncomingMessage struct {
	Raw  []byte // decrypted/decompressed plain-header frame
	Form MessageForm
}

// transformer is the single per-connection component implementing
// spec.md §4.3's outgoing sign/compress/encrypt and incoming
// decrypt/decompress/verify pipelines. It holds the session registry
// Worker.session_started/session_ended populate.
type transformer struct {
	mu       sync.RWMutex
	sessions map[uint64]*cryptoContext
	compress *compressor
}

func newTransformer() *transformer {
	return &transformer{sessions: make(map[uint64]*cryptoContext)}
}

// sessionStarted registers cc under sessionId so incoming frames
// carrying that session id can be verified/decrypted (spec.md §4.2's
// Worker.session_started).
func (t *transformer) sessionStarted(sessionId uint64, cc *cryptoContext) {
	t.mu.Lock()
	t.sessions[sessionId] = cc
	t.mu.Unlock()
}

func (t *transformer) sessionEnded(sessionId uint64) {
	t.mu.Lock()
	delete(t.sessions, sessionId)
	t.mu.Unlock()
}

func (t *transformer) lookup(sessionId uint64) (*cryptoContext, bool) {
	t.mu.RLock()
	cc, ok := t.sessions[sessionId]
	t.mu.RUnlock()
	return cc, ok
}

func (t *transformer) setCompression(algorithms []uint16) {
	t.compress = newCompressor(algorithms)
}

// encodeOutgoing runs the full outgoing pipeline: serialize, sign XOR
// encrypt, compress (only on the plaintext path, before encryption, per
// MS-SMB2 3.1.4.4's ordering — a transform-then-compress message is
// invalid on the wire, so compression is applied to the plain iovec
// first and only an unencrypted result is ever compressed here).
func (t *transformer) encodeOutgoing(msg *OutgoingMessage) ([]byte, error) {
	if msg.SessionId != nil {
		msg.Request.Header().SessionId = *msg.SessionId
	}
	pkt := make([]byte, msg.Request.Size())
	msg.Request.Encode(pkt)

	if len(msg.AdditionalData) > 0 {
		pkt = append(pkt, msg.AdditionalData...)
	}

	if msg.Sign && msg.Encrypt {
		return nil, &erref.ProtocolViolationError{Reason: "sign and encrypt requested on the same message"}
	}

	if msg.Sign {
		if msg.SessionId == nil {
			return nil, &erref.InternalError{Msg: "sign requested without a session id"}
		}
		cc, ok := t.lookup(*msg.SessionId)
		if !ok || cc.signer == nil {
			return nil, &erref.TransformError{Dir: erref.Outgoing, Phase: erref.PhaseSign, SessionId: msg.SessionId, Reason: "no signer for session"}
		}
		pkt = signPacket(cc, pkt)
	}

	if msg.Compress && !msg.Encrypt && t.compress != nil {
		if compressed, ok, err := t.compress.compress(pkt); err != nil {
			return nil, err
		} else if ok {
			pkt = compressed
		}
	}

	if msg.Encrypt {
		if msg.SessionId == nil {
			return nil, &erref.InternalError{Msg: "encrypt requested without a session id"}
		}
		cc, ok := t.lookup(*msg.SessionId)
		if !ok || cc.encrypter == nil {
			return nil, &erref.TransformError{Dir: erref.Outgoing, Phase: erref.PhaseEncrypt, SessionId: msg.SessionId, Reason: "no encrypter for session"}
		}
		out, err := encryptPacket(cc, *msg.SessionId, pkt)
		if err != nil {
			return nil, &erref.TransformError{Dir: erref.Outgoing, Phase: erref.PhaseEncrypt, SessionId: msg.SessionId, Reason: err.Error()}
		}
		pkt = out
	}

	return pkt, nil
}

func signPacket(cc *cryptoContext, pkt []byte) []byte {
	p := smb2.PacketCodec(pkt)
	p.SetFlags(p.Flags() | smb2.SMB2_FLAGS_SIGNED)
	p.ZeroSignature()

	cc.signer.Reset()
	cc.signer.Write(pkt)
	sig := cc.signer.Sum(nil)
	if len(sig) > 16 {
		sig = sig[:16]
	}
	p.SetSignature(sig)
	return pkt
}

// encryptPacket builds an SMB2_TRANSFORM_HEADER frame. Per MS-SMB2
// 2.2.41, the AEAD authentication tag lives in the header's 16-byte
// Signature field; EncryptedData carries only the ciphertext, the same
// length as the plaintext it replaces.
func encryptPacket(cc *cryptoContext, sessionId uint64, pkt []byte) ([]byte, error) {
	nonce := make([]byte, cc.encrypter.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, smb2.TransformHeaderSize+len(pkt))
	t := smb2.TransformCodec(out)
	t.SetProtocolId()
	t.SetNonce(nonce)
	t.SetOriginalMessageSize(uint32(len(pkt)))
	t.SetFlags(smb2.TransformFlagEncrypted)
	t.SetSessionId(sessionId)

	sealed := cc.encrypter.Seal(nil, nonce, pkt, t.AssociatedData())
	ciphertext, tag := sealed[:len(pkt)], sealed[len(pkt):]
	copy(out[smb2.TransformHeaderSize:], ciphertext)
	t.SetSignature(tag)
	return out, nil
}

// decodeIncoming runs the full incoming pipeline given one raw frame as
// delivered by the Worker's reader (already split off the next-chained
// message, if any). It reports the observed MessageForm alongside the
// decoded plain-header bytes.
func (t *transformer) decodeIncoming(raw []byte) ([]byte, MessageForm, error) {
	var form MessageForm

	pkt := raw
	if tc := smb2.TransformCodec(raw); !tc.IsInvalid() {
		if tc.Flags() != smb2.TransformFlagEncrypted {
			return nil, form, &erref.InvalidResponseError{Msg: "encrypted flag not set on transform header"}
		}

		cc, ok := t.lookup(tc.SessionId())
		if !ok || cc.decrypter == nil {
			return nil, form, &erref.TransformError{Dir: erref.Incoming, Phase: erref.PhaseDecrypt, SessionId: ptrUint64(tc.SessionId()), Reason: "no decrypter for session"}
		}

		sealed := append(append([]byte{}, tc.EncryptedData()...), tc.Signature()...)
		plain, err := cc.decrypter.Open(sealed[:0], tc.Nonce()[:cc.decrypter.NonceSize()], sealed, tc.AssociatedData())
		if err != nil {
			return nil, form, &erref.TransformError{Dir: erref.Incoming, Phase: erref.PhaseDecrypt, SessionId: ptrUint64(tc.SessionId()), Reason: "AEAD tag mismatch"}
		}
		pkt = plain
		form.Encrypted = true
	}

	if cc := smb2.CompressedCodec(pkt); !cc.IsInvalid() {
		plain, err := decompress(cc)
		if err != nil {
			return nil, form, err
		}
		pkt = plain
		form.Compressed = true
	}

	p := smb2.PacketCodec(pkt)
	if p.IsInvalid() {
		return nil, form, &erref.InvalidResponseError{Msg: "broken packet header format"}
	}

	if p.Flags()&smb2.SMB2_FLAGS_SIGNED != 0 && !form.Encrypted {
		msgId := p.MessageId()
		status := erref.NtStatus(p.Status())
		if msgId != smb2.CancelMessageId && status != erref.StatusPending {
			cc, ok := t.lookup(p.SessionId())
			if !ok || cc.verifier == nil {
				return nil, form, &erref.InvalidResponseError{Msg: "unknown session id returned"}
			}
			if !verifyPacket(cc, pkt) {
				return nil, form, &erref.InvalidResponseError{Msg: "unverified packet returned"}
			}
			form.Signed = true
		}
	}

	return pkt, form, nil
}

func verifyPacket(cc *cryptoContext, pkt []byte) bool {
	p := smb2.PacketCodec(pkt)
	want := append([]byte{}, p.Signature()...)
	p.ZeroSignature()

	cc.verifier.Reset()
	cc.verifier.Write(pkt)
	got := cc.verifier.Sum(nil)
	if len(got) > 16 {
		got = got[:16]
	}
	p.SetSignature(got)

	return bytes.Equal(want, got)
}

func ptrUint64(v uint64) *uint64 { return &v }
