package smb3

import (
	"context"
	"crypto/rand"
	"crypto/sha512"

	"github.com/smb3client/smb3/internal/erref"
	"github.com/smb3client/smb3/internal/smb2"
)

// clientDialects lists the dialects this client offers, highest
// preference first, per spec.md §4.4's SmbNegotiate step.
var clientDialects = []uint16{smb2.SMB311, smb2.SMB302, smb2.SMB300, smb2.SMB210, smb2.SMB202}

// clientCapabilities is the global-capability set this client advertises
// in the negotiate request.
const clientCapabilities = smb2.SMB2_GLOBAL_CAP_DFS | smb2.SMB2_GLOBAL_CAP_LEASING |
	smb2.SMB2_GLOBAL_CAP_LARGE_MTU | smb2.SMB2_GLOBAL_CAP_MULTI_CHANNEL |
	smb2.SMB2_GLOBAL_CAP_PERSISTENT_HANDLES | smb2.SMB2_GLOBAL_CAP_DIRECTORY_LEASING |
	smb2.SMB2_GLOBAL_CAP_ENCRYPTION

// clientHashAlgorithms and clientCiphers list the preauth-integrity hash
// and cipher preferences carried in a 3.1.1 negotiate request, GCM and
// 256-bit keys first per spec.md §4.4.
var (
	clientHashAlgorithms = []uint16{smb2.SHA512}
	clientCiphers        = []uint16{smb2.AES256GCM, smb2.AES128GCM, smb2.AES256CCM, smb2.AES128CCM}
	clientSigningAlgos   = []uint16{smb2.SigningAesCmac, smb2.SigningHmacSha256}
)

var zeroGuid [16]byte

// ConnectionInfo is the read-only record Negotiator produces once
// negotiation completes (spec.md §3). It is shared by every session the
// connection carries.
type ConnectionInfo struct {
	ServerAddress   string
	Behavior        dialectBehavior
	Dialect         uint16
	ServerGuid      [16]byte
	ClientGuid      [16]byte
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32
	Capabilities    uint32
	RequireSigning  bool
	SigningAlgo     uint16
	Cipher          uint16
	Compression     []uint16
	Config          ClientConfig

	// PreauthIntegrityHashValue is the final pre-authentication hash
	// captured at the end of negotiation, before any session-setup
	// exchange has updated it further (spec.md §3 PreauthHashState).
	PreauthIntegrityHashValue [64]byte
	PreauthIntegrityHashId    uint16
}

// Negotiator drives the MultiProtocolProbe → SmbNegotiate state machine
// of spec.md §4.4 over a Worker's send/receive pair.
type Negotiator struct {
	Config ClientConfig
}

func (n *Negotiator) clientGuid() ([16]byte, error) {
	if n.Config.ClientGuid != zeroGuid {
		return n.Config.ClientGuid, nil
	}
	var g [16]byte
	if _, err := rand.Read(g[:]); err != nil {
		return g, &erref.InternalError{Msg: err.Error()}
	}
	return g, nil
}

// buildRequest constructs the SMB2_NEGOTIATE request body for the current
// SpecifiedDialect (or the full clientDialects list when unset).
func (n *Negotiator) buildRequest() (*smb2.NegotiateRequest, error) {
	req := new(smb2.NegotiateRequest)

	if n.Config.RequireMessageSigning {
		req.SecurityMode = smb2.SMB2_NEGOTIATE_SIGNING_REQUIRED
	} else {
		req.SecurityMode = smb2.SMB2_NEGOTIATE_SIGNING_ENABLED
	}
	req.Capabilities = clientCapabilities

	guid, err := n.clientGuid()
	if err != nil {
		return nil, err
	}
	req.ClientGuid = guid

	dialects := clientDialects
	if n.Config.SpecifiedDialect != smb2.UnknownSMB {
		dialects = []uint16{n.Config.SpecifiedDialect}
	}
	req.Dialects = dialects

	needs311Contexts := n.Config.SpecifiedDialect == smb2.UnknownSMB || n.Config.SpecifiedDialect == smb2.SMB311
	if needs311Contexts {
		salt := make([]byte, 32)
		if _, err := rand.Read(salt); err != nil {
			return nil, &erref.InternalError{Msg: err.Error()}
		}
		req.Contexts = append(req.Contexts,
			&smb2.HashContext{HashAlgorithms: clientHashAlgorithms, HashSalt: salt},
			&smb2.CipherContext{Ciphers: clientCiphers},
			&smb2.SigningContext{SigningAlgorithms: clientSigningAlgos},
		)
	}

	return req, nil
}

// negotiate runs the multi-protocol probe (implicit: the caller already
// knows to speak SMB2 directly, as every server in this corpus does) and
// the SMB2 negotiate exchange against w, returning the consolidated
// ConnectionInfo.
func (n *Negotiator) negotiate(ctx context.Context, w *Worker) (*ConnectionInfo, error) {
retry:
	req, err := n.buildRequest()
	if err != nil {
		return nil, err
	}

	outgoing := &OutgoingMessage{Request: req, CreditCharge: 1}

	msgId, rawSent, err := w.send(ctx, outgoing)
	if err != nil {
		return nil, err
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_NEGOTIATE})
	if err != nil {
		return nil, err
	}

	body, err := accept(smb2.SMB2_NEGOTIATE, in.Raw)
	if err != nil {
		return nil, err
	}

	r := smb2.NegotiateResponseDecoder(body)
	if r.IsInvalid() {
		return nil, &erref.InvalidResponseError{Msg: "broken negotiate response format"}
	}

	if r.DialectRevision() == smb2.SMB2Wild {
		n.Config.SpecifiedDialect = smb2.SMB210
		goto retry
	}

	if n.Config.SpecifiedDialect != smb2.UnknownSMB && n.Config.SpecifiedDialect != r.DialectRevision() {
		return nil, &erref.InvalidResponseError{Msg: "unexpected dialect returned"}
	}

	behavior, err := dialectBehaviorFor(r.DialectRevision())
	if err != nil {
		return nil, err
	}

	ns := &NegotiateState{
		Dialect:      r.DialectRevision(),
		SecurityMode: r.SecurityMode(),
		Capabilities: clientCapabilities & r.Capabilities(),
	}
	copy(ns.ServerGuid[:], r.ServerGuid())
	ns.MaxTransactSize = r.MaxTransactSize()
	ns.MaxReadSize = r.MaxReadSize()
	ns.MaxWriteSize = r.MaxWriteSize()

	if behavior.preauthHashSupported() {
		h := sha512.New()
		h.Write(rawSent)
		h.Sum(ns.PreauthIntegrityHashValue[:0])
		h.Reset()
		h.Write(ns.PreauthIntegrityHashValue[:])
		h.Write(in.Raw)
		h.Sum(ns.PreauthIntegrityHashValue[:0])
	}

	if err := behavior.processNegotiateResponse(r, ns, n.Config); err != nil {
		return nil, err
	}

	ci := &ConnectionInfo{
		Behavior:        behavior,
		Dialect:         ns.Dialect,
		ServerGuid:      ns.ServerGuid,
		ClientGuid:      req.ClientGuid,
		MaxTransactSize: ns.MaxTransactSize,
		MaxReadSize:     ns.MaxReadSize,
		MaxWriteSize:    ns.MaxWriteSize,
		Capabilities:    ns.Capabilities,
		RequireSigning:  n.Config.RequireMessageSigning || r.SecurityMode()&smb2.SMB2_NEGOTIATE_SIGNING_REQUIRED != 0,
		SigningAlgo:     ns.SigningAlgo,
		Cipher:          ns.EncryptionCipher,
		Compression:     ns.CompressionAlgorithms,
		Config:          n.Config,

		PreauthIntegrityHashValue: ns.PreauthIntegrityHashValue,
		PreauthIntegrityHashId:    ns.PreauthIntegrityHashId,
	}

	return ci, nil
}
