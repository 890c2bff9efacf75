package smb3

import (
	"github.com/smb3client/smb3/internal/erref"
	"github.com/smb3client/smb3/internal/smb2"
)

// dialectBehavior encapsulates the per-dialect differences spec.md §4.4
// enumerates, so the rest of the stack (Transformer, session setup, Tree)
// can stay dialect-agnostic. One instance exists per SMB2/SMB3 revision;
// negotiate.go selects it once the server's dialect_revision is known.
type dialectBehavior interface {
	revision() uint16

	negotiateCapsMask() uint32
	shareFlagsMask() uint32
	treeConnectCapsMask() uint32

	// processNegotiateResponse validates the negotiate response (and,
	// for 3.1.1, the negotiate-context chain) and populates ns with the
	// chosen signing algorithm, cipher, and compression algorithms.
	processNegotiateResponse(r smb2.NegotiateResponseDecoder, ns *NegotiateState, cfg ClientConfig) error

	// signingDeriveLabel/s2cEncryptKeyLabel/c2sEncryptKeyLabel return the
	// KDF label and a function mapping the running preauthentication
	// hash to the context string deriveCryptoContext should use with
	// that label (dialect 3.0/3.0.2 ignore the hash and return a fixed
	// context; 3.1.1 returns the hash itself).
	signingDeriveLabel() (label []byte, context func(preauthHash []byte) []byte)
	s2cEncryptKeyLabel() (label []byte, context func(preauthHash []byte) []byte)
	c2sEncryptKeyLabel() (label []byte, context func(preauthHash []byte) []byte)

	preauthHashSupported() bool
	defaultSigningAlgo() uint16
	supportsCompression() bool
	supportsEncryption() bool
}

// NegotiateState is transient, mutable state collected during negotiation
// (spec.md §3 "NegotiateState"), consolidated into ConnectionInfo once
// negotiation completes.
type NegotiateState struct {
	Dialect                   uint16
	SecurityMode              uint16
	Capabilities              uint32
	ServerGuid                [16]byte
	MaxTransactSize           uint32
	MaxReadSize               uint32
	MaxWriteSize              uint32
	SigningAlgo               uint16
	EncryptionCipher          uint16
	CompressionAlgorithms     []uint16
	PreauthIntegrityHashId    uint16
	PreauthIntegrityHashValue [64]byte
}

// ClientConfig is the client-wide policy spec.md §3 attaches to
// ConnectionInfo: encryption mode, compression toggle, and the dialect
// ceiling/floor the negotiator is allowed to offer.
type ClientConfig struct {
	RequireMessageSigning bool
	EncryptionMode        EncryptionMode
	CompressionEnabled    bool
	ClientGuid            [16]byte
	SpecifiedDialect      uint16
}

// EncryptionMode selects how aggressively the client asks for per-message
// encryption, mirroring spec.md §4.4's "EncryptionMode" policy knob.
type EncryptionMode int

const (
	EncryptionDisabled EncryptionMode = iota
	EncryptionAllowed
	EncryptionRequired
)

func dialectBehaviorFor(rev uint16) (dialectBehavior, error) {
	switch rev {
	case smb2.SMB202:
		return dialect2x{rev: smb2.SMB202}, nil
	case smb2.SMB210:
		return dialect2x{rev: smb2.SMB210}, nil
	case smb2.SMB300:
		return dialect300{rev: smb2.SMB300}, nil
	case smb2.SMB302:
		return dialect300{rev: smb2.SMB302}, nil
	case smb2.SMB311:
		return dialect311{}, nil
	default:
		return nil, &erref.NegotiationError{Reason: "unsupported dialect revision"}
	}
}

// dialect2x covers SMB 2.0.2 and 2.1: HMAC-SHA256 signing only, no
// encryption, no compression, no preauth-integrity context.
type dialect2x struct{ rev uint16 }

func (d dialect2x) revision() uint16 { return d.rev }
func (d dialect2x) negotiateCapsMask() uint32 {
	return smb2.SMB2_GLOBAL_CAP_DFS | smb2.SMB2_GLOBAL_CAP_LEASING | smb2.SMB2_GLOBAL_CAP_LARGE_MTU
}
func (d dialect2x) shareFlagsMask() uint32 {
	return smb2.SMB2_SHAREFLAG_DFS | smb2.SMB2_SHAREFLAG_DFS_ROOT
}
func (d dialect2x) treeConnectCapsMask() uint32 { return smb2.SMB2_SHARE_CAP_DFS }

func (d dialect2x) processNegotiateResponse(r smb2.NegotiateResponseDecoder, ns *NegotiateState, cfg ClientConfig) error {
	ns.SigningAlgo = smb2.SigningHmacSha256
	return nil
}

func (d dialect2x) signingDeriveLabel() ([]byte, func([]byte) []byte) { return nil, nil }
func (d dialect2x) s2cEncryptKeyLabel() ([]byte, func([]byte) []byte) { return nil, nil }
func (d dialect2x) c2sEncryptKeyLabel() ([]byte, func([]byte) []byte) { return nil, nil }
func (d dialect2x) preauthHashSupported() bool                        { return false }
func (d dialect2x) defaultSigningAlgo() uint16                                { return smb2.SigningHmacSha256 }
func (d dialect2x) supportsCompression() bool                                 { return false }
func (d dialect2x) supportsEncryption() bool                                  { return false }

// dialect300 covers SMB 3.0 and 3.0.2: AES-CMAC signing, mandatory
// AES-128-CCM encryption with fixed labels, no compression, no
// preauth-integrity context (that is 3.1.1-only).
type dialect300 struct{ rev uint16 }

func (d dialect300) revision() uint16 { return d.rev }
func (d dialect300) negotiateCapsMask() uint32 {
	return dialect2x{}.negotiateCapsMask() | smb2.SMB2_GLOBAL_CAP_MULTI_CHANNEL |
		smb2.SMB2_GLOBAL_CAP_PERSISTENT_HANDLES | smb2.SMB2_GLOBAL_CAP_ENCRYPTION
}
func (d dialect300) shareFlagsMask() uint32 {
	return dialect2x{}.shareFlagsMask() | smb2.SMB2_SHAREFLAG_ENCRYPT_DATA
}
func (d dialect300) treeConnectCapsMask() uint32 {
	return smb2.SMB2_SHARE_CAP_DFS | smb2.SMB2_SHARE_CAP_CONTINUOUS_AVAILABILITY |
		smb2.SMB2_SHARE_CAP_SCALEOUT | smb2.SMB2_SHARE_CAP_CLUSTER | smb2.SMB2_SHARE_CAP_ASYMMETRIC
}

func (d dialect300) processNegotiateResponse(r smb2.NegotiateResponseDecoder, ns *NegotiateState, cfg ClientConfig) error {
	ns.SigningAlgo = smb2.SigningAesCmac
	if cfg.EncryptionMode == EncryptionRequired && ns.Capabilities&smb2.SMB2_GLOBAL_CAP_ENCRYPTION == 0 {
		return &erref.NegotiationError{Reason: "server does not support encryption and client requires it"}
	}
	if ns.Capabilities&smb2.SMB2_GLOBAL_CAP_ENCRYPTION != 0 {
		ns.EncryptionCipher = smb2.AES128CCM
	}
	return nil
}

func (d dialect300) signingDeriveLabel() ([]byte, func([]byte) []byte) {
	return label300SigningCMAC, func([]byte) []byte { return label300SigningCtx }
}
func (d dialect300) s2cEncryptKeyLabel() ([]byte, func([]byte) []byte) {
	return label300CipherCCM, func([]byte) []byte { return label300DecryptCtx }
}
func (d dialect300) c2sEncryptKeyLabel() ([]byte, func([]byte) []byte) {
	return label300CipherCCM, func([]byte) []byte { return label300EncryptCtx }
}
func (d dialect300) preauthHashSupported() bool { return false }
func (d dialect300) defaultSigningAlgo() uint16  { return smb2.SigningAesCmac }
func (d dialect300) supportsCompression() bool   { return false }
func (d dialect300) supportsEncryption() bool    { return true }

// dialect311 covers SMB 3.1.1: negotiate contexts are mandatory, the
// signing algorithm and cipher are whatever the server's negotiate
// contexts selected, and all keys are derived from the frozen
// pre-authentication hash rather than fixed context strings.
type dialect311 struct{}

func (d dialect311) revision() uint16 { return smb2.SMB311 }
func (d dialect311) negotiateCapsMask() uint32 {
	return dialect300{}.negotiateCapsMask()
}
func (d dialect311) shareFlagsMask() uint32       { return dialect300{}.shareFlagsMask() }
func (d dialect311) treeConnectCapsMask() uint32  { return dialect300{}.treeConnectCapsMask() }

func (d dialect311) processNegotiateResponse(r smb2.NegotiateResponseDecoder, ns *NegotiateState, cfg ClientConfig) error {
	list := r.NegotiateContextList()
	if len(list) == 0 {
		return &erref.NegotiationError{Reason: "3.1.1 response missing negotiate contexts"}
	}

	sawHash, sawCipher := false, false

	for count := r.NegotiateContextCount(); count > 0; count-- {
		nc := smb2.NegotiateContextDecoder(list)
		if nc.IsInvalid() {
			return &erref.InvalidResponseError{Msg: "broken negotiate context format"}
		}

		switch nc.ContextType() {
		case smb2.SMB2_PREAUTH_INTEGRITY_CAPABILITIES:
			hd := smb2.HashContextDataDecoder(nc.Data())
			if hd.IsInvalid() {
				return &erref.InvalidResponseError{Msg: "broken hash context data"}
			}
			algs := hd.HashAlgorithms()
			if len(algs) != 1 || algs[0] != smb2.SHA512 {
				return &erref.NegotiationError{Reason: "unacceptable preauth-integrity algorithm"}
			}
			ns.PreauthIntegrityHashId = algs[0]
			sawHash = true

		case smb2.SMB2_ENCRYPTION_CAPABILITIES:
			cd := smb2.CipherContextDataDecoder(nc.Data())
			if cd.IsInvalid() {
				return &erref.InvalidResponseError{Msg: "broken cipher context data"}
			}
			ciphs := cd.Ciphers()
			if len(ciphs) != 1 {
				return &erref.InvalidResponseError{Msg: "multiple cipher algorithms returned"}
			}
			switch ciphs[0] {
			case smb2.AES128CCM, smb2.AES128GCM, smb2.AES256CCM, smb2.AES256GCM:
				ns.EncryptionCipher = ciphs[0]
				sawCipher = true
			default:
				return &erref.NegotiationError{Reason: "unknown cipher algorithm"}
			}

		case smb2.SMB2_COMPRESSION_CAPABILITIES:
			if !cfg.CompressionEnabled {
				break
			}
			compd := smb2.CompressionContextDataDecoder(nc.Data())
			if !compd.IsInvalid() {
				ns.CompressionAlgorithms = compd.Algorithms()
			}

		case smb2.SMB2_SIGNING_CAPABILITIES:
			sd := smb2.SigningContextDataDecoder(nc.Data())
			if !sd.IsInvalid() {
				algs := sd.Algorithms()
				if len(algs) > 0 {
					ns.SigningAlgo = algs[0]
				}
			}
		}

		off := nc.Next()
		if len(list) < off {
			list = nil
		} else {
			list = list[off:]
		}
	}

	if !sawHash {
		return &erref.NegotiationError{Reason: "3.1.1 response missing preauth-integrity context"}
	}
	if !sawCipher && cfg.EncryptionMode == EncryptionRequired {
		return &erref.NegotiationError{Reason: "server offered no cipher and client requires encryption"}
	}
	if ns.SigningAlgo == 0 {
		ns.SigningAlgo = smb2.SigningAesCmac
	}
	return nil
}

func (d dialect311) signingDeriveLabel() ([]byte, func([]byte) []byte) {
	return label311Signing, func(preauthHash []byte) []byte { return preauthHash }
}
func (d dialect311) s2cEncryptKeyLabel() ([]byte, func([]byte) []byte) {
	return label311EncryptS2C, func(preauthHash []byte) []byte { return preauthHash }
}
func (d dialect311) c2sEncryptKeyLabel() ([]byte, func([]byte) []byte) {
	return label311EncryptC2S, func(preauthHash []byte) []byte { return preauthHash }
}
func (d dialect311) preauthHashSupported() bool { return true }
func (d dialect311) defaultSigningAlgo() uint16  { return smb2.SigningAesCmac }
func (d dialect311) supportsCompression() bool   { return true }
func (d dialect311) supportsEncryption() bool    { return true }
