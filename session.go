package smb3

import (
	"context"
	"crypto/sha512"

	"github.com/smb3client/smb3/internal/erref"
	"github.com/smb3client/smb3/internal/smb2"
)

// sessionState tracks SessionInfo's lifecycle (spec.md §3's Session data
// model): Initial before the first request is sent, SettingUp across the
// GSS round trips, Ready once the server returns STATUS_SUCCESS and the
// final signature (if any) checks out, Invalid once logoff or a fatal
// protocol error tears it down.
type sessionState int

const (
	sessionInitial sessionState = iota
	sessionSettingUp
	sessionReady
	sessionInvalid
)

// SessionInfo is an authenticated SMB2 session, bound to one or more
// Workers (channels) per spec.md §3. The first Worker that creates it
// owns the primary connection; additional Workers bind to it as extra
// channels (MS-SMB2 3.2.4.2.3, "SMB2_SESSION_FLAG_BINDING").
type SessionInfo struct {
	SessionId       uint64
	IsGuest         bool
	IsAnonymous     bool
	SigningRequired bool

	conn *ConnectionInfo

	state sessionState
}

func (s *SessionInfo) authenticated() bool {
	return s.state == sessionReady
}

// sessionSetupParams bundles the inputs to setupSession that differ
// between creating a brand-new session (newSession) and binding an
// additional channel to an existing one (bindSession): previousSessionId
// carries SMB2_SESSION_SETUP's reconnect hint, and bind sets the
// SMB2_SESSION_FLAG_BINDING request flag plus reuses the existing
// session id instead of waiting for the server to mint a new one.
type sessionSetupParams struct {
	binding           bool
	existingSessionId uint64
	previousSessionId uint64
}

// newSession drives SmbSessionNew (spec.md §4.5): a fresh session created
// from scratch on a newly negotiated connection.
func newSession(ctx context.Context, w *Worker, ci *ConnectionInfo, initiators []Initiator, previousSessionId uint64) (*SessionInfo, error) {
	s := &SessionInfo{conn: ci, state: sessionInitial}
	if err := setupSession(ctx, w, ci, s, initiators, sessionSetupParams{previousSessionId: previousSessionId}); err != nil {
		return nil, err
	}
	return s, nil
}

// bindSession drives SmbSessionBind (spec.md §4.5): an additional Worker
// (a new TCP/RDMA connection, typically to a different network interface
// for multichannel) authenticates against an already-Ready session.
// Binding reuses the session's identity but always derives its own
// preauth hash and crypto context for this one channel, since MS-SMB2
// 3.2.5.3.1 requires the Session Binding request to run its own
// preauthentication integrity check independent of the primary channel's.
func bindSession(ctx context.Context, w *Worker, ci *ConnectionInfo, primary *SessionInfo, initiators []Initiator) error {
	if primary.state != sessionReady {
		return &erref.SessionSetupError{Reason: "cannot bind a channel to a session that is not established"}
	}

	bound := &SessionInfo{
		SessionId:       primary.SessionId,
		IsGuest:         primary.IsGuest,
		IsAnonymous:     primary.IsAnonymous,
		SigningRequired: primary.SigningRequired,
		conn:            ci,
		state:           sessionInitial,
	}

	params := sessionSetupParams{binding: true, existingSessionId: primary.SessionId}
	if err := setupSession(ctx, w, ci, bound, initiators, params); err != nil {
		return err
	}
	return nil
}

// setupSession runs the SMB2_SESSION_SETUP multi-round-trip state machine
// (MS-SMB2 3.2.4.2), grounded on the rclone-vendored session.go's
// sessionSetup and the Rust original's SessionSetup::_setup_loop: send the
// next SPNEGO token, inspect STATUS_MORE_PROCESSING_REQUIRED vs.
// STATUS_SUCCESS, extend the running preauthentication hash with every
// raw buffer sent and received (3.1.1 only) until authentication
// completes, then freeze it exactly once and derive this Worker's crypto
// context before the final response is verified.
func setupSession(ctx context.Context, w *Worker, ci *ConnectionInfo, s *SessionInfo, initiators []Initiator, params sessionSetupParams) error {
	spnego := newSpnegoClient(initiators)

	tok, err := spnego.initialToken()
	if err != nil {
		return &erref.SessionSetupError{Reason: "building initial SPNEGO token", Err: err}
	}

	preauth := ci.PreauthIntegrityHashValue
	preauthActive := ci.Behavior.preauthHashSupported()

	securityMode := byte(smb2.SMB2_NEGOTIATE_SIGNING_ENABLED)
	if ci.RequireSigning {
		securityMode = smb2.SMB2_NEGOTIATE_SIGNING_REQUIRED
	}

	s.state = sessionSettingUp

	sessionId := params.existingSessionId
	haveSessionId := params.binding
	keyDerived := false

	for {
		req := &smb2.SessionSetupRequest{
			SecurityMode:      securityMode,
			PreviousSessionId: params.previousSessionId,
			SecurityBuffer:    tok,
		}
		if params.binding {
			req.Flags = smb2.SMB2_SESSION_FLAG_BINDING
		}

		var sessIdPtr *uint64
		if haveSessionId {
			sessIdPtr = &sessionId
		}

		outgoing := &OutgoingMessage{Request: req, CreditCharge: 1, SessionId: sessIdPtr}

		msgId, rawSent, err := w.send(ctx, outgoing)
		if err != nil {
			s.state = sessionInvalid
			return &erref.SessionSetupError{Reason: "sending session setup request", Err: err}
		}

		in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_SESSION_SETUP})
		if err != nil {
			s.state = sessionInvalid
			return &erref.SessionSetupError{Reason: "receiving session setup response", Err: err}
		}

		p := smb2.PacketCodec(in.Raw)
		status := erref.NtStatus(p.Status())

		if status != erref.StatusSuccess && status != erref.StatusMoreProcessingRequired {
			s.state = sessionInvalid
			return &erref.SessionSetupError{Reason: "unexpected status from server", Err: acceptError(status, p.Data())}
		}

		final := status == erref.StatusSuccess

		// The running hash only ever folds in bytes actually sent here.
		// A non-final round's response also feeds the next round's
		// hash below; the final round's response never does, since it
		// is signed with the key this hash is about to derive.
		if preauthActive {
			preauth = extendPreauthHash(preauth, rawSent)
		}

		if !haveSessionId {
			sessionId = p.SessionId()
			haveSessionId = true
		}

		r := smb2.SessionSetupResponseDecoder(p.Data())
		if r.IsInvalid() {
			s.state = sessionInvalid
			return &erref.SessionSetupError{Reason: "malformed session setup response"}
		}

		nextTok, done, err := spnego.next(r.SecurityBuffer())
		if err != nil {
			s.state = sessionInvalid
			return &erref.SessionSetupError{Reason: "SPNEGO negotiation", Err: err}
		}

		if !keyDerived && (done || final) {
			sessFlags := r.SessionFlags()
			s.IsGuest = sessFlags&smb2.SMB2_SESSION_FLAG_IS_GUEST != 0
			s.IsAnonymous = sessFlags&smb2.SMB2_SESSION_FLAG_IS_NULL != 0
			s.SigningRequired = ci.RequireSigning

			cc, err := deriveCryptoContext(ci.Behavior, ci.Cipher, spnego.sessionKey(), preauth[:])
			if err != nil {
				s.state = sessionInvalid
				return &erref.SessionSetupError{Reason: "deriving crypto context", Err: err}
			}
			w.sessionStarted(sessionId, cc)
			keyDerived = true
		}

		if preauthActive && !final {
			preauth = extendPreauthHash(preauth, in.Raw)
		}

		if final {
			if !s.IsGuest && !s.IsAnonymous {
				if p.Flags()&smb2.SMB2_FLAGS_SIGNED == 0 {
					s.state = sessionInvalid
					return &erref.SessionSetupError{Reason: "final session setup response was not signed"}
				}
			}

			s.SessionId = sessionId
			s.state = sessionReady
			return nil
		}

		if len(nextTok) == 0 {
			s.state = sessionInvalid
			return &erref.SessionSetupError{Reason: "authenticator produced no further token but server expects more processing"}
		}
		tok = nextTok
	}
}

// extendPreauthHash folds one more raw buffer into the running SHA-512
// preauthentication integrity hash (MS-SMB2 3.1.4.2): newValue =
// SHA512(oldValue || buffer).
func extendPreauthHash(prev [64]byte, buf []byte) [64]byte {
	h := sha512.New()
	h.Write(prev[:])
	h.Write(buf)
	var out [64]byte
	h.Sum(out[:0])
	return out
}

// logoff tears the session down (SMB2_LOGOFF, MS-SMB2 3.2.4.23): signed
// per the usual session signing rule, then the Worker forgets the
// session's crypto context regardless of the response.
func (s *SessionInfo) logoff(ctx context.Context, w *Worker) error {
	req := &smb2.LogoffRequest{}
	outgoing := &OutgoingMessage{
		Request:   req,
		SessionId: &s.SessionId,
		Sign:      !s.IsGuest && !s.IsAnonymous,
	}

	msgId, _, err := w.send(ctx, outgoing)
	w.sessionEnded(s.SessionId)
	s.state = sessionInvalid
	if err != nil {
		return &erref.SessionSetupError{Reason: "sending logoff request", Err: err}
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_LOGOFF})
	if err != nil {
		return err
	}
	_, err = accept(smb2.SMB2_LOGOFF, in.Raw)
	return err
}
