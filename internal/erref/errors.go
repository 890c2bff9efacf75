package erref

import "fmt"

// TransportError wraps a failure from the byte-stream adapter. It is
// terminal for the connection: every outstanding waiter is drained with
// a copy of it.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// NegotiationError covers dialect/cipher/signing/compression negotiation
// failures (spec §7 "Negotiation").
type NegotiationError struct {
	Reason string
}

func (e *NegotiationError) Error() string { return "negotiation failed: " + e.Reason }

// SessionSetupError covers authenticator, key-derivation, and
// unexpected-status failures during the session-setup loop.
type SessionSetupError struct {
	Reason string
	Err    error
}

func (e *SessionSetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session setup failed: %s: %v", e.Reason, e.Err)
	}
	return "session setup failed: " + e.Reason
}
func (e *SessionSetupError) Unwrap() error { return e.Err }

// Direction names which leg of the pipeline a TransformError occurred on.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}

// Phase names which pipeline stage produced a TransformError.
type Phase int

const (
	PhaseEncode Phase = iota
	PhaseDecode
	PhaseSign
	PhaseVerify
	PhaseCompress
	PhaseDecompress
	PhaseEncrypt
	PhaseDecrypt
)

func (p Phase) String() string {
	switch p {
	case PhaseEncode:
		return "encode"
	case PhaseDecode:
		return "decode"
	case PhaseSign:
		return "sign"
	case PhaseVerify:
		return "verify"
	case PhaseCompress:
		return "compress"
	case PhaseDecompress:
		return "decompress"
	case PhaseEncrypt:
		return "encrypt"
	case PhaseDecrypt:
		return "decrypt"
	default:
		return "unknown"
	}
}

// TransformError is non-terminal: it surfaces only to the waiter for the
// message it was produced for (spec §4.3, §7).
type TransformError struct {
	Dir       Direction
	Phase     Phase
	SessionId *uint64
	MessageId *uint64
	Reason    string
}

func (e *TransformError) Error() string {
	s := fmt.Sprintf("%s %s failed: %s", e.Dir, e.Phase, e.Reason)
	if e.SessionId != nil {
		s += fmt.Sprintf(" (session=%#x)", *e.SessionId)
	}
	if e.MessageId != nil {
		s += fmt.Sprintf(" (msgid=%#x)", *e.MessageId)
	}
	return s
}

// ProtocolViolationError covers wire-level contract breaks that are not
// transform failures: wrong command/status/tree/session in a response
// slot, or missing signing/encryption where the session/tree demands it.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string { return "protocol violation: " + e.Reason }

// LogicalErrorKind distinguishes the Logical error category's sub-cases.
type LogicalErrorKind int

const (
	InvalidArgument LogicalErrorKind = iota
	InvalidState
	MissingPermission
	NotFound
	InsufficientCredits
	Timeout
)

// LogicalError never reaches the Worker; it's raised directly to the
// caller (spec §7).
type LogicalError struct {
	Kind   LogicalErrorKind
	Reason string
}

func (e *LogicalError) Error() string { return "invalid operation: " + e.Reason }

// DFSError covers referral resolution failures.
type DFSError struct {
	Reason string
}

func (e *DFSError) Error() string { return "dfs: " + e.Reason }

// ContextError wraps a context.Context cancellation/deadline observed
// while waiting on a send or a response.
type ContextError struct {
	Err error
}

func (e *ContextError) Error() string { return e.Err.Error() }
func (e *ContextError) Unwrap() error { return e.Err }

// InvalidResponseError marks a response that failed to parse or that
// violates a structural invariant the codec enforces (bad sizes, wrong
// magic, ...).
type InvalidResponseError struct {
	Msg string
}

func (e *InvalidResponseError) Error() string { return e.Msg }

// ResponseError wraps a non-success NTSTATUS the server returned, along
// with any error-context data records attached to it.
type ResponseError struct {
	Code NtStatus
	Data [][]byte
}

func (e *ResponseError) Error() string { return "smb2: " + e.Code.String() }

// InternalError marks a failure in local bookkeeping (RNG failure,
// unreachable state) rather than anything observed from the wire.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return e.Msg }
