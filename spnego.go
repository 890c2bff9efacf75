package smb3

import (
	"encoding/asn1"

	"github.com/geoffgarside/ber"
)

// spnegoOid is the SPNEGO mechanism's own OID (RFC 4178), wrapping
// whichever underlying mechanism (Kerberos, NTLM) the two peers agree on.
var spnegoOid = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 2}

// kerberosOid identifies the Kerberos V5 GSS-API mechanism (RFC 4121),
// referenced by initiator_krb5.go's KerberosInitiator.oid.
var kerberosOid = asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}

// ntlmOid identifies the NTLMSSP pseudo-mechanism under SPNEGO, as
// advertised by every Windows server that supports NTLM fallback.
var ntlmOid = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 2, 10}

const (
	spnegoAcceptCompleted  = 0
	spnegoAcceptIncomplete = 1
	spnegoReject           = 2
)

// negTokenInit is the client's initial SPNEGO token (RFC 4178 §4.2.1),
// sent as the security buffer of the first SMB2_SESSION_SETUP request.
type negTokenInit struct {
	MechTypes   []asn1.ObjectIdentifier `asn1:"explicit,tag:0"`
	ReqFlags    asn1.BitString          `asn1:"explicit,optional,tag:1"`
	MechToken   []byte                  `asn1:"explicit,optional,tag:2"`
	MechListMIC []byte                  `asn1:"explicit,optional,tag:3"`
}

type negTokenInitWrapper struct {
	OID  asn1.ObjectIdentifier
	Init negTokenInit `asn1:"explicit,tag:0"`
}

// negTokenResp is every SPNEGO response the server sends back, including
// the final accept-completed one (RFC 4178 §4.2.2).
type negTokenResp struct {
	NegState      asn1.Enumerated       `asn1:"explicit,optional,tag:0"`
	SupportedMech asn1.ObjectIdentifier `asn1:"explicit,optional,tag:1"`
	ResponseToken []byte                `asn1:"explicit,optional,tag:2"`
	MechListMIC   []byte                `asn1:"explicit,optional,tag:3"`
}

// Initiator is implemented by every GSS-API mechanism this client can
// drive through SPNEGO. Method names and shape are fixed by
// initiator_krb5.go's KerberosInitiator, which this module adapts from the
// teacher; ntlm.go's NTLMInitiator implements the same contract.
type Initiator interface {
	oid() asn1.ObjectIdentifier
	initSecContext() ([]byte, error)
	acceptSecContext(sc []byte) ([]byte, error)
	sum(bs []byte) []byte
	sessionKey() []byte
}

// spnegoClient drives the RFC 4178 negotiation loop over one or more
// candidate Initiators, mirroring session.go's newSpnegoClient in the
// rclone-vendored reference.
type spnegoClient struct {
	initiators []Initiator
	chosen     Initiator
	done       bool
}

func newSpnegoClient(initiators []Initiator) *spnegoClient {
	return &spnegoClient{initiators: initiators}
}

// initialToken builds the first SPNEGO token: a NegTokenInit listing
// every candidate mechanism and carrying the first initiator's opening
// GSS token as an optimistic mechToken (RFC 4178 §4.2.1, "optimistic
// mechanism").
func (c *spnegoClient) initialToken() ([]byte, error) {
	mechTypes := make([]asn1.ObjectIdentifier, len(c.initiators))
	for i, ini := range c.initiators {
		mechTypes[i] = ini.oid()
	}

	c.chosen = c.initiators[0]
	tok, err := c.chosen.initSecContext()
	if err != nil {
		return nil, err
	}

	body := negTokenInit{MechTypes: mechTypes, MechToken: tok}
	w := negTokenInitWrapper{OID: spnegoOid, Init: body}

	inner, err := asn1.Marshal(w)
	if err != nil {
		return nil, err
	}

	return wrapApplication0(inner), nil
}

// next drives the GSS-API loop one round forward, feeding the server's
// NegTokenResp to the chosen initiator and returning the next token to
// send (nil once negotiation is complete).
func (c *spnegoClient) next(resp []byte) (tokenOut []byte, done bool, err error) {
	var r negTokenResp
	if _, err := ber.Unmarshal(resp, &r); err != nil {
		return nil, false, &errSpnegoDecode{err}
	}

	if r.NegState == spnegoReject {
		return nil, false, &errSpnegoRejected{}
	}

	if len(r.ResponseToken) > 0 {
		tok, err := c.chosen.acceptSecContext(r.ResponseToken)
		if err != nil {
			return nil, false, err
		}
		tokenOut = tok
	}

	if r.NegState == spnegoAcceptCompleted {
		c.done = true
		return tokenOut, true, nil
	}

	return tokenOut, false, nil
}

func (c *spnegoClient) sessionKey() []byte { return c.chosen.sessionKey() }

// wrapApplication0 prepends a DER [APPLICATION 0] constructed tag and its
// BER/DER length encoding around body, completing the GSS-API
// InitialContextToken framing (RFC 2743 §3.1) that encoding/asn1 cannot
// express directly since it has no "application,tag:0" wrapper for an
// already-marshalled byte blob.
func wrapApplication0(body []byte) []byte {
	return berWrap(0x60, body)
}

func berWrap(tag byte, body []byte) []byte {
	n := len(body)
	switch {
	case n < 128:
		out := make([]byte, 2+n)
		out[0] = tag
		out[1] = byte(n)
		copy(out[2:], body)
		return out
	case n < 256:
		out := make([]byte, 3+n)
		out[0] = tag
		out[1] = 0x81
		out[2] = byte(n)
		copy(out[3:], body)
		return out
	default:
		out := make([]byte, 4+n)
		out[0] = tag
		out[1] = 0x82
		out[2] = byte(n >> 8)
		out[3] = byte(n)
		copy(out[4:], body)
		return out
	}
}

type errSpnegoDecode struct{ err error }

func (e *errSpnegoDecode) Error() string { return "spnego: malformed NegTokenResp: " + e.err.Error() }
func (e *errSpnegoDecode) Unwrap() error { return e.err }

type errSpnegoRejected struct{}

func (e *errSpnegoRejected) Error() string { return "spnego: mechanism negotiation rejected" }
