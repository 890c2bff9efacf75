package smb3

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"encoding/asn1"
	"encoding/binary"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
)

// NTLM message types (MS-NLMP 2.2.1).
const (
	ntlmNegotiate    = 1
	ntlmChallenge    = 2
	ntlmAuthenticate = 3
)

var ntlmSignature = []byte("NTLMSSP\x00")

// NTLM negotiate flags this client sets or inspects (MS-NLMP 2.2.2.5).
const (
	ntlmFlagUnicode            = 0x00000001
	ntlmFlagRequestTarget      = 0x00000004
	ntlmFlagSign               = 0x00000010
	ntlmFlagNTLM               = 0x00000200
	ntlmFlagAlwaysSign         = 0x00008000
	ntlmFlagExtendedSecurity   = 0x00080000
	ntlmFlagTargetInfo         = 0x00800000
	ntlmFlagKeyExch            = 0x40000000
	ntlmFlag128                = 0x20000000
)

const ntlmAvEOL = 0x0000

// NTLMInitiator implements Initiator (spnego.go) for NTLMv2 fallback,
// mirroring KerberosInitiator's method set (initiator_krb5.go) since no
// domain controller / Kerberos ticket is available.
type NTLMInitiator struct {
	User     string
	Password string
	Domain   string

	serverChallenge [8]byte
	targetInfo      []byte
	negFlags        uint32
	sessKey         []byte
}

func (n *NTLMInitiator) oid() asn1.ObjectIdentifier { return ntlmOid }

func (n *NTLMInitiator) initSecContext() ([]byte, error) {
	return n.buildNegotiate(), nil
}

func (n *NTLMInitiator) acceptSecContext(sc []byte) ([]byte, error) {
	if !ntlmIsValid(sc) {
		return nil, &errNTLM{"invalid NTLMSSP signature in challenge message"}
	}
	if ntlmMessageType(sc) != ntlmChallenge {
		return nil, &errNTLM{"expected NTLM CHALLENGE message"}
	}

	n.negFlags = binary.LittleEndian.Uint32(sc[20:24])
	copy(n.serverChallenge[:], sc[24:32])

	if len(sc) >= 48 {
		tiLen := binary.LittleEndian.Uint16(sc[40:42])
		tiOff := binary.LittleEndian.Uint32(sc[44:48])
		if tiLen > 0 && int(tiOff)+int(tiLen) <= len(sc) {
			n.targetInfo = append([]byte{}, sc[tiOff:tiOff+uint32(tiLen)]...)
		}
	}

	return n.buildAuthenticate(), nil
}

func (n *NTLMInitiator) sum(bs []byte) []byte {
	mac := hmac.New(md5.New, n.sessKey)
	mac.Write(bs)
	return mac.Sum(nil)
}

func (n *NTLMInitiator) sessionKey() []byte { return n.sessKey }

// buildNegotiate constructs the NTLM Type 1 (NEGOTIATE) message sent as
// the optimistic mechToken inside the client's NegTokenInit.
func (n *NTLMInitiator) buildNegotiate() []byte {
	flags := uint32(ntlmFlagUnicode | ntlmFlagRequestTarget | ntlmFlagNTLM |
		ntlmFlagSign | ntlmFlagAlwaysSign | ntlmFlagExtendedSecurity |
		ntlmFlagTargetInfo | ntlmFlagKeyExch | ntlmFlag128)

	msg := make([]byte, 32)
	copy(msg[0:8], ntlmSignature)
	binary.LittleEndian.PutUint32(msg[8:12], ntlmNegotiate)
	binary.LittleEndian.PutUint32(msg[12:16], flags)
	return msg
}

// buildAuthenticate constructs the NTLM Type 3 (AUTHENTICATE) message:
// username/domain, the NTLMv2 response, and (when KEY_EXCH was
// negotiated) a freshly generated ExportedSessionKey, RC4-sealed under
// SessionBaseKey, per MS-NLMP 3.3.2.
func (n *NTLMInitiator) buildAuthenticate() []byte {
	ntHash := ntOWFv2(n.Password)
	ntlmv2Hash := ntlmV2Hash(ntHash, n.User, n.Domain)

	clientBlob := ntlmClientBlob(n.targetInfo)

	mac := hmac.New(md5.New, ntlmv2Hash)
	mac.Write(n.serverChallenge[:])
	mac.Write(clientBlob)
	ntProofStr := mac.Sum(nil)

	ntResponse := append(append([]byte{}, ntProofStr...), clientBlob...)

	sessMac := hmac.New(md5.New, ntlmv2Hash)
	sessMac.Write(ntProofStr)
	sessionBaseKey := sessMac.Sum(nil)

	var encryptedSessionKey []byte
	if n.negFlags&ntlmFlagKeyExch != 0 {
		exported := make([]byte, 16)
		if _, err := rand.Read(exported); err != nil {
			n.sessKey = sessionBaseKey
			return n.encodeAuthenticate(nil, ntResponse, nil)
		}
		c, err := rc4.NewCipher(sessionBaseKey)
		if err == nil {
			encryptedSessionKey = make([]byte, 16)
			c.XORKeyStream(encryptedSessionKey, exported)
		}
		n.sessKey = exported
	} else {
		n.sessKey = sessionBaseKey
	}

	return n.encodeAuthenticate(nil, ntResponse, encryptedSessionKey)
}

func (n *NTLMInitiator) encodeAuthenticate(lmResponse, ntResponse, encSessKey []byte) []byte {
	domain := ntlmUTF16(n.Domain)
	user := ntlmUTF16(n.User)

	const baseSize = 64
	off := baseSize

	lmOff := off
	off += len(lmResponse)
	ntOff := off
	off += len(ntResponse)
	domOff := off
	off += len(domain)
	userOff := off
	off += len(user)
	wsOff := off
	keyOff := off

	flags := n.negFlags
	if encSessKey != nil {
		keyOff = off
		off += len(encSessKey)
	}

	msg := make([]byte, off)
	copy(msg[0:8], ntlmSignature)
	binary.LittleEndian.PutUint32(msg[8:12], ntlmAuthenticate)

	putField := func(lenOff int, length int, fieldOff int) {
		binary.LittleEndian.PutUint16(msg[lenOff:lenOff+2], uint16(length))
		binary.LittleEndian.PutUint16(msg[lenOff+2:lenOff+4], uint16(length))
		binary.LittleEndian.PutUint32(msg[lenOff+4:lenOff+8], uint32(fieldOff))
	}

	putField(12, len(lmResponse), lmOff)
	putField(20, len(ntResponse), ntOff)
	putField(28, len(domain), domOff)
	putField(36, len(user), userOff)
	putField(44, 0, wsOff)
	if encSessKey != nil {
		putField(52, len(encSessKey), keyOff)
	}
	binary.LittleEndian.PutUint32(msg[60:64], flags)

	copy(msg[lmOff:], lmResponse)
	copy(msg[ntOff:], ntResponse)
	copy(msg[domOff:], domain)
	copy(msg[userOff:], user)
	if encSessKey != nil {
		copy(msg[keyOff:], encSessKey)
	}

	return msg
}

func ntlmIsValid(buf []byte) bool {
	return len(buf) >= 12 && string(buf[0:8]) == string(ntlmSignature)
}

func ntlmMessageType(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[8:12])
}

// ntOWFv2 computes the NT one-way function: MD4(UTF16LE(password)).
func ntOWFv2(password string) []byte {
	h := md4.New()
	h.Write(ntlmUTF16(password))
	return h.Sum(nil)
}

// ntlmV2Hash computes HMAC-MD5(ntHash, UPPER(user)+domain), all in
// UTF-16LE (MS-NLMP 3.3.2).
func ntlmV2Hash(ntHash []byte, user, domain string) []byte {
	mac := hmac.New(md5.New, ntHash)
	mac.Write(ntlmUTF16(strings.ToUpper(user) + domain))
	return mac.Sum(nil)
}

// ntlmClientBlob builds the NTLMv2 response's variable "temp" blob:
// header, timestamp, client nonce, target info, terminator.
func ntlmClientBlob(targetInfo []byte) []byte {
	buf := make([]byte, 0, 28+len(targetInfo)+4)
	buf = append(buf, 0x01, 0x01, 0x00, 0x00) // RespType, HiRespType, reserved
	buf = append(buf, 0x00, 0x00, 0x00, 0x00) // reserved
	buf = binary.LittleEndian.AppendUint64(buf, ntlmFiletimeNow())
	nonce := make([]byte, 8)
	rand.Read(nonce)
	buf = append(buf, nonce...)
	buf = append(buf, 0x00, 0x00, 0x00, 0x00) // unknown/reserved
	buf = append(buf, targetInfo...)
	buf = append(buf, 0x00, 0x00, 0x00, 0x00) // terminator AV_PAIR (AvEOL)
	return buf
}

// ntlmFiletimeNow returns the current time as a Windows FILETIME: 100ns
// intervals since 1601-01-01, per MS-DTYP 2.3.3.
func ntlmFiletimeNow() uint64 {
	const epochDiff = 116444736000000000
	return uint64(time.Now().UnixNano()/100) + epochDiff
}

func ntlmUTF16(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, len(u)*2)
	for i, v := range u {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}

type errNTLM struct{ msg string }

func (e *errNTLM) Error() string { return "ntlm: " + e.msg }
