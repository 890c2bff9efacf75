package smb3

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"github.com/smb3client/smb3/internal/smb2"
	"github.com/smb3client/smb3/internal/xcrypto/ccm"
	"github.com/smb3client/smb3/internal/xcrypto/cmac"
)

// kdf implements the SP800-108 counter-mode key derivation function MS-SMB2
// 3.1.4.2 builds signing and encryption keys from: PRF = HMAC-SHA256, a
// 32-bit big-endian counter starting at 1, and a 32-bit big-endian output
// length in bits trailing each block.
func kdf(ki, label, context []byte, outputLen int) []byte {
	var result []byte
	var counter uint32 = 1
	for len(result) < outputLen {
		h := hmac.New(sha256.New, ki)

		var counterBytes [4]byte
		binary.BigEndian.PutUint32(counterBytes[:], counter)
		h.Write(counterBytes[:])

		h.Write(label)
		h.Write([]byte{0x00})
		h.Write(context)

		var lengthBits [4]byte
		binary.BigEndian.PutUint32(lengthBits[:], uint32(outputLen*8))
		h.Write(lengthBits[:])

		result = append(result, h.Sum(nil)...)
		counter++
	}
	return result[:outputLen]
}

// cipherKeyLen returns the encryption key length MS-SMB2 3.1.4.2 requires
// for cipherId: 16 bytes for the AES-128 variants, 32 for the AES-256
// ones. The signing key is always 128 bits regardless of cipher.
func cipherKeyLen(cipherId uint16) int {
	switch cipherId {
	case smb2.AES256CCM, smb2.AES256GCM:
		return 32
	default:
		return 16
	}
}

// cryptoContext bundles the symmetric primitives negotiated for a session
// or channel: a signer/verifier pair for SMB2_FLAGS_SIGNED packets, and
// (when encryption applies) an encrypter/decrypter pair for transform
// headers. Dialect 2.x sessions carry only signer/verifier.
type cryptoContext struct {
	signer    hash.Hash
	verifier  hash.Hash
	encrypter cipher.AEAD
	decrypter cipher.AEAD
}

// label300* hold the fixed label/context byte strings (SMB2AESCMAC /
// SmbSign / SMB2AESCCM / ServerIn / ServerOut) MS-SMB2 3.1.4.2 defines for
// dialects 3.0/3.0.2; label311* hold the 3.1.1 labels, whose context is
// the per-connection preauth hash instead of a fixed string.
var (
	label300SigningCMAC  = []byte("SMB2AESCMAC\x00")
	label300SigningCtx   = []byte("SmbSign\x00")
	label300CipherCCM    = []byte("SMB2AESCCM\x00")
	label300EncryptCtx   = []byte("ServerIn \x00")
	label300DecryptCtx   = []byte("ServerOut\x00")
	label311Signing      = []byte("SMBSigningKey\x00")
	label311EncryptC2S   = []byte("SMBC2SCipherKey\x00")
	label311EncryptS2C   = []byte("SMBS2CCipherKey\x00")
)

// deriveCryptoContext builds the signer/verifier and, where the dialect and
// negotiated cipher call for it, the encrypter/decrypter, from sessionKey.
// preauthHash is the running SHA-512 preauthentication hash value used by
// 3.1.1's per-connection key contexts; behavior supplies the per-dialect
// KDF labels (spec.md §4.4). The one dialect check made here picks out
// 2.0.2/2.1, which sign with HMAC-SHA256 keyed by sessionKey itself and
// derive no keys.
func deriveCryptoContext(behavior dialectBehavior, cipherId uint16, sessionKey []byte, preauthHash []byte) (*cryptoContext, error) {
	cc := &cryptoContext{}

	switch behavior.revision() {
	case smb2.SMB202, smb2.SMB210:
		cc.signer = hmac.New(sha256.New, sessionKey)
		cc.verifier = hmac.New(sha256.New, sessionKey)
		return cc, nil
	}

	signLabel, signContext := behavior.signingDeriveLabel()
	signingKey := kdf(sessionKey, signLabel, signContext(preauthHash), 16)
	ciph, err := aes.NewCipher(signingKey)
	if err != nil {
		return nil, err
	}
	cc.signer = cmac.New(ciph)
	cc.verifier = cmac.New(ciph)

	if !behavior.supportsEncryption() {
		return cc, nil
	}

	keyLen := cipherKeyLen(cipherId)
	s2cLabel, s2cContext := behavior.s2cEncryptKeyLabel()
	c2sLabel, c2sContext := behavior.c2sEncryptKeyLabel()
	decKey := kdf(sessionKey, s2cLabel, s2cContext(preauthHash), keyLen)
	encKey := kdf(sessionKey, c2sLabel, c2sContext(preauthHash), keyLen)

	newAEAD := func(key []byte) (cipher.AEAD, error) {
		blockCiph, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		switch cipherId {
		case smb2.AES128GCM, smb2.AES256GCM:
			return cipher.NewGCMWithNonceSize(blockCiph, 12)
		default:
			// The CCM ciphers, and dialect 3.0/3.0.2, which passes
			// AES128CCM or leaves cipherId 0; both mean AES-CCM.
			return ccm.NewCCMWithNonceAndTagSizes(blockCiph, 11, 16)
		}
	}

	cc.encrypter, err = newAEAD(encKey)
	if err != nil {
		return nil, err
	}
	cc.decrypter, err = newAEAD(decKey)
	if err != nil {
		return nil, err
	}
	return cc, nil
}
