// Package crypto defines the capability contract that the rest of the
// core (envelope, filecrypto, akcache, record, note, auth) is
// polymorphic over. Two concrete suites satisfy it: sodium (the
// default, Curve25519/XSalsa20-Poly1305/Ed25519) and nist
// (P-384/AES-GCM).
package crypto

import "fmt"

// Mode identifies which concrete Suite is in effect. Both sides of any
// exchange must agree on Mode; it is selected once per process.
type Mode string

const (
	ModeSodium Mode = "sodium"
	ModeNIST   Mode = "nist"
)

// KeyPair is a Base64URL-encoded (public, private) pair for use with
// the suite's authenticated box. Sodium keys are raw 32-byte Curve25519
// keys; NIST keys are Base64URL of PEM-encoded SPKI/PKCS8.
type KeyPair struct {
	Public  string
	Private string
}

// SigningKeyPair is an Ed25519 pair, required only in sodium mode.
type SigningKeyPair struct {
	Public  string
	Private string
}

// Box is the result of a public-key authenticated encryption: the
// ciphertext and the nonce used to produce it.
type Box struct {
	Ciphertext []byte
	Nonce      []byte
}

// Suite is the capability set every component in this module depends
// on instead of a concrete cipher library. See SPEC_FULL.md §4.1.
type Suite interface {
	Mode() Mode

	GenerateKeyPair() (KeyPair, error)
	GenerateSigningKeyPair() (SigningKeyPair, error)

	RandomKey() ([]byte, error)
	RandomNonce() ([]byte, error)

	EncryptSecret(key, plaintext, nonce []byte) ([]byte, error)
	DecryptSecret(key, ciphertext, nonce []byte) ([]byte, error)

	EncryptAK(priv, pub string, ak, nonce []byte) (Box, error)
	DecryptEAK(priv, pub string, ciphertext, nonce []byte) ([]byte, error)

	EncodePublicKey(raw []byte) (string, error)
	DecodePublicKey(s string) ([]byte, error)
	EncodePrivateKey(raw []byte) (string, error)
	DecodePrivateKey(s string) ([]byte, error)

	Sign(message []byte, privSigningKey string) ([]byte, error)
	Verify(sig, message []byte, pubSigningKey string) error

	HashString(s string) []byte

	Base64URLEncode(b []byte) string
	Base64URLDecode(s string) ([]byte, error)
}

// ErrUnsupportedMode reports an unrecognized mode string. No function in
// this module returns it.
var ErrUnsupportedMode = fmt.Errorf("unsupported crypto suite mode")
