// Package nist implements the alternative crypto.Suite: P-384
// ECDH+HKDF-SHA-384+AES-256-GCM in place of Curve25519 boxes,
// AES-256-GCM in place of XSalsa20-Poly1305 secret boxes. Wire
// envelopes are bit-identical to the sodium suite's; only the
// underlying primitives differ, mirroring e3db-python's NistCrypto.
package nist

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"

	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/internal/b64"
)

// Suite is the NIST-mode implementation of crypto.Suite. Its Sign and
// Verify use stdlib Ed25519, the same signature scheme as the sodium
// suite, so a caller that mixes suites for fields vs. signatures is
// never blocked.
type Suite struct{}

// New returns the NIST crypto.Suite.
func New() sagecrypto.Suite { return Suite{} }

func (Suite) Mode() sagecrypto.Mode { return sagecrypto.ModeNIST }

func (Suite) GenerateKeyPair() (sagecrypto.KeyPair, error) {
	priv, err := ecdh.P384().GenerateKey(rand.Reader)
	if err != nil {
		return sagecrypto.KeyPair{}, sagecrypto.NewError("generate keypair", err)
	}
	pubPEM, err := encodeSPKI(priv.PublicKey())
	if err != nil {
		return sagecrypto.KeyPair{}, err
	}
	privPEM, err := encodePKCS8(priv)
	if err != nil {
		return sagecrypto.KeyPair{}, err
	}
	return sagecrypto.KeyPair{
		Public:  b64.Encode(pubPEM),
		Private: b64.Encode(privPEM),
	}, nil
}

// GenerateSigningKeyPair is provided for interface parity; real use
// runs notes/TSV1 on the sodium suite.
func (Suite) GenerateSigningKeyPair() (sagecrypto.SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return sagecrypto.SigningKeyPair{}, sagecrypto.NewError("generate signing keypair", err)
	}
	return sagecrypto.SigningKeyPair{
		Public:  b64.Encode(pub),
		Private: b64.Encode(priv),
	}, nil
}

func (Suite) RandomKey() ([]byte, error) {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return nil, sagecrypto.NewError("random key", err)
	}
	return k, nil
}

// RandomNonce returns a 12-byte nonce, the natural size for AES-GCM.
func (Suite) RandomNonce() ([]byte, error) {
	n := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return nil, sagecrypto.NewError("random nonce", err)
	}
	return n, nil
}

func (Suite) EncryptSecret(key, plaintext, nonce []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

func (Suite) DecryptSecret(key, ciphertext, nonce []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	out, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, sagecrypto.NewError("decrypt secret", err)
	}
	return out, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, sagecrypto.NewError("aes-gcm", fmt.Errorf("key must be 32 bytes"))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, sagecrypto.NewError("aes-gcm", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, sagecrypto.NewError("aes-gcm", err)
	}
	return aead, nil
}

func (Suite) EncryptAK(priv, pub string, ak, nonce []byte) (sagecrypto.Box, error) {
	derived, err := exchange(priv, pub)
	if err != nil {
		return sagecrypto.Box{}, err
	}
	aead, err := newGCM(derived)
	if err != nil {
		return sagecrypto.Box{}, err
	}
	return sagecrypto.Box{Ciphertext: aead.Seal(nil, nonce, ak, nil), Nonce: nonce}, nil
}

func (Suite) DecryptEAK(priv, pub string, ciphertext, nonce []byte) ([]byte, error) {
	derived, err := exchange(priv, pub)
	if err != nil {
		return nil, err
	}
	aead, err := newGCM(derived)
	if err != nil {
		return nil, err
	}
	out, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, sagecrypto.NewError("decrypt eak", err)
	}
	return out, nil
}

// exchange computes ECDH(P-384) then HKDF-SHA-384 to a 32-byte AES key,
// mirroring NistCrypto._exchange in the original source.
func exchange(privB64, pubB64 string) ([]byte, error) {
	privPEM, err := b64.Decode(privB64)
	if err != nil {
		return nil, sagecrypto.NewError("decode private key", err)
	}
	pubPEM, err := b64.Decode(pubB64)
	if err != nil {
		return nil, sagecrypto.NewError("decode public key", err)
	}
	priv, err := decodePKCS8(privPEM)
	if err != nil {
		return nil, err
	}
	pub, err := decodeSPKI(pubPEM)
	if err != nil {
		return nil, err
	}
	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, sagecrypto.NewError("ecdh", err)
	}
	out := make([]byte, 32)
	r := hkdf.New(sha512.New384, shared, nil, nil)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, sagecrypto.NewError("hkdf", err)
	}
	return out, nil
}

// EncodePublicKey/DecodePublicKey/EncodePrivateKey/DecodePrivateKey wrap
// the PEM-encoded SPKI/PKCS8 bytes in unpadded Base64URL, the NIST
// counterpart of sodium's raw-bytes wrap. They do not themselves parse
// the PEM structure — that happens lazily in exchange() where the keys
// are actually used — so a caller holding an opaque PEM blob (e.g. one
// just received from the server) round-trips it without this suite
// needing to understand its contents.
func (Suite) EncodePublicKey(raw []byte) (string, error) { return b64.Encode(raw), nil }

func (Suite) DecodePublicKey(s string) ([]byte, error) {
	raw, err := b64.Decode(s)
	if err != nil {
		return nil, sagecrypto.NewError("decode public key", err)
	}
	if _, err := decodeSPKI(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (Suite) EncodePrivateKey(raw []byte) (string, error) { return b64.Encode(raw), nil }

func (Suite) DecodePrivateKey(s string) ([]byte, error) {
	raw, err := b64.Decode(s)
	if err != nil {
		return nil, sagecrypto.NewError("decode private key", err)
	}
	if _, err := decodePKCS8(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (Suite) Sign(message []byte, privSigningKey string) ([]byte, error) {
	raw, err := b64.Decode(privSigningKey)
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		return nil, sagecrypto.NewError("sign", fmt.Errorf("invalid signing key"))
	}
	return ed25519.Sign(ed25519.PrivateKey(raw), message), nil
}

func (Suite) Verify(sig, message []byte, pubSigningKey string) error {
	raw, err := b64.Decode(pubSigningKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return sagecrypto.NewError("verify", fmt.Errorf("invalid signing key"))
	}
	if !ed25519.Verify(ed25519.PublicKey(raw), message, sig) {
		return sagecrypto.NewError("verify", fmt.Errorf("signature mismatch"))
	}
	return nil
}

func (Suite) HashString(s string) []byte {
	sum := blake2b.Sum256([]byte(s))
	return sum[:]
}

func (Suite) Base64URLEncode(b []byte) string { return b64.Encode(b) }

func (Suite) Base64URLDecode(s string) ([]byte, error) { return b64.Decode(s) }

func encodeSPKI(pub *ecdh.PublicKey) ([]byte, error) {
	return encodeSPKIPublicKey(pub)
}

// encodeSPKIPublicKey marshals any public key x509 accepts (here an
// *ecdh.PublicKey from GenerateKeyPair, via encodeSPKI) into a PEM
// "PUBLIC KEY" block.
func encodeSPKIPublicKey(pub any) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, sagecrypto.NewError("marshal public key", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func encodePKCS8(priv *ecdh.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, sagecrypto.NewError("marshal private key", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func decodeSPKI(pemBytes []byte) (*ecdh.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, sagecrypto.NewError("decode public key", fmt.Errorf("invalid PEM"))
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, sagecrypto.NewError("decode public key", err)
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, sagecrypto.NewError("decode public key", fmt.Errorf("not a P-384 key"))
	}
	ecdhPub, err := ecdsaPub.ECDH()
	if err != nil {
		return nil, sagecrypto.NewError("decode public key", err)
	}
	return ecdhPub, nil
}

func decodePKCS8(pemBytes []byte) (*ecdh.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, sagecrypto.NewError("decode private key", fmt.Errorf("invalid PEM"))
	}
	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, sagecrypto.NewError("decode private key", err)
	}
	ecdsaPriv, ok := priv.(*ecdsa.PrivateKey)
	if !ok {
		return nil, sagecrypto.NewError("decode private key", fmt.Errorf("not a P-384 key"))
	}
	ecdhPriv, err := ecdsaPriv.ECDH()
	if err != nil {
		return nil, sagecrypto.NewError("decode private key", err)
	}
	return ecdhPriv, nil
}
