// Package sodium implements the default crypto.Suite: Curve25519
// authenticated boxes, XSalsa20-Poly1305 secret boxes, Ed25519
// signing, BLAKE2b-256 hashing. It is the Go equivalent of
// e3db-python's SodiumCrypto, built on golang.org/x/crypto/nacl
// instead of libsodium bindings.
package sodium

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/internal/b64"
)

// Suite is the sodium-mode implementation of crypto.Suite.
type Suite struct{}

// New returns the sodium crypto.Suite.
func New() sagecrypto.Suite { return Suite{} }

func (Suite) Mode() sagecrypto.Mode { return sagecrypto.ModeSodium }

func (Suite) GenerateKeyPair() (sagecrypto.KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return sagecrypto.KeyPair{}, sagecrypto.NewError("generate keypair", err)
	}
	return sagecrypto.KeyPair{
		Public:  b64.Encode(pub[:]),
		Private: b64.Encode(priv[:]),
	}, nil
}

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

func (Suite) RandomNonce() ([]byte, error) {
	n := make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return nil, sagecrypto.NewError("random nonce", err)
	}
	return n, nil
}

func (Suite) EncryptSecret(key, plaintext, nonce []byte) ([]byte, error) {
	var k [32]byte
	var n [24]byte
	if len(key) != 32 || len(nonce) != 24 {
		return nil, sagecrypto.NewError("encrypt secret", fmt.Errorf("bad key/nonce length"))
	}
	copy(k[:], key)
	copy(n[:], nonce)
	return secretbox.Seal(nil, plaintext, &n, &k), nil
}

func (Suite) DecryptSecret(key, ciphertext, nonce []byte) ([]byte, error) {
	var k [32]byte
	var n [24]byte
	if len(key) != 32 || len(nonce) != 24 {
		return nil, sagecrypto.NewError("decrypt secret", fmt.Errorf("bad key/nonce length"))
	}
	copy(k[:], key)
	copy(n[:], nonce)
	out, ok := secretbox.Open(nil, ciphertext, &n, &k)
	if !ok {
		return nil, sagecrypto.NewError("decrypt secret", fmt.Errorf("mac mismatch"))
	}
	return out, nil
}

func (Suite) EncryptAK(priv, pub string, ak, nonce []byte) (sagecrypto.Box, error) {
	privRaw, pubRaw, err := decodeBoxPair(priv, pub)
	if err != nil {
		return sagecrypto.Box{}, err
	}
	var n [24]byte
	if len(nonce) != 24 {
		return sagecrypto.Box{}, sagecrypto.NewError("encrypt ak", fmt.Errorf("bad nonce length"))
	}
	copy(n[:], nonce)
	ct := box.Seal(nil, ak, &n, pubRaw, privRaw)
	return sagecrypto.Box{Ciphertext: ct, Nonce: nonce}, nil
}

func (Suite) DecryptEAK(priv, pub string, ciphertext, nonce []byte) ([]byte, error) {
	privRaw, pubRaw, err := decodeBoxPair(priv, pub)
	if err != nil {
		return nil, err
	}
	var n [24]byte
	if len(nonce) != 24 {
		return nil, sagecrypto.NewError("decrypt eak", fmt.Errorf("bad nonce length"))
	}
	copy(n[:], nonce)
	out, ok := box.Open(nil, ciphertext, &n, pubRaw, privRaw)
	if !ok {
		return nil, sagecrypto.NewError("decrypt eak", fmt.Errorf("mac mismatch"))
	}
	return out, nil
}

func decodeBoxPair(priv, pub string) (privRaw, pubRaw *[32]byte, err error) {
	privBytes, err := b64.Decode(priv)
	if err != nil || len(privBytes) != 32 {
		return nil, nil, sagecrypto.NewError("decode private key", fmt.Errorf("invalid private key"))
	}
	pubBytes, err := b64.Decode(pub)
	if err != nil || len(pubBytes) != 32 {
		return nil, nil, sagecrypto.NewError("decode public key", fmt.Errorf("invalid public key"))
	}
	var pr, pu [32]byte
	copy(pr[:], privBytes)
	copy(pu[:], pubBytes)
	return &pr, &pu, nil
}

func (Suite) EncodePublicKey(raw []byte) (string, error) { return b64.Encode(raw), nil }

func (Suite) DecodePublicKey(s string) ([]byte, error) {
	raw, err := b64.Decode(s)
	if err != nil {
		return nil, sagecrypto.NewError("decode public key", err)
	}
	return raw, nil
}

func (Suite) EncodePrivateKey(raw []byte) (string, error) { return b64.Encode(raw), nil }

func (Suite) DecodePrivateKey(s string) ([]byte, error) {
	raw, err := b64.Decode(s)
	if err != nil {
		return nil, sagecrypto.NewError("decode private key", err)
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

// HashString returns BLAKE2b-256 of the UTF-8 bytes of s, raw. The
// pack's reference implementation (pynacl's generichash) defaults to a
// 32-byte digest, not the 64-byte BLAKE2b-512 one might otherwise
// assume; matching that default is what makes the TSV1 known-answer
// vector in SPEC_FULL.md/spec.md §8 reproducible.
func (Suite) HashString(s string) []byte {
	sum := blake2b.Sum256([]byte(s))
	return sum[:]
}

func (Suite) Base64URLEncode(b []byte) string { return b64.Encode(b) }

func (Suite) Base64URLDecode(s string) ([]byte, error) { return b64.Decode(s) }
