package identity

import (
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/curve25519"

	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/internal/b64"
)

// deriveBoxKeyPair turns a 32-byte seed into a Curve25519 keypair by
// treating the seed as the private scalar directly, mirroring how
// nacl.public.PrivateKey is constructed from raw bytes in the Python
// original. curve25519.X25519 performs the standard clamping.
func deriveBoxKeyPair(seed []byte) (sagecrypto.KeyPair, error) {
	if len(seed) != 32 {
		return sagecrypto.KeyPair{}, fmt.Errorf("derive box keypair: seed must be 32 bytes, got %d", len(seed))
	}
	pub, err := curve25519.X25519(seed, curve25519.Basepoint)
	if err != nil {
		return sagecrypto.KeyPair{}, fmt.Errorf("derive box keypair: %w", err)
	}
	return sagecrypto.KeyPair{
		Public:  b64.Encode(pub),
		Private: b64.Encode(seed),
	}, nil
}

// deriveSigningKeyPair turns a 32-byte seed into an Ed25519 keypair via
// the standard seed-expansion defined by RFC 8032, matching
// nacl.signing.SigningKey's seeded constructor.
func deriveSigningKeyPair(seed []byte) (sagecrypto.SigningKeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return sagecrypto.SigningKeyPair{}, fmt.Errorf("derive signing keypair: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return sagecrypto.SigningKeyPair{
		Public:  b64.Encode(pub),
		Private: b64.Encode(priv),
	}, nil
}
