package envelope

import (
	"fmt"
	"strings"

	sagecrypto "github.com/tozny/e3db-go/crypto"
)

// EAK is the decoded form of a two-segment encrypted access key:
// ciphertext.nonce.
type EAK struct {
	Ciphertext []byte
	Nonce      []byte
}

// EncodeEAK renders an EAK as "ciphertext.nonce".
func EncodeEAK(s sagecrypto.Suite, e EAK) string {
	return strings.Join([]string{
		s.Base64URLEncode(e.Ciphertext),
		s.Base64URLEncode(e.Nonce),
	}, ".")
}

// DecodeEAK parses a two-segment dotted string. Any segment count
// other than 2 is a CryptoError, per spec.md §3.
func DecodeEAK(s sagecrypto.Suite, wire string) (EAK, error) {
	parts := strings.Split(wire, ".")
	if len(parts) != 2 {
		return EAK{}, sagecrypto.NewError("decode eak", fmt.Errorf("invalid access key format: expected 2 segments, got %d", len(parts)))
	}
	ct, err := s.Base64URLDecode(parts[0])
	if err != nil {
		return EAK{}, sagecrypto.NewError("decode eak", fmt.Errorf("invalid access key format: ciphertext: %w", err))
	}
	nonce, err := s.Base64URLDecode(parts[1])
	if err != nil {
		return EAK{}, sagecrypto.NewError("decode eak", fmt.Errorf("invalid access key format: nonce: %w", err))
	}
	if len(ct) == 0 || len(nonce) == 0 {
		return EAK{}, sagecrypto.NewError("decode eak", fmt.Errorf("invalid access key format: empty segment"))
	}
	return EAK{Ciphertext: ct, Nonce: nonce}, nil
}

// Wrap seals ak from granterPriv to readerPub and returns the
// "ciphertext.nonce" wire form.
func Wrap(s sagecrypto.Suite, granterPriv, readerPub string, ak []byte) (string, error) {
	nonce, err := s.RandomNonce()
	if err != nil {
		return "", err
	}
	box, err := s.EncryptAK(granterPriv, readerPub, ak, nonce)
	if err != nil {
		return "", err
	}
	return EncodeEAK(s, EAK{Ciphertext: box.Ciphertext, Nonce: box.Nonce}), nil
}

// Unwrap decodes and opens an EAK wire string, recovering the raw AK.
func Unwrap(s sagecrypto.Suite, readerPriv, granterPub, wire string) ([]byte, error) {
	e, err := DecodeEAK(s, wire)
	if err != nil {
		return nil, err
	}
	return s.DecryptEAK(readerPriv, granterPub, e.Ciphertext, e.Nonce)
}
