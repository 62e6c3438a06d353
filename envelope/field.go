// Package envelope implements the dotted-segment wire codecs used for
// per-field encryption and EAK transport: spec.md §4.2.
package envelope

import (
	"fmt"
	"strings"

	sagecrypto "github.com/tozny/e3db-go/crypto"
)

// Field is the decoded form of a four-segment encrypted field:
// edk.edkN.ef.efN. Each segment is raw (already Base64URL-decoded)
// bytes.
type Field struct {
	EDK  []byte // data key wrapped by the AK
	EDKN []byte // nonce for EDK
	EF   []byte // value ciphertext wrapped by the data key
	EFN  []byte // nonce for EF
}

// EncodeField renders a Field as the four-segment dotted string.
func EncodeField(s sagecrypto.Suite, f Field) string {
	return strings.Join([]string{
		s.Base64URLEncode(f.EDK),
		s.Base64URLEncode(f.EDKN),
		s.Base64URLEncode(f.EF),
		s.Base64URLEncode(f.EFN),
	}, ".")
}

// DecodeField parses a four-segment dotted string. Any segment count
// other than 4 is a CryptoError, per spec.md §3's invariant.
func DecodeField(s sagecrypto.Suite, wire string) (Field, error) {
	parts := strings.Split(wire, ".")
	if len(parts) != 4 {
		return Field{}, sagecrypto.NewError("decode field", fmt.Errorf("invalid encrypted field: expected 4 segments, got %d", len(parts)))
	}
	var raw [4][]byte
	for i, p := range parts {
		b, err := s.Base64URLDecode(p)
		if err != nil {
			return Field{}, sagecrypto.NewError("decode field", fmt.Errorf("invalid encrypted field: segment %d: %w", i, err))
		}
		if len(b) == 0 {
			return Field{}, sagecrypto.NewError("decode field", fmt.Errorf("invalid encrypted field: segment %d is empty", i))
		}
		raw[i] = b
	}
	return Field{EDK: raw[0], EDKN: raw[1], EF: raw[2], EFN: raw[3]}, nil
}

// EncryptValue implements the per-field envelope construction from
// spec.md §3: a fresh data key wraps the plaintext value, and the
// access key wraps the data key. Each field gets an independent data
// key; the AK is never applied directly to plaintext.
func EncryptValue(s sagecrypto.Suite, ak []byte, value string) (string, error) {
	dk, err := s.RandomKey()
	if err != nil {
		return "", err
	}
	efN, err := s.RandomNonce()
	if err != nil {
		return "", err
	}
	ef, err := s.EncryptSecret(dk, []byte(value), efN)
	if err != nil {
		return "", err
	}
	edkN, err := s.RandomNonce()
	if err != nil {
		return "", err
	}
	edk, err := s.EncryptSecret(ak, dk, edkN)
	if err != nil {
		return "", err
	}
	return EncodeField(s, Field{EDK: edk, EDKN: edkN, EF: ef, EFN: efN}), nil
}

// DecryptValue reverses EncryptValue: it recomputes the data key from
// the AK, then the plaintext value from the data key. A MAC failure at
// either stage is a CryptoError.
func DecryptValue(s sagecrypto.Suite, ak []byte, wire string) (string, error) {
	f, err := DecodeField(s, wire)
	if err != nil {
		return "", err
	}
	dk, err := s.DecryptSecret(ak, f.EDK, f.EDKN)
	if err != nil {
		return "", sagecrypto.NewError("decrypt field", fmt.Errorf("unwrap data key: %w", err))
	}
	plain, err := s.DecryptSecret(dk, f.EF, f.EFN)
	if err != nil {
		return "", sagecrypto.NewError("decrypt field", fmt.Errorf("unwrap value: %w", err))
	}
	return string(plain), nil
}
