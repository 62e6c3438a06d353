// Package note implements NoteCrypto (spec.md §4.6): a self-contained,
// anonymously-readable encrypted payload signed by its writer. Every
// field is wrapped in the same per-field envelope as a record, with
// the plaintext string extended to carry a signature before
// encryption, so decrypting a note never needs server-side
// authorization — only the reader's private key.
package note

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tozny/e3db-go/apierr"
	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/envelope"
	"github.com/tozny/e3db-go/record"
)

// SignatureVersion identifies the `version;salt;len;sig||value` field
// signing scheme. It is a fixed constant, not derived per-note.
const SignatureVersion = "e7737e7c-1637-511e-8bab-93c4f3e26fd9"

// Keys carries the key material needed to address and unwrap a note.
type Keys struct {
	Mode                 string `json:"mode"`
	RecipientSigningKey  string `json:"recipient_signing_key"`
	WriterSigningKey     string `json:"writer_signing_key"`
	WriterEncryptionKey  string `json:"writer_encryption_key"`
	EncryptedAccessKey   string `json:"encrypted_access_key"`
}

// Options carries the addressing and lifecycle metadata that travels
// alongside a note's encrypted data.
type Options struct {
	IDString   string            `json:"id_string,omitempty"`
	MaxViews   int               `json:"max_views,omitempty"`
	Expiration *time.Time        `json:"expiration,omitempty"`
	Type       string            `json:"type,omitempty"`
	Plain      map[string]string `json:"plain,omitempty"`
	FileMeta   *record.FileMeta  `json:"file_meta,omitempty"`
	EACP       any               `json:"eacp,omitempty"`
}

// Note is the wire-level shape from spec.md §3.
type Note struct {
	Data      map[string]string `json:"data"`
	Keys      Keys              `json:"note_keys"`
	Options   Options           `json:"note_options"`
	Signature string            `json:"signature"`
	NoteID    string            `json:"note_id,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

// WriterIdentity bundles the key material a note's writer holds: an
// encryption keypair (to seal the AK for the reader, and to be
// published on the note so the reader knows who to expect it from)
// and a signing keypair (to authenticate every field).
type WriterIdentity struct {
	EncryptionPub  string
	EncryptionPriv string
	SigningPub     string
	SigningPriv    string
}

// Create builds a Note addressed to readerEncryptionPub /
// recipientSigningPub, signing every field with writer.SigningPriv.
func Create(suite sagecrypto.Suite, writer WriterIdentity, readerEncryptionPub, recipientSigningPub string, data map[string]string, opts Options) (Note, error) {
	ak, err := suite.RandomKey()
	if err != nil {
		return Note{}, err
	}
	nonce, err := suite.RandomNonce()
	if err != nil {
		return Note{}, err
	}
	box, err := suite.EncryptAK(writer.EncryptionPriv, readerEncryptionPub, ak, nonce)
	if err != nil {
		return Note{}, err
	}

	salt := uuid.NewString()

	encData := make(map[string]string, len(data))
	for key, value := range data {
		signed, err := signField(suite, writer.SigningPriv, salt, key, value)
		if err != nil {
			return Note{}, err
		}
		wire, err := envelope.EncryptValue(suite, ak, signed)
		if err != nil {
			return Note{}, fmt.Errorf("note: encrypt field %q: %w", key, err)
		}
		encData[key] = wire
	}

	signature, err := signField(suite, writer.SigningPriv, salt, "signature", "")
	if err != nil {
		return Note{}, err
	}

	return Note{
		Data: encData,
		Keys: Keys{
			Mode:                string(suite.Mode()),
			RecipientSigningKey: recipientSigningPub,
			WriterSigningKey:    writer.SigningPub,
			WriterEncryptionKey: writer.EncryptionPub,
			EncryptedAccessKey:  envelope.EncodeEAK(suite, envelope.EAK{Ciphertext: box.Ciphertext, Nonce: box.Nonce}),
		},
		Options:   opts,
		Signature: signature,
	}, nil
}

// signField implements the per-field signing construction from
// spec.md §4.6: message = hashString(salt||key||value), sig =
// Ed25519_sign(message, priv), wire = "version;salt;len(sig);sig" +
// value (value omitted entirely when empty, as for the note's own
// top-level "signature" field).
func signField(suite sagecrypto.Suite, signingPriv, salt, key, value string) (string, error) {
	message := suite.HashString(salt + key + value)
	rawSig, err := suite.Sign(message, signingPriv)
	if err != nil {
		return "", fmt.Errorf("note: sign field %q: %w", key, err)
	}
	sigB64 := suite.Base64URLEncode(rawSig)
	return fmt.Sprintf("%s;%s;%d;%s%s", SignatureVersion, salt, len(sigB64), sigB64, value), nil
}

// DecryptOptions controls Decrypt's signature verification.
type DecryptOptions struct {
	// VerifySignature turns on per-field signature verification. The
	// zero value (false) skips verification, so DecryptOptions{}
	// behaves like DecryptSkipVerification; DefaultDecryptOptions
	// sets it to true.
	VerifySignature bool
}

// DecryptSkipVerification is shorthand for callers that explicitly
// accept an unverified note, per spec.md §4.6's escape hatch.
var DecryptSkipVerification = DecryptOptions{VerifySignature: false}

// DefaultDecryptOptions verifies every field's signature.
var DefaultDecryptOptions = DecryptOptions{VerifySignature: true}

// Decrypt recovers the note's plaintext fields using readerEncryptionPriv
// to unwrap the AK. Signature verification runs against the note's
// WriterSigningKey unless opts disables it.
func Decrypt(_ context.Context, suite sagecrypto.Suite, n Note, readerEncryptionPriv string, opts DecryptOptions) (map[string]string, error) {
	eak, err := envelope.DecodeEAK(suite, n.Keys.EncryptedAccessKey)
	if err != nil {
		return nil, err
	}
	ak, err := suite.DecryptEAK(readerEncryptionPriv, n.Keys.WriterEncryptionKey, eak.Ciphertext, eak.Nonce)
	if err != nil {
		return nil, fmt.Errorf("note: unwrap access key: %w", err)
	}

	out := make(map[string]string, len(n.Data))
	for key, wire := range n.Data {
		signed, err := envelope.DecryptValue(suite, ak, wire)
		if err != nil {
			return nil, fmt.Errorf("note: decrypt field %q: %w", key, err)
		}
		value, err := verifyField(suite, n.Keys.WriterSigningKey, key, signed, opts)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// verifyField parses "version;salt;len;sig||value" and checks sig
// over hashString(salt||key||value) using the writer's signing key.
func verifyField(suite sagecrypto.Suite, writerSigningKey, key, signed string, opts DecryptOptions) (string, error) {
	parts := strings.SplitN(signed, ";", 4)
	if len(parts) != 4 {
		if !opts.VerifySignature {
			return signed, nil
		}
		return "", &apierr.NoteValidationError{Reason: fmt.Sprintf("field %q missing signature", key)}
	}
	salt, lenStr, rest := parts[1], parts[2], parts[3]
	sigLen, err := strconv.Atoi(lenStr)
	if err != nil || sigLen < 0 || sigLen > len(rest) {
		if !opts.VerifySignature {
			return rest, nil
		}
		return "", &apierr.NoteValidationError{Reason: fmt.Sprintf("field %q has malformed signature length", key)}
	}
	sigB64, value := rest[:sigLen], rest[sigLen:]

	if !opts.VerifySignature {
		return value, nil
	}

	rawSig, err := suite.Base64URLDecode(sigB64)
	if err != nil {
		return "", &apierr.NoteValidationError{Reason: fmt.Sprintf("field %q has unparsable signature: %v", key, err)}
	}
	message := suite.HashString(salt + key + value)
	if err := suite.Verify(rawSig, message, writerSigningKey); err != nil {
		return "", &apierr.NoteValidationError{Reason: fmt.Sprintf("field %q signature verification failed", key)}
	}
	return value, nil
}
