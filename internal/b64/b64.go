// Package b64 implements the unpadded Base64URL convention used
// throughout the wire envelopes: padding is stripped on encode and
// re-added on decode, so implementations never have to reason about
// "=" characters appearing in dotted-segment envelopes.
package b64

import (
	"encoding/base64"
	"strings"
)

// Encode returns the unpadded Base64URL encoding of b.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode reverses Encode. It tolerates input that still carries "="
// padding, since some callers round-trip through generic JSON/base64
// libraries that don't strip it.
func Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
