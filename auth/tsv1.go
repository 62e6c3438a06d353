// Package auth implements RequestSigner (TSV1, spec.md §4.8) and
// TokenAuthenticator (spec.md §4.9). Grounded on
// original_source/e3db/tsv1_auth.py's E3DBTSV1Auth for the canonical
// string and header construction, and auth.py's requests-Basic-auth
// client-credentials flow for the bearer token holder.
package auth

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	sagecrypto "github.com/tozny/e3db-go/crypto"
)

const (
	hashingAlgorithm     = "BLAKE2B"
	signatureType        = "ED25519"
	authenticationMethod = "TSV1-" + signatureType + "-" + hashingAlgorithm
)

// Signer is the stateless TSV1 RequestSigner. It holds only the
// ephemeral or registered key material needed to sign; no shared
// mutable state beyond that, per spec.md §4.8.
type Signer struct {
	suite          sagecrypto.Suite
	pubSigningKey  string
	privSigningKey string
	clientID       string

	// now/newNonce are overridden in tests for deterministic output;
	// production callers get time.Now and a fresh UUID v4.
	now      func() time.Time
	newNonce func() string
}

// NewSigner constructs a Signer for clientID using the given Ed25519
// signing keypair.
func NewSigner(suite sagecrypto.Suite, pubSigningKey, privSigningKey, clientID string) *Signer {
	return &Signer{
		suite:          suite,
		pubSigningKey:  pubSigningKey,
		privSigningKey: privSigningKey,
		clientID:       clientID,
		now:            time.Now,
		newNonce:       newUUID,
	}
}

// AuthorizationHeader computes the TSV1 Authorization header value for
// a request with the given method, raw (already percent-encoded)
// path, and query parameters.
func (s *Signer) AuthorizationHeader(method, rawPath string, query url.Values) (string, error) {
	ts := s.now().Unix()
	nonce := s.newNonce()
	return s.sign(method, rawPath, query, ts, nonce)
}

func (s *Signer) sign(method, rawPath string, query url.Values, ts int64, nonce string) (string, error) {
	headerString := fmt.Sprintf("%s; %s; %d; %s; uid:%s", authenticationMethod, s.pubSigningKey, ts, nonce, s.clientID)
	canonicalQuery := canonicalizeQuery(query)
	stringToHash := fmt.Sprintf("%s; %s; %s; %s", rawPath, canonicalQuery, method, headerString)

	hash := s.suite.HashString(stringToHash)
	rawSig, err := s.suite.Sign(hash, s.privSigningKey)
	if err != nil {
		return "", fmt.Errorf("auth: sign request: %w", err)
	}
	sigB64 := s.suite.Base64URLEncode(rawSig)

	return headerString + "; " + sigB64, nil
}

// canonicalizeQuery sorts query parameters lexicographically by name
// (ties broken by value), preserves blank values, and URL-encodes the
// result — matching Python's urlencode(sorted(parse_qsl(...,
// keep_blank_values=True))).
func canonicalizeQuery(query url.Values) string {
	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range query {
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = url.QueryEscape(p.k) + "=" + url.QueryEscape(p.v)
	}
	return strings.Join(parts, "&")
}
