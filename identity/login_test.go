package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tozny/e3db-go/crypto/sodium"
	"github.com/tozny/e3db-go/note"
)

// TestLoginFullExchange drives Login against a fake server that plays
// every leg of the PKCE exchange plus the final credential-note fetch,
// verifying the Identity returned carries the stored client config
// through untouched.
func TestLoginFullExchange(t *testing.T) {
	suite := sodium.New()

	writerKP, err := suite.GenerateKeyPair()
	require.NoError(t, err)
	writerSigningKP, err := suite.GenerateSigningKeyPair()
	require.NoError(t, err)

	storedConfig := `{"client_id":"abc-123","api_url":"https://example.invalid"}`
	identityConfig := `{"realm_name":"realtest","realm_domain":"realtest","app_name":"myapp","api_url":"https://example.invalid","user_id":"u1"}`

	var mux *http.ServeMux
	var readerNoteName string
	var readerEncryptionPub string
	var readerSigningPub string

	mux = http.NewServeMux()
	mux.HandleFunc("/v1/identity/info/realm/realtest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RealmInfo{Name: "RealTest", Domain: "realtest", BrokerID: "broker-1"})
	})
	mux.HandleFunc("/v1/identity/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		require.Equal(t, "realtest", body["realm_name"])
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"type":       "continue",
			"action_url": "http://" + r.Host + "/action",
		})
	})
	mux.HandleFunc("/action", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		readerEncryptionPub = r.Form.Get("public_key")
		readerSigningPub = r.Form.Get("public_signing_key")
		require.NotEmpty(t, readerEncryptionPub)
		require.NotEmpty(t, readerSigningPub)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"type": "fetch",
			"context": map[string]string{
				"session_code":    "sc",
				"execution":       "ex",
				"tab_id":          "tab",
				"client_id":       "tozid-client",
				"auth_session_id": "asid",
			},
		})
	})
	mux.HandleFunc("/v1/identity/tozid/redirect", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		require.Equal(t, "realtest", body["realm_name"])
		require.NotEmpty(t, body["code_verifier"])
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Agent{AccessToken: "access-tok", TokenType: "bearer"})
	})
	mux.HandleFunc("/v2/storage/notes", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "access-tok", r.Header.Get(tozidLoginHeader))
		require.Equal(t, readerNoteName, r.URL.Query().Get("id_string"))

		n, err := note.Create(suite, note.WriterIdentity{
			EncryptionPub:  writerKP.Public,
			EncryptionPriv: writerKP.Private,
			SigningPub:     writerSigningKP.Public,
			SigningPriv:    writerSigningKP.Private,
		}, readerEncryptionPub, readerSigningPub, map[string]string{
			"storage": storedConfig,
			"config":  identityConfig,
		}, note.Options{})
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(n)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	readerNoteName, _, _, err = DeriveNoteCredentials(suite, "fred", "correcthorsebatterystaple", "RealTest")
	require.NoError(t, err)

	identity, err := Login(context.Background(), srv.Client(), suite, "fred", "correcthorsebatterystaple", "realtest", "myapp", srv.URL)
	require.NoError(t, err)
	require.JSONEq(t, storedConfig, string(identity.ClientConfig))
	require.JSONEq(t, identityConfig, string(identity.IdentityConfig))
	require.Equal(t, "access-tok", identity.Agent.AccessToken)
	require.Equal(t, "RealTest", identity.RealmName)
}

func TestGetPublicRealmInfoNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := GetPublicRealmInfo(context.Background(), srv.Client(), srv.URL, "missing")
	require.Error(t, err)
}
