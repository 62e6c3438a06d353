package storage_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/crypto/sodium"
	"github.com/tozny/e3db-go/envelope"
	"github.com/tozny/e3db-go/note"
	"github.com/tozny/e3db-go/query"
	"github.com/tozny/e3db-go/record"
	"github.com/tozny/e3db-go/share"
	"github.com/tozny/e3db-go/storage"
)

func noAuth(context.Context, *http.Request) error { return nil }

func TestFetchEAKRoundTrip(t *testing.T) {
	suite := sodium.New()
	ak := []byte("0123456789abcdef0123456789abcdef")[:32]
	wire := envelope.EncodeEAK(suite, envelope.EAK{Ciphertext: ak, Nonce: []byte("nonce-bytes-here-24byteslong")[:24]})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/storage/access_keys/w/u/r/t", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"eak":                  wire,
			"authorizer_public_key": "pubkey",
		})
	}))
	defer srv.Close()

	s := storage.New(srv.Client(), srv.URL, suite, noAuth, nil)
	eak, err := s.FetchEAK(context.Background(), "w", "u", "r", "t")
	require.NoError(t, err)
	require.Equal(t, "pubkey", eak.AuthorizerPublicKey)
	require.Len(t, eak.Nonce, 24)
}

func TestFetchEAKNotFoundMapsToLookupError(t *testing.T) {
	suite := sodium.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := storage.New(srv.Client(), srv.URL, suite, noAuth, nil)
	_, err := s.FetchEAK(context.Background(), "w", "u", "r", "t")
	require.Error(t, err)
}

func TestUpdateRecordConflictMapsToConflictError(t *testing.T) {
	var suite sagecrypto.Suite = sodium.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("stale version"))
	}))
	defer srv.Close()

	s := storage.New(srv.Client(), srv.URL, suite, noAuth, nil)
	_, err := s.UpdateRecord(context.Background(), record.Record{Meta: record.Meta{RecordID: "r1", Version: "old"}})
	require.Error(t, err)
}

func TestPutPolicyEncodesGrant(t *testing.T) {
	suite := sodium.New()
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := storage.New(srv.Client(), srv.URL, suite, noAuth, nil)
	err := s.PutPolicy(context.Background(), "u", "w", "r", "t", share.ActionAllow, share.GrantRead)
	require.NoError(t, err)
	require.Equal(t, "/v1/storage/policy/u/w/r/t", gotPath)
	allow, ok := gotBody["allow"].([]any)
	require.True(t, ok)
	require.Len(t, allow, 1)
}

func TestWriteThenReadRecordRoundTrip(t *testing.T) {
	suite := sodium.New()
	stored := record.Record{
		Meta: record.Meta{RecordID: "r1", WriterID: "w", UserID: "u", RecordType: "t", Version: "v1"},
		Data: map[string]string{"field": "wire-value"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stored)
	}))
	defer srv.Close()

	s := storage.New(srv.Client(), srv.URL, suite, noAuth, nil)

	written, err := s.WriteRecord(context.Background(), record.Record{Meta: record.Meta{RecordType: "t"}, Data: map[string]string{"field": "wire-value"}})
	require.NoError(t, err)
	require.Equal(t, "r1", written.Meta.RecordID)

	read, err := s.ReadRecord(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, stored, read)
}

func TestSearchPostsParamsAndDecodesResult(t *testing.T) {
	suite := sodium.New()
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(query.Result{
			Records:      []record.Record{{Meta: record.Meta{RecordID: "r1"}}},
			NextToken:    5,
			TotalResults: 1,
		})
	}))
	defer srv.Close()

	s := storage.New(srv.Client(), srv.URL, suite, noAuth, nil)
	result, err := s.Search(context.Background(), query.New())
	require.NoError(t, err)
	require.Equal(t, "/v1/storage/records/search", gotPath)
	require.Equal(t, "OR", gotBody["condition"])
	require.Len(t, result.Records, 1)
	require.Equal(t, 5, result.NextToken)
}

func TestUploadThenDownloadFileRoundTrip(t *testing.T) {
	suite := sodium.New()
	var uploaded []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			uploaded = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			w.Write(uploaded)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "enc.bin")
	require.NoError(t, os.WriteFile(srcPath, []byte("encrypted-bytes"), 0600))

	s := storage.New(srv.Client(), srv.URL, suite, noAuth, nil)
	require.NoError(t, s.UploadFile(context.Background(), srv.URL, srcPath))

	dstPath := filepath.Join(dir, "downloaded.bin")
	require.NoError(t, s.DownloadFile(context.Background(), srv.URL, dstPath))

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	require.Equal(t, "encrypted-bytes", string(got))
}

func TestWriteThenReadNoteRoundTrip(t *testing.T) {
	suite := sodium.New()
	writerKP, err := suite.GenerateKeyPair()
	require.NoError(t, err)
	writerSigningKP, err := suite.GenerateSigningKeyPair()
	require.NoError(t, err)
	readerKP, err := suite.GenerateKeyPair()
	require.NoError(t, err)
	readerSigningKP, err := suite.GenerateSigningKeyPair()
	require.NoError(t, err)

	n, err := note.Create(suite, note.WriterIdentity{
		EncryptionPub:  writerKP.Public,
		EncryptionPriv: writerKP.Private,
		SigningPub:     writerSigningKP.Public,
		SigningPriv:    writerSigningKP.Private,
	}, readerKP.Public, readerSigningKP.Public, map[string]string{"hello": "world"}, note.Options{IDString: "my-note"})
	require.NoError(t, err)

	var stored note.Note
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			json.NewDecoder(r.Body).Decode(&stored)
			json.NewEncoder(w).Encode(stored)
		case http.MethodGet:
			require.Equal(t, "my-note", r.URL.Query().Get("id_string"))
			json.NewEncoder(w).Encode(stored)
		}
	}))
	defer srv.Close()

	s := storage.New(srv.Client(), srv.URL, suite, noAuth, nil)
	_, err = s.WriteNote(context.Background(), n)
	require.NoError(t, err)

	fetched, err := s.ReadNote(context.Background(), "my-note")
	require.NoError(t, err)

	decrypted, err := note.Decrypt(context.Background(), suite, fetched, readerKP.Private, note.DefaultDecryptOptions)
	require.NoError(t, err)
	require.Equal(t, "world", decrypted["hello"])
}
