package record_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tozny/e3db-go/akcache"
	"github.com/tozny/e3db-go/apierr"
	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/crypto/sodium"
	"github.com/tozny/e3db-go/record"
)

type fakeServer struct {
	suite   sagecrypto.Suite
	eaks    map[string]akcache.EAK
	pubKeys map[string]string
}

func newFakeServer(suite sagecrypto.Suite) *fakeServer {
	return &fakeServer{suite: suite, eaks: make(map[string]akcache.EAK), pubKeys: make(map[string]string)}
}

func key(w, u, r, t string) string { return w + "|" + u + "|" + r + "|" + t }

func (f *fakeServer) FetchEAK(_ context.Context, w, u, r, t string) (akcache.EAK, error) {
	e, ok := f.eaks[key(w, u, r, t)]
	if !ok {
		return akcache.EAK{}, &apierr.LookupError{What: "eak"}
	}
	return e, nil
}

func (f *fakeServer) PutEAK(_ context.Context, w, u, r, t string, ciphertext, nonce []byte) error {
	f.eaks[key(w, u, r, t)] = akcache.EAK{Ciphertext: ciphertext, Nonce: nonce, AuthorizerPublicKey: f.pubKeys[w]}
	return nil
}

func (f *fakeServer) DeleteEAK(_ context.Context, w, u, r, t string) error {
	delete(f.eaks, key(w, u, r, t))
	return nil
}

func (f *fakeServer) PublicKey(_ context.Context, clientID string) (string, error) {
	pub, ok := f.pubKeys[clientID]
	if !ok {
		return "", &apierr.LookupError{What: "client"}
	}
	return pub, nil
}

func TestRecordEncryptDecryptRoundTrip(t *testing.T) {
	suite := sodium.New()
	kp, err := suite.GenerateKeyPair()
	require.NoError(t, err)

	srv := newFakeServer(suite)
	srv.pubKeys["alice"] = kp.Public

	aks := akcache.New(suite, srv, "alice", kp.Public, kp.Private, nil)
	rc := record.New(suite, aks, "alice")

	plain := record.Record{
		Meta: record.Meta{WriterID: "alice", UserID: "alice", RecordType: "contact"},
		Data: map[string]string{"name": "Ada Lovelace", "email": "ada@example.com"},
	}

	enc, err := rc.Encrypt(context.Background(), plain)
	require.NoError(t, err)
	require.NotEqual(t, plain.Data["name"], enc.Data["name"])

	dec, err := rc.Decrypt(context.Background(), enc)
	require.NoError(t, err)
	require.Equal(t, plain.Data, dec.Data)
}

func TestRecordDecryptSharedReadUsesReaderAK(t *testing.T) {
	suite := sodium.New()
	writerKP, err := suite.GenerateKeyPair()
	require.NoError(t, err)
	readerKP, err := suite.GenerateKeyPair()
	require.NoError(t, err)

	srv := newFakeServer(suite)
	srv.pubKeys["writer"] = writerKP.Public
	srv.pubKeys["reader"] = readerKP.Public

	writerAKs := akcache.New(suite, srv, "writer", writerKP.Public, writerKP.Private, nil)
	writerRC := record.New(suite, writerAKs, "writer")

	plain := record.Record{
		Meta: record.Meta{WriterID: "writer", UserID: "writer", RecordType: "note"},
		Data: map[string]string{"body": "hello reader"},
	}
	enc, err := writerRC.Encrypt(context.Background(), plain)
	require.NoError(t, err)

	require.NoError(t, writerAKs.PutAccessKey(context.Background(), "writer", "writer", "reader", "note", mustAK(t, writerAKs, "writer", "note")))

	readerAKs := akcache.New(suite, srv, "reader", readerKP.Public, readerKP.Private, nil)
	readerRC := record.New(suite, readerAKs, "reader")

	dec, err := readerRC.Decrypt(context.Background(), enc)
	require.NoError(t, err)
	require.Equal(t, plain.Data, dec.Data)
}

func mustAK(t *testing.T, aks *akcache.Manager, writerID, recordType string) []byte {
	t.Helper()
	ak, err := aks.GetAccessKey(context.Background(), writerID, writerID, writerID, recordType)
	require.NoError(t, err)
	require.NotNil(t, ak)
	return ak
}

func TestRecordDecryptWithoutAccessKeyFails(t *testing.T) {
	suite := sodium.New()
	kp, err := suite.GenerateKeyPair()
	require.NoError(t, err)

	srv := newFakeServer(suite)
	srv.pubKeys["alice"] = kp.Public
	aks := akcache.New(suite, srv, "bob", kp.Public, kp.Private, nil)
	rc := record.New(suite, aks, "bob")

	enc := record.Record{
		Meta: record.Meta{WriterID: "alice", UserID: "alice", RecordType: "contact"},
		Data: map[string]string{"name": "ciphertext-looking-string"},
	}
	_, err = rc.Decrypt(context.Background(), enc)
	require.Error(t, err)
}
