package e3db_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tozny/e3db-go/config"
	"github.com/tozny/e3db-go/crypto/sodium"
	"github.com/tozny/e3db-go/e3db"
	"github.com/tozny/e3db-go/record"
)

// fakeServer is a minimal in-memory storage.HTTPStorage-compatible
// server used to exercise e3db.Client end to end without a real
// e3db deployment.
type fakeServer struct {
	mu      sync.Mutex
	records map[string]record.Record
	eaks    map[string]map[string]string
	pubKeys map[string]string
	nextID  int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		records: make(map[string]record.Record),
		eaks:    make(map[string]map[string]string),
		pubKeys: make(map[string]string),
	}
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/storage/records", func(w http.ResponseWriter, r *http.Request) {
		var rec record.Record
		json.NewDecoder(r.Body).Decode(&rec)
		f.mu.Lock()
		f.nextID++
		rec.Meta.RecordID = strconv.Itoa(f.nextID)
		f.records[rec.Meta.RecordID] = rec
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	})
	mux.HandleFunc("/v1/storage/records/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/storage/records/"):]
		f.mu.Lock()
		rec, ok := f.records[id]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	})
	mux.HandleFunc("/v1/storage/clients/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/storage/clients/"):]
		f.mu.Lock()
		pub := f.pubKeys[id]
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"client_id": id, "public_key": pub})
	})
	mux.HandleFunc("/v1/storage/policy/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/storage/access_keys/", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[len("/v1/storage/access_keys/"):]
		switch r.Method {
		case http.MethodPut:
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			f.eaks[key] = body
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			f.mu.Lock()
			body, ok := f.eaks[key]
			f.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(body)
		}
	})
	return mux
}

func TestClientWriteThenReadRoundTrip(t *testing.T) {
	suite := sodium.New()
	kp, err := suite.GenerateKeyPair()
	require.NoError(t, err)
	signKP, err := suite.GenerateSigningKeyPair()
	require.NoError(t, err)

	fs := newFakeServer()
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	fs.pubKeys["self"] = kp.Public

	profile := &config.Profile{
		ClientID:          "self",
		PublicKey:         kp.Public,
		PrivateKey:        kp.Private,
		PublicSigningKey:  signKP.Public,
		PrivateSigningKey: signKP.Private,
		APIURL:            srv.URL,
	}

	client, err := e3db.New(profile, suite, srv.Client(), nil)
	require.NoError(t, err)

	written, err := client.Write(context.Background(), "contact", map[string]string{"name": "Ada"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, written.Meta.RecordID)

	read, err := client.Read(context.Background(), written.Meta.RecordID)
	require.NoError(t, err)
	require.Equal(t, "Ada", read.Data["name"])
}

func TestNewRequiresAPIKeyOrSigningKeypair(t *testing.T) {
	suite := sodium.New()
	_, err := e3db.New(&config.Profile{
		ClientID:   "self",
		PublicKey:  "pub",
		PrivateKey: "priv",
		APIURL:     "https://example.invalid",
	}, suite, nil, nil)
	require.Error(t, err)
}
