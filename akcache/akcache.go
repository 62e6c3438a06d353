// Package akcache implements the AccessKeyManager from spec.md §4.4:
// a process-local cache of access keys this client is already
// authorized to read, backed by an external HTTP/JSON collaborator
// for everything the cache can't answer. Grounded on the sage corpus's
// sync.RWMutex-guarded map pattern (crypto/storage/memory.go's
// memoryKeyStorage) generalized from a key store to a (writer, user,
// type) keyed cache.
package akcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tozny/e3db-go/apierr"
	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/internal/obs"
)

// EAK is what the external collaborator returns for a wrapped access
// key: the sealed bytes plus whichever public key sealed them, so the
// caller can identify which suite curve to unwrap with.
type EAK struct {
	Ciphertext          []byte
	Nonce               []byte
	AuthorizerPublicKey string
}

// Server is the narrow HTTP surface AccessKeyManager depends on. A
// concrete storage.HTTPStorage satisfies it; tests substitute a fake.
type Server interface {
	FetchEAK(ctx context.Context, writerID, userID, readerID, recordType string) (EAK, error)
	PutEAK(ctx context.Context, writerID, userID, readerID, recordType string, ciphertext, nonce []byte) error
	DeleteEAK(ctx context.Context, writerID, userID, readerID, recordType string) error
	PublicKey(ctx context.Context, clientID string) (string, error)
}

type cacheKey struct {
	WriterID, UserID, RecordType string
}

// Manager is the AccessKeyManager. It owns the cache, so it is
// constructed once per client rather than as a process-wide singleton,
// per spec.md §9's "cache is logically per-client" design note.
type Manager struct {
	suite    sagecrypto.Suite
	server   Server
	selfID   string
	selfPub  string
	selfPriv string
	rec      obs.Recorder

	mu    sync.RWMutex
	cache map[cacheKey][]byte
}

// New constructs a Manager for a client identified by selfID, holding
// its own (selfPub, selfPriv) keypair. rec may be nil, in which case
// it behaves as obs.NoopRecorder.
func New(suite sagecrypto.Suite, server Server, selfID, selfPub, selfPriv string, rec obs.Recorder) *Manager {
	if rec == nil {
		rec = obs.NoopRecorder{}
	}
	return &Manager{
		suite:    suite,
		server:   server,
		selfID:   selfID,
		selfPub:  selfPub,
		selfPriv: selfPriv,
		rec:      rec,
		cache:    make(map[cacheKey][]byte),
	}
}

// GetAccessKey implements spec.md §4.4's getAccessKey: cache hit, else
// fetch + unwrap + cache. A not-found EAK returns (nil, nil) so the
// caller may create one; any other failure is returned as an error.
func (m *Manager) GetAccessKey(ctx context.Context, writerID, userID, readerID, recordType string) ([]byte, error) {
	key := cacheKey{writerID, userID, recordType}

	m.mu.RLock()
	if ak, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		m.rec.AKCacheHit()
		return ak, nil
	}
	m.mu.RUnlock()
	m.rec.AKCacheMiss()

	start := time.Now()
	eak, err := m.server.FetchEAK(ctx, writerID, userID, readerID, recordType)
	m.rec.EAKFetchDuration(time.Since(start))
	if err != nil {
		var lookup *apierr.LookupError
		if errors.As(err, &lookup) {
			return nil, nil
		}
		return nil, err
	}

	ak, err := m.suite.DecryptEAK(m.selfPriv, eak.AuthorizerPublicKey, eak.Ciphertext, eak.Nonce)
	if err != nil {
		return nil, fmt.Errorf("akcache: unwrap eak: %w", err)
	}

	m.mu.Lock()
	m.cache[key] = ak
	m.mu.Unlock()
	return ak, nil
}

// PutAccessKey implements spec.md §4.4's putAccessKey: look up the
// reader's public key, wrap ak under it, PUT to the server, and cache
// locally only when the reader is this client (readerID equals the
// client ID this Manager was built for).
func (m *Manager) PutAccessKey(ctx context.Context, writerID, userID, readerID, recordType string, ak []byte) error {
	readerPub, err := m.readerPublicKey(ctx, readerID)
	if err != nil {
		return err
	}

	nonce, err := m.suite.RandomNonce()
	if err != nil {
		return err
	}
	box, err := m.suite.EncryptAK(m.selfPriv, readerPub, ak, nonce)
	if err != nil {
		return err
	}

	if err := m.server.PutEAK(ctx, writerID, userID, readerID, recordType, box.Ciphertext, box.Nonce); err != nil {
		return err
	}

	if readerID == m.selfID {
		m.mu.Lock()
		m.cache[cacheKey{writerID, userID, recordType}] = ak
		m.mu.Unlock()
	}
	return nil
}

// DeleteAccessKey implements spec.md §4.4's deleteAccessKey: delete on
// the server, then invalidate the local cache entry when the reader
// being revoked is self.
func (m *Manager) DeleteAccessKey(ctx context.Context, writerID, userID, readerID, recordType string) error {
	if err := m.server.DeleteEAK(ctx, writerID, userID, readerID, recordType); err != nil {
		return err
	}
	if readerID == m.selfID {
		m.mu.Lock()
		delete(m.cache, cacheKey{writerID, userID, recordType})
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) readerPublicKey(ctx context.Context, readerID string) (string, error) {
	if readerID == m.selfID {
		return m.selfPub, nil
	}
	return m.server.PublicKey(ctx, readerID)
}
