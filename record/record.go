// Package record implements RecordCrypto (spec.md §4.5): turning a
// plaintext Record into an encrypted one and back, using an
// akcache.Manager for the writer's access key and envelope for the
// per-field wire format. Supplemented from original_source/e3db/
// types.py's Record/Meta classes for the field set Meta carries.
package record

import (
	"context"
	"fmt"
	"time"

	"github.com/tozny/e3db-go/akcache"
	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/envelope"
)

// FileMeta is the large-file descriptor attached to a record whose
// data is a file rather than inline fields.
type FileMeta struct {
	Checksum     string `json:"checksum"`
	Size         int64  `json:"size"`
	Compression  string `json:"compression"`
	FileURL      string `json:"file_url,omitempty"`
	FileName     string `json:"file_name"`
}

// Meta carries everything about a record except its field data.
type Meta struct {
	RecordID     string            `json:"record_id,omitempty"`
	WriterID     string            `json:"writer_id"`
	UserID       string            `json:"user_id"`
	RecordType   string            `json:"record_type"`
	Plain        map[string]string `json:"plain,omitempty"`
	Created      time.Time         `json:"created,omitempty"`
	LastModified time.Time         `json:"last_modified,omitempty"`
	Version      string            `json:"version,omitempty"`
	FileMeta     *FileMeta         `json:"file_meta,omitempty"`
}

// Record is { meta, data } per spec.md §3. Data holds plaintext field
// values before Encrypt / after Decrypt, and wire-form envelope
// strings in between.
type Record struct {
	Meta Meta              `json:"meta"`
	Data map[string]string `json:"data"`
}

// Manager is RecordCrypto. selfID identifies the acting client for
// AK acquisition.
type Manager struct {
	suite    sagecrypto.Suite
	aks      *akcache.Manager
	selfID   string
}

// New constructs a Manager bound to the given crypto suite, access key
// cache, and this client's own ID (used as both writerId and userId
// when encrypting records it owns).
func New(suite sagecrypto.Suite, aks *akcache.Manager, selfID string) *Manager {
	return &Manager{suite: suite, aks: aks, selfID: selfID}
}

// Encrypt acquires/creates the writer's AK for (self, self, recordType)
// and encrypts every data field under a fresh per-field envelope.
// meta is copied unchanged into the result except that RecordType is
// taken from meta.RecordType.
func (m *Manager) Encrypt(ctx context.Context, plain Record) (Record, error) {
	ak, err := m.ensureAccessKey(ctx, plain.Meta.RecordType)
	if err != nil {
		return Record{}, err
	}

	out := Record{Meta: plain.Meta, Data: make(map[string]string, len(plain.Data))}
	for field, value := range plain.Data {
		wire, err := envelope.EncryptValue(m.suite, ak, value)
		if err != nil {
			return Record{}, fmt.Errorf("record: encrypt field %q: %w", field, err)
		}
		out.Data[field] = wire
	}
	return out, nil
}

// Decrypt acquires the AK for (writerId, userId, self, recordType) and
// decrypts every field. Any malformed envelope or MAC failure aborts
// the whole record, per spec.md §4.5.
func (m *Manager) Decrypt(ctx context.Context, enc Record) (Record, error) {
	ak, err := m.aks.GetAccessKey(ctx, enc.Meta.WriterID, enc.Meta.UserID, m.selfID, enc.Meta.RecordType)
	if err != nil {
		return Record{}, fmt.Errorf("record: acquire access key: %w", err)
	}
	if ak == nil {
		return Record{}, fmt.Errorf("record: no access key for (%s, %s, %s)", enc.Meta.WriterID, enc.Meta.UserID, enc.Meta.RecordType)
	}

	out := Record{Meta: enc.Meta, Data: make(map[string]string, len(enc.Data))}
	for field, wire := range enc.Data {
		value, err := envelope.DecryptValue(m.suite, ak, wire)
		if err != nil {
			return Record{}, fmt.Errorf("record: decrypt field %q: %w", field, err)
		}
		out.Data[field] = value
	}
	return out, nil
}

// ensureAccessKey returns the current (self, self, recordType) AK,
// generating and publishing one if the cache and server both miss.
// EnsureAccessKey exports it for share.Engine, which needs the same
// get-or-create step before it can place an EAK for a new reader.
func (m *Manager) ensureAccessKey(ctx context.Context, recordType string) ([]byte, error) {
	ak, err := m.aks.GetAccessKey(ctx, m.selfID, m.selfID, m.selfID, recordType)
	if err != nil {
		return nil, fmt.Errorf("record: acquire access key: %w", err)
	}
	if ak != nil {
		return ak, nil
	}

	ak, err = m.suite.RandomKey()
	if err != nil {
		return nil, err
	}
	if err := m.aks.PutAccessKey(ctx, m.selfID, m.selfID, m.selfID, recordType, ak); err != nil {
		return nil, fmt.Errorf("record: publish new access key: %w", err)
	}
	return ak, nil
}

// EnsureAccessKey is the exported form of ensureAccessKey for
// share.Engine.
func (m *Manager) EnsureAccessKey(ctx context.Context, recordType string) ([]byte, error) {
	return m.ensureAccessKey(ctx, recordType)
}

// AccessKeys exposes the underlying akcache.Manager so share.Engine
// can perform put/delete/get calls against the same cache RecordCrypto
// uses, keeping one authoritative cache per client.
func (m *Manager) AccessKeys() *akcache.Manager { return m.aks }

// SelfID returns the client ID this Manager acts as.
func (m *Manager) SelfID() string { return m.selfID }
