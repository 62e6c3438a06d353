// Package e3db is the single entry point SPEC_FULL.md calls for:
// wiring CryptoSuite, AccessKeyManager, RecordCrypto, SharingEngine,
// and a TokenAuthenticator-or-TSV1 Authorizer into one client against
// a real storage.HTTPStorage transport. Grounded on
// original_source/e3db/client.py's Client as the thing every other
// e3db-python module composes around, and on sage's pattern of a
// small top-level package assembling narrower internal ones (see
// session.Session assembling handshake + hpke).
package e3db

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/tozny/e3db-go/akcache"
	"github.com/tozny/e3db-go/auth"
	"github.com/tozny/e3db-go/config"
	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/filecrypto"
	"github.com/tozny/e3db-go/identity"
	"github.com/tozny/e3db-go/internal/obs"
	"github.com/tozny/e3db-go/query"
	"github.com/tozny/e3db-go/record"
	"github.com/tozny/e3db-go/share"
	"github.com/tozny/e3db-go/storage"
)

// Client is a provisioned e3db identity bound to one CryptoSuite, one
// server, and one set of credentials.
type Client struct {
	suite   sagecrypto.Suite
	store   *storage.HTTPStorage
	records *record.Manager
	shares  *share.Engine
	selfID  string
}

// New builds a Client from a persisted Profile. httpClient and rec may
// be nil, defaulting to http.DefaultClient and a no-op recorder.
// The Authorizer is chosen per spec.md §6: an api_key_id/api_secret
// pair selects the bearer-JWT TokenAuthenticator, a signing keypair
// selects TSV1, matching "Authenticators emit exactly one of".
func New(profile *config.Profile, suite sagecrypto.Suite, httpClient *http.Client, rec obs.Recorder) (*Client, error) {
	if err := config.Validate(profile); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	authorize, err := authorizerFor(profile, suite, httpClient, rec)
	if err != nil {
		return nil, err
	}

	store := storage.New(httpClient, profile.APIURL, suite, authorize, rec)
	aks := akcache.New(suite, store, profile.ClientID, profile.PublicKey, profile.PrivateKey, rec)
	records := record.New(suite, aks, profile.ClientID)
	shares := share.New(records, store)

	return &Client{suite: suite, store: store, records: records, shares: shares, selfID: profile.ClientID}, nil
}

// authorizerFor builds a storage.Authorizer matching the credentials a
// Profile actually carries.
func authorizerFor(profile *config.Profile, suite sagecrypto.Suite, httpClient *http.Client, rec obs.Recorder) (storage.Authorizer, error) {
	if profile.APIKeyID != "" && profile.APISecret != "" {
		tok := auth.NewTokenAuthenticator(httpClient, profile.APIURL, profile.APIKeyID, profile.APISecret, rec)
		return tok.Authorize, nil
	}
	if profile.PublicSigningKey != "" && profile.PrivateSigningKey != "" {
		signer := auth.NewSigner(suite, profile.PublicSigningKey, profile.PrivateSigningKey, profile.ClientID)
		return func(ctx context.Context, req *http.Request) error {
			header, err := signer.AuthorizationHeader(req.Method, req.URL.Path, req.URL.Query())
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", header)
			return nil
		}, nil
	}
	return nil, fmt.Errorf("e3db: profile carries neither api_key_id/api_secret nor a signing keypair")
}

// Login performs the identity.Login PKCE exchange and assembles a
// Client directly from the recovered storage-client configuration,
// without requiring a pre-existing Profile on disk.
func Login(ctx context.Context, httpClient *http.Client, suite sagecrypto.Suite, username, password, realmName, appName, apiURL string, rec obs.Recorder) (*Client, error) {
	id, err := identity.Login(ctx, httpClient, suite, username, password, realmName, appName, apiURL)
	if err != nil {
		return nil, err
	}

	var profile config.Profile
	if err := json.Unmarshal(id.ClientConfig, &profile); err != nil {
		return nil, fmt.Errorf("e3db: decode recovered client config: %w", err)
	}
	if profile.APIURL == "" {
		profile.APIURL = apiURL
	}

	return New(&profile, suite, httpClient, rec)
}

// SelfID is this client's own client ID, used as both writerId and
// userId for records it owns.
func (c *Client) SelfID() string { return c.selfID }

// Write encrypts data under a record of the given type and persists
// it, returning the record with server-assigned meta (ID, version,
// timestamps) and the original plaintext data.
func (c *Client) Write(ctx context.Context, recordType string, data, plain map[string]string) (record.Record, error) {
	in := record.Record{
		Meta: record.Meta{WriterID: c.selfID, UserID: c.selfID, RecordType: recordType, Plain: plain},
		Data: data,
	}
	encrypted, err := c.records.Encrypt(ctx, in)
	if err != nil {
		return record.Record{}, err
	}
	stored, err := c.store.WriteRecord(ctx, encrypted)
	if err != nil {
		return record.Record{}, err
	}
	return record.Record{Meta: stored.Meta, Data: data}, nil
}

// Read fetches and decrypts a record by ID.
func (c *Client) Read(ctx context.Context, recordID string) (record.Record, error) {
	encrypted, err := c.store.ReadRecord(ctx, recordID)
	if err != nil {
		return record.Record{}, err
	}
	return c.records.Decrypt(ctx, encrypted)
}

// Update re-encrypts data under an existing record (identified by
// meta.RecordID, carrying meta.Version for optimistic concurrency) and
// writes it back.
func (c *Client) Update(ctx context.Context, meta record.Meta, data map[string]string) (record.Record, error) {
	in := record.Record{Meta: meta, Data: data}
	encrypted, err := c.records.Encrypt(ctx, in)
	if err != nil {
		return record.Record{}, err
	}
	encrypted.Meta.RecordID = meta.RecordID
	encrypted.Meta.Version = meta.Version
	stored, err := c.store.UpdateRecord(ctx, encrypted)
	if err != nil {
		return record.Record{}, err
	}
	return record.Record{Meta: stored.Meta, Data: data}, nil
}

// Delete removes a record by ID.
func (c *Client) Delete(ctx context.Context, recordID string) error {
	return c.store.DeleteRecord(ctx, recordID)
}

// List runs a query and decrypts every record the server returns.
// Any single record's decryption failure aborts the whole page, per
// spec.md §4.5's "malformed envelope aborts the whole record".
func (c *Client) List(ctx context.Context, params query.Params) (query.Result, error) {
	result, err := c.store.Search(ctx, params)
	if err != nil {
		return query.Result{}, err
	}
	for i, enc := range result.Records {
		dec, err := c.records.Decrypt(ctx, enc)
		if err != nil {
			return query.Result{}, fmt.Errorf("e3db: decrypt record %s: %w", enc.Meta.RecordID, err)
		}
		result.Records[i] = dec
	}
	return result, nil
}

// Share grants readerID read access to every record of recordType this
// client writes.
func (c *Client) Share(ctx context.Context, recordType, readerID string) error {
	return c.shares.Share(ctx, recordType, readerID)
}

// Revoke removes readerID's read access to recordType.
func (c *Client) Revoke(ctx context.Context, recordType, readerID string) error {
	return c.shares.Revoke(ctx, recordType, readerID)
}

// AddAuthorizer lets authorizerID share recordType on this client's
// behalf.
func (c *Client) AddAuthorizer(ctx context.Context, recordType, authorizerID string) error {
	return c.shares.AddAuthorizer(ctx, recordType, authorizerID)
}

// RemoveAuthorizer revokes authorizerID's delegated sharing ability.
func (c *Client) RemoveAuthorizer(ctx context.Context, recordType, authorizerID string) error {
	return c.shares.RemoveAuthorizer(ctx, recordType, authorizerID)
}

// ShareOnBehalfOf acts as an authorizer for writerID, granting readerID
// access to writerID's recordType records.
func (c *Client) ShareOnBehalfOf(ctx context.Context, writerID, readerID, recordType string) error {
	return c.shares.ShareOnBehalfOf(ctx, writerID, readerID, recordType)
}

// RevokeOnBehalfOf acts as an authorizer to revoke readerID's access to
// writerID's recordType records.
func (c *Client) RevokeOnBehalfOf(ctx context.Context, writerID, readerID, recordType string) error {
	return c.shares.RevokeOnBehalfOf(ctx, writerID, readerID, recordType)
}

// WriteFile encrypts localPath under a fresh per-file data key wrapped
// by this client's own access key for recordType, uploads it, and
// commits the resulting file-backed record.
func (c *Client) WriteFile(ctx context.Context, recordType, localPath string, plain map[string]string) (record.Record, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return record.Record{}, fmt.Errorf("e3db: stat file: %w", err)
	}

	ak, err := c.records.EnsureAccessKey(ctx, recordType)
	if err != nil {
		return record.Record{}, err
	}

	encPath := localPath + ".enc"
	checksum, err := filecrypto.Encrypt(c.suite, ak, localPath, encPath)
	if err != nil {
		return record.Record{}, err
	}
	defer os.Remove(encPath)

	meta := record.Meta{
		WriterID:   c.selfID,
		UserID:     c.selfID,
		RecordType: recordType,
		Plain:      plain,
		FileMeta: &record.FileMeta{
			Checksum: checksum,
			Size:     info.Size(),
			FileName: info.Name(),
		},
	}

	pending, err := c.store.CreatePendingFile(ctx, meta)
	if err != nil {
		return record.Record{}, err
	}
	if err := c.store.UploadFile(ctx, pending.UploadURL, encPath); err != nil {
		return record.Record{}, err
	}
	return c.store.CommitFile(ctx, pending.RecordID)
}

// ReadFile downloads and decrypts a file-backed record's contents to
// localPath.
func (c *Client) ReadFile(ctx context.Context, recordID, localPath string) error {
	rec, err := c.store.ReadRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.Meta.FileMeta == nil {
		return fmt.Errorf("e3db: record %s has no file attached", recordID)
	}

	ak, err := c.records.AccessKeys().GetAccessKey(ctx, rec.Meta.WriterID, rec.Meta.UserID, c.selfID, rec.Meta.RecordType)
	if err != nil {
		return err
	}
	if ak == nil {
		return fmt.Errorf("e3db: no access key for record %s", recordID)
	}

	encPath := localPath + ".enc"
	if err := c.store.DownloadFile(ctx, rec.Meta.FileMeta.FileURL, encPath); err != nil {
		return err
	}
	defer os.Remove(encPath)

	return filecrypto.Decrypt(c.suite, ak, encPath, localPath)
}
