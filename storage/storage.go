// Package storage implements the one concrete HTTP/JSON collaborator
// the core depends on (spec.md §6): record/AK/policy/file/note CRUD
// against a Tozny-compatible storage API. HTTPStorage satisfies
// akcache.Server and share.PolicyServer so record.Manager and
// share.Engine can operate against a real server instead of a test
// fake. Grounded on original_source/e3db/auth.py's requests-based
// calls and spec.md §6's endpoint table; the narrow-interface-per-
// collaborator shape follows the teacher's pkg/storage/postgres
// adapters (a concrete store behind several small domain interfaces).
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/tozny/e3db-go/akcache"
	"github.com/tozny/e3db-go/apierr"
	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/envelope"
	"github.com/tozny/e3db-go/internal/obs"
	"github.com/tozny/e3db-go/note"
	"github.com/tozny/e3db-go/pkg/version"
	"github.com/tozny/e3db-go/query"
	"github.com/tozny/e3db-go/record"
	"github.com/tozny/e3db-go/share"
)

// Authorizer sets whatever Authorization header a request needs
// before it is sent. auth.TokenAuthenticator.Authorize (bearer JWT)
// and an auth.Signer-backed closure (TSV1) both satisfy this shape,
// matching spec.md §6's "emits exactly one of" authenticator note.
type Authorizer func(ctx context.Context, req *http.Request) error

// HTTPStorage is the concrete server collaborator. One instance is
// shared by a client's record.Manager (via its akcache.Manager) and
// share.Engine.
type HTTPStorage struct {
	httpClient *http.Client
	apiURL     string
	suite      sagecrypto.Suite
	authorize  Authorizer
	rec        obs.Recorder
}

// New constructs an HTTPStorage. httpClient and rec may be nil,
// defaulting to http.DefaultClient and obs.NoopRecorder.
func New(httpClient *http.Client, apiURL string, suite sagecrypto.Suite, authorize Authorizer, rec obs.Recorder) *HTTPStorage {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if rec == nil {
		rec = obs.NoopRecorder{}
	}
	return &HTTPStorage{
		httpClient: httpClient,
		apiURL:     strings.TrimRight(apiURL, "/"),
		suite:      suite,
		authorize:  authorize,
		rec:        rec,
	}
}

// do issues an authenticated request and returns the raw response
// body, mapping non-2xx statuses through apierr.NewAPIError.
func (h *HTTPStorage) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	u := h.apiURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("storage: encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("storage: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if h.authorize != nil {
		if err := h.authorize(ctx, req); err != nil {
			return nil, fmt.Errorf("storage: authorize request: %w", err)
		}
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.NewAPIError(resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func akPath(writerID, userID, readerID, recordType string) string {
	return fmt.Sprintf("/v1/storage/access_keys/%s/%s/%s/%s",
		url.PathEscape(writerID), url.PathEscape(userID), url.PathEscape(readerID), url.PathEscape(recordType))
}

type eakWire struct {
	EAK                 string `json:"eak"`
	AuthorizerPublicKey string `json:"authorizer_public_key"`
}

// FetchEAK implements akcache.Server.
func (h *HTTPStorage) FetchEAK(ctx context.Context, writerID, userID, readerID, recordType string) (akcache.EAK, error) {
	body, err := h.do(ctx, http.MethodGet, akPath(writerID, userID, readerID, recordType), nil, nil)
	if err != nil {
		return akcache.EAK{}, err
	}
	var wire eakWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return akcache.EAK{}, &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	decoded, err := envelope.DecodeEAK(h.suite, wire.EAK)
	if err != nil {
		return akcache.EAK{}, fmt.Errorf("storage: decode eak: %w", err)
	}
	return akcache.EAK{
		Ciphertext:          decoded.Ciphertext,
		Nonce:               decoded.Nonce,
		AuthorizerPublicKey: wire.AuthorizerPublicKey,
	}, nil
}

// PutEAK implements akcache.Server.
func (h *HTTPStorage) PutEAK(ctx context.Context, writerID, userID, readerID, recordType string, ciphertext, nonce []byte) error {
	wire := eakWire{EAK: envelope.EncodeEAK(h.suite, envelope.EAK{Ciphertext: ciphertext, Nonce: nonce})}
	_, err := h.do(ctx, http.MethodPut, akPath(writerID, userID, readerID, recordType), nil, wire)
	return err
}

// DeleteEAK implements akcache.Server.
func (h *HTTPStorage) DeleteEAK(ctx context.Context, writerID, userID, readerID, recordType string) error {
	_, err := h.do(ctx, http.MethodDelete, akPath(writerID, userID, readerID, recordType), nil, nil)
	return err
}

type clientInfo struct {
	ClientID  string `json:"client_id"`
	PublicKey string `json:"public_key"`
}

// PublicKey implements akcache.Server: GET /v1/storage/clients/{id}.
func (h *HTTPStorage) PublicKey(ctx context.Context, clientID string) (string, error) {
	body, err := h.do(ctx, http.MethodGet, "/v1/storage/clients/"+url.PathEscape(clientID), nil, nil)
	if err != nil {
		return "", err
	}
	var info clientInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	return info.PublicKey, nil
}

type policyDocument struct {
	Allow []policyGrant `json:"allow,omitempty"`
	Deny  []policyGrant `json:"deny,omitempty"`
}

type policyGrant struct {
	Read       *struct{} `json:"read,omitempty"`
	Authorizer *struct{} `json:"authorizer,omitempty"`
}

// PutPolicy implements share.PolicyServer:
// PUT /v1/storage/policy/{user}/{writer}/{reader}/{type}.
func (h *HTTPStorage) PutPolicy(ctx context.Context, userID, writerID, readerID, recordType string, action share.Action, grant share.Grant) error {
	path := fmt.Sprintf("/v1/storage/policy/%s/%s/%s/%s",
		url.PathEscape(userID), url.PathEscape(writerID), url.PathEscape(readerID), url.PathEscape(recordType))

	g := policyGrant{}
	switch grant {
	case share.GrantRead:
		g.Read = &struct{}{}
	case share.GrantAuthorizer:
		g.Authorizer = &struct{}{}
	}

	doc := policyDocument{}
	switch action {
	case share.ActionAllow:
		doc.Allow = []policyGrant{g}
	case share.ActionDeny:
		doc.Deny = []policyGrant{g}
	}

	_, err := h.do(ctx, http.MethodPut, path, nil, doc)
	return err
}

// HasAuthorizerPolicy implements share.PolicyServer by probing the
// access-key endpoint for an authorizer-role EAK, since the server
// surface in spec.md §6 does not expose a separate policy-read path
// distinct from the access key it gates.
func (h *HTTPStorage) HasAuthorizerPolicy(ctx context.Context, recordType, authorizerID string) (bool, error) {
	_, err := h.FetchEAK(ctx, authorizerID, authorizerID, authorizerID, recordType)
	if err == nil {
		return true, nil
	}
	var lookup *apierr.LookupError
	if errors.As(err, &lookup) {
		return false, nil
	}
	return false, err
}

// recordsBasePath is the generic record CRUD root from spec.md §6.
const recordsBasePath = "/v1/storage/records"

// WriteRecord creates a new record and returns the server-assigned
// meta (record ID, created/lastModified, initial version token).
func (h *HTTPStorage) WriteRecord(ctx context.Context, rec record.Record) (record.Record, error) {
	body, err := h.do(ctx, http.MethodPost, recordsBasePath, nil, rec)
	if err != nil {
		return record.Record{}, err
	}
	var out record.Record
	if err := json.Unmarshal(body, &out); err != nil {
		return record.Record{}, &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	return out, nil
}

// ReadRecord fetches a single record by ID.
func (h *HTTPStorage) ReadRecord(ctx context.Context, recordID string) (record.Record, error) {
	body, err := h.do(ctx, http.MethodGet, recordsBasePath+"/"+url.PathEscape(recordID), nil, nil)
	if err != nil {
		return record.Record{}, err
	}
	var out record.Record
	if err := json.Unmarshal(body, &out); err != nil {
		return record.Record{}, &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	return out, nil
}

// UpdateRecord writes back an encrypted record, forwarding its
// Meta.Version for optimistic concurrency; the server returns
// ConflictError (via apierr.NewAPIError's 409 mapping) on mismatch.
func (h *HTTPStorage) UpdateRecord(ctx context.Context, rec record.Record) (record.Record, error) {
	body, err := h.do(ctx, http.MethodPut, recordsBasePath+"/"+url.PathEscape(rec.Meta.RecordID), nil, rec)
	if err != nil {
		return record.Record{}, err
	}
	var out record.Record
	if err := json.Unmarshal(body, &out); err != nil {
		return record.Record{}, &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	return out, nil
}

// DeleteRecord removes a record by ID.
func (h *HTTPStorage) DeleteRecord(ctx context.Context, recordID string) error {
	_, err := h.do(ctx, http.MethodDelete, recordsBasePath+"/"+url.PathEscape(recordID), nil, nil)
	return err
}

// ListRecords performs a simple record query; q is sent as the URL
// query string (package query's Params are consumed by Search instead).
func (h *HTTPStorage) ListRecords(ctx context.Context, q url.Values) ([]record.Record, error) {
	body, err := h.do(ctx, http.MethodGet, recordsBasePath, q, nil)
	if err != nil {
		return nil, err
	}
	var out []record.Record
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	return out, nil
}

// Search runs a query.Params document against the search endpoint,
// the narrow, non-search-engine surface SPEC_FULL.md's supplemented
// query package is grounded on (search_params.py/search_result.py).
func (h *HTTPStorage) Search(ctx context.Context, params query.Params) (query.Result, error) {
	body, err := h.do(ctx, http.MethodPost, recordsBasePath+"/search", nil, params)
	if err != nil {
		return query.Result{}, err
	}
	var out query.Result
	if err := json.Unmarshal(body, &out); err != nil {
		return query.Result{}, &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	return out, nil
}

// PendingFile is the server's response to a pending-file POST: the
// caller uploads the encrypted file to UploadURL, then confirms with
// CommitFile.
type PendingFile struct {
	RecordID  string `json:"record_id"`
	UploadURL string `json:"upload_url"`
}

// CreatePendingFile POSTs a file-backed record's meta ahead of the
// actual upload, per spec.md §6's "pending-file creation" row.
func (h *HTTPStorage) CreatePendingFile(ctx context.Context, meta record.Meta) (PendingFile, error) {
	body, err := h.do(ctx, http.MethodPost, "/v1/storage/files", nil, meta)
	if err != nil {
		return PendingFile{}, err
	}
	var out PendingFile
	if err := json.Unmarshal(body, &out); err != nil {
		return PendingFile{}, &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	return out, nil
}

// CommitFile confirms a completed upload, finalizing the record.
func (h *HTTPStorage) CommitFile(ctx context.Context, recordID string) (record.Record, error) {
	body, err := h.do(ctx, http.MethodPatch, "/v1/storage/files/"+url.PathEscape(recordID), nil, nil)
	if err != nil {
		return record.Record{}, err
	}
	var out record.Record
	if err := json.Unmarshal(body, &out); err != nil {
		return record.Record{}, &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	return out, nil
}

// UploadFile PUTs the already-encrypted file at localPath to the
// signed uploadURL a prior CreatePendingFile returned. This is the
// byte-upload step spec.md §6 implies happens against a signed URL
// outside the core's server-surface table: the URL is typically a
// different host (e.g. object storage) than apiURL, so it bypasses
// h.do and its authorizer entirely, matching the signed-URL's own
// embedded authorization.
func (h *HTTPStorage) UploadFile(ctx context.Context, uploadURL, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("storage: open encrypted file: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, f)
	if err != nil {
		return fmt.Errorf("storage: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage: upload file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return apierr.NewAPIError(resp.StatusCode, string(body))
	}
	return nil
}

// DownloadFile GETs the encrypted file from fileURL (Record.Meta.FileMeta.FileURL)
// and writes it to localPath, the counterpart to UploadFile.
func (h *HTTPStorage) DownloadFile(ctx context.Context, fileURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("storage: build download request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage: download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return apierr.NewAPIError(resp.StatusCode, string(body))
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("storage: create local file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("storage: write local file: %w", err)
	}
	return nil
}

// WriteNote implements NoteCrypto's server-side half: POST a Note to
// the server under its id_string, matching identity.fetchCredentialNote's
// GET counterpart but for a registered client publishing its own note
// rather than anonymously reading a credential note.
func (h *HTTPStorage) WriteNote(ctx context.Context, n note.Note) (note.Note, error) {
	body, err := h.do(ctx, http.MethodPost, "/v2/storage/notes", nil, n)
	if err != nil {
		return note.Note{}, err
	}
	var out note.Note
	if err := json.Unmarshal(body, &out); err != nil {
		return note.Note{}, &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	return out, nil
}

// ReadNote anonymously fetches a note by its id_string, the same
// lookup identity.fetchCredentialNote performs but without requiring
// an X-TOZID-LOGIN-TOKEN header, for notes not gated behind a login
// flow.
func (h *HTTPStorage) ReadNote(ctx context.Context, idString string) (note.Note, error) {
	q := url.Values{"id_string": {idString}}
	body, err := h.do(ctx, http.MethodGet, "/v2/storage/notes", q, nil)
	if err != nil {
		return note.Note{}, err
	}
	var out note.Note
	if err := json.Unmarshal(body, &out); err != nil {
		return note.Note{}, &apierr.UnsupportedAPIResponse{Got: string(body)}
	}
	return out, nil
}
