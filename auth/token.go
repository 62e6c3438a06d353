package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tozny/e3db-go/apierr"
	"github.com/tozny/e3db-go/internal/obs"
)

const expiredSentinelLayout = "2006-01-02T15:04:05.999999999Z"

// TokenAuthenticator is the OAuth-style client-credentials bearer
// token holder from spec.md §4.9. Two concurrent refreshes are
// idempotent by design: both reach the token endpoint and the last
// write to token/expiresAt wins, matching the "no refresh coordination
// lock required" contract.
type TokenAuthenticator struct {
	httpClient *http.Client
	apiURL     string
	apiKeyID   string
	apiSecret  string
	rec        obs.Recorder

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewTokenAuthenticator constructs a TokenAuthenticator against
// apiURL's token endpoint. httpClient and rec may be nil, defaulting
// to http.DefaultClient and obs.NoopRecorder respectively.
func NewTokenAuthenticator(httpClient *http.Client, apiURL, apiKeyID, apiSecret string, rec obs.Recorder) *TokenAuthenticator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if rec == nil {
		rec = obs.NoopRecorder{}
	}
	return &TokenAuthenticator{
		httpClient: httpClient,
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKeyID:   apiKeyID,
		apiSecret:  apiSecret,
		rec:        rec,
	}
}

// Token returns a currently-valid bearer token, refreshing against the
// token endpoint first if the cached one is absent or expired.
func (t *TokenAuthenticator) Token(ctx context.Context) (string, error) {
	t.mu.RLock()
	tok, exp := t.token, t.expiresAt
	t.mu.RUnlock()
	if tok != "" && time.Now().Before(exp) {
		return tok, nil
	}
	return t.refresh(ctx)
}

// Authorize sets the Authorization header on req to "Bearer <token>",
// refreshing the token first if necessary.
func (t *TokenAuthenticator) Authorize(ctx context.Context, req *http.Request) error {
	tok, err := t.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

func (t *TokenAuthenticator) refresh(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+"/v1/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("auth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.apiKeyID, t.apiSecret)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.rec.TokenRefresh("error")
		return "", fmt.Errorf("auth: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		t.rec.TokenRefresh("unauthorized")
		return "", &apierr.APIError{Status: resp.StatusCode, Message: "unauthorized"}
	}
	if resp.StatusCode != http.StatusOK {
		t.rec.TokenRefresh("error")
		return "", &apierr.APIError{Status: resp.StatusCode, Message: "token refresh failed"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.rec.TokenRefresh("error")
		return "", fmt.Errorf("auth: read token response: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		t.rec.TokenRefresh("error")
		return "", &apierr.UnsupportedAPIResponse{Got: string(body)}
	}

	expiresAt, err := time.Parse(expiredSentinelLayout, tr.ExpiresAt)
	if err != nil {
		t.rec.TokenRefresh("error")
		return "", fmt.Errorf("auth: parse token expiry: %w", err)
	}

	t.mu.Lock()
	t.token, t.expiresAt = tr.AccessToken, expiresAt
	t.mu.Unlock()

	t.rec.TokenRefresh("ok")
	return tr.AccessToken, nil
}
