// Package serviceaccount authenticates server-to-server calls with a
// Google service account: it signs JWT assertions with the account's key,
// trades them for access tokens and caches the token on an http transport.
package serviceaccount

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	xe "github.com/guojinxiang/ndvi-time-series/pkg/errors"
)

const grantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// Credentials is the parsed service account key file.
type Credentials struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`

	key *rsa.PrivateKey
}

// FromFile reads and parses a service account key file (JSON format).
func FromFile(path string) (*Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xe.WrapWithNote(err, "service account key file %s is not readable", path)
	}
	return Parse(raw)
}

// Parse parses the content of a service account key file.
func Parse(raw []byte) (*Credentials, error) {
	creds := &Credentials{}
	if err := json.Unmarshal(raw, creds); err != nil {
		return nil, xe.WrapWithNote(err, "broken service account key file")
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, xe.New("the service account key file misses client_email or private_key")
	}
	if creds.TokenURI == "" {
		creds.TokenURI = "https://oauth2.googleapis.com/token"
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return nil, xe.WrapWithNote(err, "the service account private key is broken")
	}
	creds.key = key
	return creds, nil
}

// Assertion signs a JWT claiming the given scopes, valid for an hour.
func (c *Credentials) Assertion(scopes []string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   c.ClientEmail,
		"scope": strings.Join(scopes, " "),
		"aud":   c.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", xe.Wrap(err)
	}
	return signed, nil
}

// CustomToken signs a Firebase custom token authenticating uid, so the
// browser can open its own channel.
func (c *Credentials) CustomToken(uid string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": c.ClientEmail,
		"sub": c.ClientEmail,
		"aud": "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
		"uid": uid,
	})
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", xe.Wrap(err)
	}
	return signed, nil
}

type accessToken struct {
	value   string
	expires time.Time
}

// TokenSource trades assertions for access tokens and caches them until
// shortly before expiry. Safe for concurrent use.
type TokenSource struct {
	creds    *Credentials
	scopes   []string
	hc       *http.Client
	now      func() time.Time
	tokenURI string

	mu    sync.Mutex
	token accessToken
}

type SourceOption func(*TokenSource)

// WithHTTPClient replaces the client used for the token exchange.
func WithHTTPClient(hc *http.Client) SourceOption {
	return func(s *TokenSource) { s.hc = hc }
}

// WithClock replaces the clock. For tests.
func WithClock(now func() time.Time) SourceOption {
	return func(s *TokenSource) { s.now = now }
}

// WithTokenURI posts the exchange somewhere else than the key file says.
func WithTokenURI(uri string) SourceOption {
	return func(s *TokenSource) { s.tokenURI = uri }
}

func NewTokenSource(creds *Credentials, scopes []string, options ...SourceOption) *TokenSource {
	s := &TokenSource{
		creds:    creds,
		scopes:   scopes,
		hc:       http.DefaultClient,
		now:      time.Now,
		tokenURI: creds.TokenURI,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Token returns a valid access token, fetching a new one when the cached
// token is within a minute of expiry.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token.value != "" && now.Before(s.token.expires.Add(-time.Minute)) {
		return s.token.value, nil
	}

	assertion, err := s.creds.Assertion(s.scopes, now)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.tokenURI,
		strings.NewReader(url.Values{
			"grant_type": {grantType},
			"assertion":  {assertion},
		}.Encode()),
	)
	if err != nil {
		return "", xe.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.hc.Do(req)
	if err != nil {
		return "", xe.Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", xe.Wrap(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, body)
	}

	grant := struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}{}
	if err := json.Unmarshal(body, &grant); err != nil {
		return "", xe.WrapWithNote(err, "broken token response")
	}
	if grant.AccessToken == "" {
		return "", xe.New("the token exchange yielded no access token")
	}

	s.token = accessToken{
		value:   grant.AccessToken,
		expires: now.Add(time.Duration(grant.ExpiresIn) * time.Second),
	}
	return s.token.value, nil
}

// transport adds the bearer token to every outgoing request.
type transport struct {
	source *TokenSource
	base   http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token(req.Context())
	if err != nil {
		return nil, err
	}

	// RoundTrippers must not mutate the request
	authorized := req.Clone(req.Context())
	authorized.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(authorized)
}

// HTTPClient wraps an http client so that every request carries a valid
// access token of the source.
func HTTPClient(source *TokenSource, base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &http.Client{
		Transport: &transport{source: source, base: rt},
		Timeout:   base.Timeout,
	}
}
