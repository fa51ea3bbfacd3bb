package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	scopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"
	grantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	assertionLifetime   = 3600 * time.Second
	tokenRequestTimeout = 15 * time.Second
)

var (
	// ErrCredentialMissing indicates a required service-account field is absent.
	ErrCredentialMissing = errors.New("auth: credential field missing")
	// ErrKeyDecode indicates the private key could not be decoded from its PEM envelope.
	ErrKeyDecode = errors.New("auth: decode private key")
	// ErrSigning indicates the assertion signature could not be produced.
	ErrSigning = errors.New("auth: sign assertion")
)

// TokenExchangeError reports a token endpoint response that was not a success,
// carrying the response body best-effort for diagnostics.
type TokenExchangeError struct {
	Status int
	Body   string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("auth: token exchange failed: status=%d body=%s", e.Status, e.Body)
}

// Credential holds service-account identity and signing key material. It is
// sourced from configuration at startup and must never be logged in full.
type Credential struct {
	ClientEmail  string
	PrivateKeyID string
	PrivateKey   string
}

// Options configures a TokenProvider.
type Options struct {
	Credential Credential
	TokenURL   string
	HTTPClient *http.Client
	Now        func() time.Time
}

// TokenProvider exchanges a signed JWT assertion for a bearer access token via
// the OAuth2 service-account JWT-bearer grant. It holds no token state: every
// call performs a full exchange, trading round-trips for simplicity.
type TokenProvider struct {
	cred     Credential
	tokenURL string
	client   *http.Client
	now      func() time.Time
}

// NewTokenProvider creates a provider for the given credential.
func NewTokenProvider(opts Options) *TokenProvider {
	tokenURL := strings.TrimSpace(opts.TokenURL)
	if tokenURL == "" {
		tokenURL = "https://oauth2.googleapis.com/token"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: tokenRequestTimeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &TokenProvider{
		cred:     opts.Credential,
		tokenURL: tokenURL,
		client:   client,
		now:      now,
	}
}

// Token builds and signs the JWT assertion and exchanges it for an access token.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	assertion, err := p.signAssertion()
	if err != nil {
		return "", err
	}
	return p.exchange(ctx, assertion)
}

func (p *TokenProvider) signAssertion() (string, error) {
	if p.cred.ClientEmail == "" {
		return "", fmt.Errorf("%w: client email", ErrCredentialMissing)
	}
	if p.cred.PrivateKey == "" {
		return "", fmt.Errorf("%w: private key", ErrCredentialMissing)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(p.cred.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyDecode, err)
	}

	now := p.now().UTC()
	claims := jwt.MapClaims{
		"iss":   p.cred.ClientEmail,
		"scope": scopeCloudPlatform,
		"aud":   p.tokenURL,
		"exp":   now.Add(assertionLifetime).Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if p.cred.PrivateKeyID != "" {
		token.Header["kid"] = p.cred.PrivateKeyID
	}

	assertion, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return assertion, nil
}

func (p *TokenProvider) exchange(ctx context.Context, assertion string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", grantTypeJWTBearer)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("auth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: token request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Body is read best-effort: a read failure leaves an empty detail rather
	// than masking the status code.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TokenExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.AccessToken == "" {
		return "", &TokenExchangeError{Status: resp.StatusCode, Body: string(body)}
	}
	return parsed.AccessToken, nil
}
