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

	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// maxErrorBodyBytes bounds how much of an error response body is read
// for diagnostics.
const maxErrorBodyBytes = 4 << 10

// Manager owns the credential exchange and token lifecycle.
//
// Token fields are shared across execution contexts: the sync
// coordinator's poll path and paho's reconnect callback thread both call
// GetAccessToken. The mutex is held across the entire get-or-refresh
// sequence, so only one exchange is ever in flight and concurrent
// callers block until it completes and then see the fresh token.
type Manager struct {
	httpClient *http.Client
	tokenURL   string
	clientID   string
	username   string
	password   string

	mu    sync.Mutex
	token *Token

	logger Logger
}

// NewManager creates a token manager for the configured account.
//
// Parameters:
//   - cloud: Endpoint configuration (token URL, client id, timeout)
//   - creds: Account credentials
//
// Returns:
//   - *Manager: Manager ready for use; no network I/O happens until the
//     first GetAccessToken call
func NewManager(cloud config.CloudConfig, creds config.AuthConfig) *Manager {
	return &Manager{
		httpClient: &http.Client{
			Timeout: time.Duration(cloud.Timeout) * time.Second,
		},
		tokenURL: cloud.TokenURL,
		clientID: cloud.ClientID,
		username: creds.Username,
		password: creds.Password,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// GetAccessToken returns a valid access token, exchanging credentials if needed.
//
// Fast path: the cached token is still valid (outside the 5-minute
// buffer) and is returned with no I/O. Otherwise a refresh grant is
// attempted first; if refresh fails for any reason the manager falls
// through to a full password login rather than propagating the refresh
// error. Safe to call from any goroutine, including paho's network
// callbacks - this is the blocking foreign-context variant as well.
//
// Parameters:
//   - ctx: Context for cancellation; the HTTP timeout still applies
//
// Returns:
//   - string: Access token usable as a bearer credential
//   - error: ErrInvalidCredentials / ErrAuthentication on exhausted fallback
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if m.token.Valid(now) {
		return m.token.AccessToken, nil
	}

	if m.token != nil && m.token.RefreshToken != "" {
		token, err := m.refresh(ctx, m.token.RefreshToken)
		if err == nil {
			m.token = token
			return token.AccessToken, nil
		}
		m.logger.Warn("token refresh failed, falling back to login", "error", err)
	}

	token, err := m.login(ctx)
	if err != nil {
		return "", err
	}
	m.token = token
	return token.AccessToken, nil
}

// Invalidate discards the cached token. The next GetAccessToken call
// performs a fresh exchange.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

// login performs the password grant.
func (m *Manager) login(ctx context.Context) (*Token, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {m.clientID},
		"username":   {m.username},
		"password":   {m.password},
	}
	token, err := m.exchange(ctx, form, "")
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	m.logger.Debug("login succeeded", "expires_at", token.ExpiresAt)
	return token, nil
}

// refresh performs the refresh_token grant. The response often omits the
// refresh token; the previous one is carried forward in that case.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {m.clientID},
		"refresh_token": {refreshToken},
	}
	token, err := m.exchange(ctx, form, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	m.logger.Debug("token refreshed", "expires_at", token.ExpiresAt)
	return token, nil
}

// exchange posts a form-encoded grant to the token endpoint and parses
// the token response. fallbackRefresh is carried into the new token when
// the response omits refresh_token.
func (m *Manager) exchange(ctx context.Context, form url.Values, fallbackRefresh string) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token endpoint unreachable: %w", ErrAuthentication, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only response

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading token response: %w", ErrAuthentication, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidCredentials
	case resp.StatusCode == http.StatusBadRequest && form.Get("grant_type") == "refresh_token":
		// Cognito reports an expired/revoked refresh token as 400.
		return nil, ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: token endpoint returned %d", ErrAuthentication, resp.StatusCode)
	}

	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %w", ErrAuthentication, err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("%w: access_token missing in response", ErrAuthentication)
	}

	if parsed.RefreshToken == "" {
		parsed.RefreshToken = fallbackRefresh
	}
	if parsed.ExpiresIn <= 0 {
		parsed.ExpiresIn = defaultExpirySeconds
	}

	return &Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}
