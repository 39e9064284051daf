package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eotlabs/eot-cloud-core/internal/auth"
	"github.com/eotlabs/eot-cloud-core/internal/convert"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/config"
)

// TokenProvider supplies a bearer token for API calls. Satisfied by
// *auth.Manager.
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// API is the surface the sync coordinator consumes. The concrete Client
// implements it; tests substitute a fake.
type API interface {
	SyncDevices(ctx context.Context) ([]convert.VendorDevice, error)
	QueryStates(ctx context.Context, ids []string) (map[string]convert.VendorState, error)
	Execute(ctx context.Context, ids []string, execution []Execution) ([]CommandResult, error)
	CachedState(id string) (convert.VendorState, bool)
	InvalidateCached(id string)
}

// maxResponseBytes bounds how much of an API response is read. SYNC for a
// large installation stays well under this.
const maxResponseBytes = 4 << 20

// Client talks to the vendor's smart-home intent API.
//
// Beyond plain transport it keeps a per-device cache of the freshest
// state fragment seen in QUERY and EXECUTE responses. A command response
// can arrive between two polls; the coordinator overlays the cached
// fragment so the poll that races it does not resurrect pre-command
// state.
type Client struct {
	httpClient *http.Client
	apiURL     string
	tokens     TokenProvider
	logger     Logger

	mu         sync.Mutex
	stateCache map[string]convert.VendorState
}

// Compile-time check.
var _ API = (*Client)(nil)

// NewClient creates an API client.
//
// Parameters:
//   - cfg: Cloud endpoint configuration (API URL, request timeout)
//   - tokens: Bearer token source
//
// Returns:
//   - *Client: Ready client; no I/O until the first call
func NewClient(cfg config.CloudConfig, tokens TokenProvider) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		apiURL:     cfg.APIURL,
		tokens:     tokens,
		logger:     noopLogger{},
		stateCache: make(map[string]convert.VendorState),
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SyncDevices fetches the full device inventory via the SYNC intent.
//
// Returns:
//   - []convert.VendorDevice: Every device the account owns
//   - error: auth errors pass through; ErrCommunication or ErrAPI otherwise
func (c *Client) SyncDevices(ctx context.Context) ([]convert.VendorDevice, error) {
	req := intentRequest{
		RequestID: uuid.NewString(),
		Inputs:    []intentInput{{Intent: intentSync}},
	}

	var resp syncResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("sync devices: %w", err)
	}

	c.logger.Debug("sync completed", "devices", len(resp.Payload.Devices))
	return resp.Payload.Devices, nil
}

// QueryStates fetches current state for the given device ids in one
// batched QUERY call. Returned fragments are also written to the state
// cache.
//
// Parameters:
//   - ids: Device ids to query; an empty slice short-circuits to an empty map
//
// Returns:
//   - map[string]convert.VendorState: State fragments keyed by device id
//   - error: auth errors pass through; ErrCommunication or ErrAPI otherwise
func (c *Client) QueryStates(ctx context.Context, ids []string) (map[string]convert.VendorState, error) {
	if len(ids) == 0 {
		return map[string]convert.VendorState{}, nil
	}

	refs := make([]deviceRef, len(ids))
	for i, id := range ids {
		refs[i] = deviceRef{ID: id}
	}
	req := intentRequest{
		RequestID: uuid.NewString(),
		Inputs: []intentInput{{
			Intent:  intentQuery,
			Payload: queryPayload{Devices: refs},
		}},
	}

	var resp queryResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}

	states := resp.Payload.Devices
	if states == nil {
		states = map[string]convert.VendorState{}
	}

	c.mu.Lock()
	for id, st := range states {
		c.stateCache[id] = st
	}
	c.mu.Unlock()

	return states, nil
}

// Execute runs one command against a device group via the EXECUTE intent.
// Post-command state fragments in the response are written to the state
// cache so the next poll merge sees them.
//
// Parameters:
//   - ids: Target device ids
//   - execution: Commands to run against every target
//
// Returns:
//   - []CommandResult: Per-group outcomes
//   - error: auth errors pass through; ErrCommunication or ErrAPI otherwise
func (c *Client) Execute(ctx context.Context, ids []string, execution []Execution) ([]CommandResult, error) {
	refs := make([]deviceRef, len(ids))
	for i, id := range ids {
		refs[i] = deviceRef{ID: id}
	}
	req := intentRequest{
		RequestID: uuid.NewString(),
		Inputs: []intentInput{{
			Intent: intentExecute,
			Payload: executePayload{
				Commands: []executeGroup{{Devices: refs, Execution: execution}},
			},
		}},
	}

	var resp executeResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	c.mu.Lock()
	for _, result := range resp.Payload.Commands {
		if len(result.States) == 0 {
			continue
		}
		for _, id := range result.IDs {
			c.stateCache[id] = result.States
		}
	}
	c.mu.Unlock()

	return resp.Payload.Commands, nil
}

// CachedState returns the freshest cached state fragment for a device.
func (c *Client) CachedState(id string) (convert.VendorState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.stateCache[id]
	if !ok {
		return nil, false
	}
	// Copy so callers cannot mutate the cache entry
	cpy := make(convert.VendorState, len(st))
	for k, v := range st {
		cpy[k] = v
	}
	return cpy, true
}

// InvalidateCached drops the cached fragment for a device. Used when a
// push update supersedes whatever the API last reported.
func (c *Client) InvalidateCached(id string) {
	c.mu.Lock()
	delete(c.stateCache, id)
	c.mu.Unlock()
}

// post sends one intent request and decodes the response into out.
func (c *Client) post(ctx context.Context, body intentRequest, out any) error {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %w", ErrAPI, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrAPI, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommunication, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only response

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrCommunication, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The API no longer accepts the token; classify as an auth
		// failure so the caller invalidates it.
		return fmt.Errorf("%w: api rejected token with status %d", auth.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: unexpected status %d", ErrAPI, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: malformed response: %w", ErrAPI, err)
	}
	return nil
}
