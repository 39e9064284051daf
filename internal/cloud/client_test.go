package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eotlabs/eot-cloud-core/internal/auth"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/config"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) GetAccessToken(context.Context) (string, error) {
	return s.token, s.err
}

func newTestClient(apiURL string) *Client {
	return NewClient(
		config.CloudConfig{APIURL: apiURL, Timeout: 5},
		staticTokens{token: "bearer-token"},
	)
}

func decodeIntent(t *testing.T, r *http.Request) intentRequest {
	t.Helper()
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decoding request: %v", err)
	}
	return req
}

func TestSyncDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer bearer-token" {
			t.Errorf("Authorization = %q", got)
		}
		req := decodeIntent(t, r)
		if req.RequestID == "" {
			t.Errorf("requestId missing")
		}
		if len(req.Inputs) != 1 || req.Inputs[0].Intent != intentSync {
			t.Errorf("inputs = %+v, want single SYNC intent", req.Inputs)
		}
		fmt.Fprint(w, `{"requestId":"r1","payload":{"devices":[
			{"id":"alice-hw01-r1","type":"action.devices.types.SWITCH","traits":["action.devices.traits.OnOff"],"name":{"name":"Desk"},"willReportState":true},
			{"id":"alice-hw02-fan","type":"action.devices.types.FAN","name":{"name":"Fan"},"willReportState":false}
		]}}`)
	}))
	defer srv.Close()

	devices, err := newTestClient(srv.URL).SyncDevices(context.Background())
	if err != nil {
		t.Fatalf("SyncDevices() error: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].ID != "alice-hw01-r1" || devices[0].Name.Name != "Desk" {
		t.Errorf("device[0] = %+v", devices[0])
	}
	if !devices[0].WillReportState || devices[1].WillReportState {
		t.Errorf("willReportState not decoded")
	}
}

func TestQueryStates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeIntent(t, r)
		if req.Inputs[0].Intent != intentQuery {
			t.Errorf("intent = %q, want QUERY", req.Inputs[0].Intent)
		}
		payload, _ := json.Marshal(req.Inputs[0].Payload)
		var qp queryPayload
		if err := json.Unmarshal(payload, &qp); err != nil {
			t.Fatalf("payload shape: %v", err)
		}
		if len(qp.Devices) != 2 {
			t.Errorf("queried %d devices, want 2", len(qp.Devices))
		}
		fmt.Fprint(w, `{"payload":{"devices":{
			"alice-hw01-r1":{"on":true,"online":true},
			"alice-hw02-rall":{"on":false,"brightness":40}
		}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	states, err := c.QueryStates(context.Background(), []string{"alice-hw01-r1", "alice-hw02-rall"})
	if err != nil {
		t.Fatalf("QueryStates() error: %v", err)
	}
	if states["alice-hw01-r1"]["on"] != true {
		t.Errorf("state fragment = %v", states["alice-hw01-r1"])
	}

	// Fragments land in the cache
	cached, ok := c.CachedState("alice-hw02-rall")
	if !ok {
		t.Fatalf("query result not cached")
	}
	if cached["brightness"] != float64(40) {
		t.Errorf("cached = %v", cached)
	}
}

func TestQueryStatesEmptyIDsSkipsCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Errorf("unexpected API call")
	}))
	defer srv.Close()

	states, err := newTestClient(srv.URL).QueryStates(context.Background(), nil)
	if err != nil {
		t.Fatalf("QueryStates() error: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("states = %v, want empty", states)
	}
}

func TestExecuteCachesCommandStates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeIntent(t, r)
		if req.Inputs[0].Intent != intentExecute {
			t.Errorf("intent = %q, want EXECUTE", req.Inputs[0].Intent)
		}
		fmt.Fprint(w, `{"payload":{"commands":[
			{"ids":["alice-hw01-r1"],"status":"SUCCESS","states":{"on":true,"online":true}}
		]}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	results, err := c.Execute(context.Background(), []string{"alice-hw01-r1"}, []Execution{
		{Command: "action.devices.commands.OnOff", Params: map[string]any{"on": true}},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(results) != 1 || results[0].Status != "SUCCESS" {
		t.Errorf("results = %+v", results)
	}

	cached, ok := c.CachedState("alice-hw01-r1")
	if !ok || cached["on"] != true {
		t.Errorf("command state not cached: %v, %v", cached, ok)
	}

	c.InvalidateCached("alice-hw01-r1")
	if _, ok := c.CachedState("alice-hw01-r1"); ok {
		t.Errorf("cache entry survived invalidation")
	}
}

func TestCachedStateReturnsCopy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"payload":{"devices":{"a-h-r1":{"on":true}}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.QueryStates(context.Background(), []string{"a-h-r1"}); err != nil {
		t.Fatalf("QueryStates() error: %v", err)
	}

	first, _ := c.CachedState("a-h-r1")
	first["on"] = false

	second, _ := c.CachedState("a-h-r1")
	if second["on"] != true {
		t.Errorf("cache mutated through a returned copy")
	}
}

func TestRejectedTokenIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SyncDevices(context.Background())
	if !errors.Is(err, auth.ErrAuthentication) {
		t.Errorf("error = %v, want auth.ErrAuthentication", err)
	}
}

func TestServerErrorIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SyncDevices(context.Background())
	if !errors.Is(err, ErrAPI) {
		t.Errorf("error = %v, want ErrAPI", err)
	}
}

func TestNetworkFailureIsCommunicationError(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").SyncDevices(context.Background())
	if !errors.Is(err, ErrCommunication) {
		t.Errorf("error = %v, want ErrCommunication", err)
	}
}

func TestTokenFailurePassesThrough(t *testing.T) {
	c := NewClient(
		config.CloudConfig{APIURL: "http://unused", Timeout: 5},
		staticTokens{err: auth.ErrInvalidCredentials},
	)

	_, err := c.SyncDevices(context.Background())
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("error = %v, want pass-through ErrInvalidCredentials", err)
	}
}

func TestMalformedResponseIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"payload":`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SyncDevices(context.Background())
	if !errors.Is(err, ErrAPI) {
		t.Errorf("error = %v, want ErrAPI", err)
	}
}
