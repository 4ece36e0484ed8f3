package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/awsapigw/domain/provision"
	"github.com/artpar/awsapigw/ports"
)

// =============================================================================
// Client Tests (remote.go)
// =============================================================================

func TestClient_Request(t *testing.T) {
	var gotAuth, gotCustom, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Custom")
		gotContentType = r.Header.Get("Content-Type")

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]string{"echo": body["msg"]})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL: server.URL + "/",
		APIKey:  "token",
		Headers: map[string]string{"X-Custom": "value"},
	})

	var resp struct {
		Echo string `json:"echo"`
	}
	if err := client.Request(context.Background(), http.MethodPost, "/echo", map[string]string{"msg": "hi"}, &resp); err != nil {
		t.Fatalf("Request: %v", err)
	}

	if resp.Echo != "hi" {
		t.Errorf("Echo = %s, want hi", resp.Echo)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("Authorization = %s, want Bearer token", gotAuth)
	}
	if gotCustom != "value" {
		t.Errorf("X-Custom = %s, want value", gotCustom)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", gotContentType)
	}
}

func TestClient_RequestError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such thing", http.StatusNotFound)
	}))
	defer server.Close()

	err := NewClient(ClientConfig{BaseURL: server.URL}).Request(context.Background(), http.MethodGet, "/x", nil, nil)

	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *RemoteError", err)
	}
	if re.StatusCode != http.StatusNotFound || re.Message != "no such thing" {
		t.Errorf("RemoteError = %+v", re)
	}
	if !IsNotFound(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("plain errors are not 404s")
	}
}

func TestClient_JSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down","code":"throttled"}`))
	}))
	defer server.Close()

	err := NewClient(ClientConfig{BaseURL: server.URL}).Request(context.Background(), http.MethodGet, "/x", nil, nil)

	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *RemoteError", err)
	}
	if re.Code != "throttled" || re.Message != "slow down" {
		t.Errorf("RemoteError = %+v", re)
	}
	if !re.Temporary() {
		t.Error("429 should be temporary")
	}
	if !strings.Contains(err.Error(), "(throttled)") {
		t.Errorf("Error() = %s", err)
	}
}

func TestClient_PropagatesRequestID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Request-Id")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	if err := NewClient(ClientConfig{BaseURL: server.URL}).Request(ctx, http.MethodDelete, "/keys/a", nil, nil); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if got != "req-42" {
		t.Errorf("X-Request-Id = %q, want req-42", got)
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: 20 * time.Millisecond})
	if err := client.Request(context.Background(), http.MethodGet, "/slow", nil, nil); err == nil {
		t.Error("expected timeout error")
	}
}

// =============================================================================
// KeyService Tests (keyservice.go)
// =============================================================================

// controlPlane is a minimal in-memory implementation of the REST contract.
type controlPlane struct {
	mu      sync.Mutex
	keys    map[string]provision.ExternalKey
	plans   map[string][]string
	seq     int
	headers http.Header
}

func newControlPlane() *controlPlane {
	return &controlPlane{keys: map[string]provision.ExternalKey{}, plans: map[string][]string{}}
}

func (c *controlPlane) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers = r.Header.Clone()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/keys":
		var req createKeyRequest
		json.NewDecoder(r.Body).Decode(&req)
		c.seq++
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		k := provision.ExternalKey{
			ID:        fmt.Sprintf("k%d", c.seq),
			Value:     fmt.Sprintf("value-%d", c.seq),
			Name:      req.Name,
			Enabled:   req.Enabled,
			CreatedAt: now,
			UpdatedAt: now,
		}
		c.keys[k.ID] = k
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(k)

	case len(parts) == 2 && parts[0] == "keys":
		k, ok := c.keys[parts[1]]
		if !ok {
			http.Error(w, `{"message":"key not found"}`, http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(k)
		case http.MethodPatch:
			var req updateKeyRequest
			json.NewDecoder(r.Body).Decode(&req)
			k.Enabled = req.Enabled
			c.keys[k.ID] = k
			json.NewEncoder(w).Encode(k)
		case http.MethodDelete:
			delete(c.keys, k.ID)
			w.WriteHeader(http.StatusNoContent)
		}

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "usage-plans" && parts[2] == "keys":
		if parts[1] == "missing" {
			http.Error(w, `{"message":"usage plan not found"}`, http.StatusBadRequest)
			return
		}
		var req attachRequest
		json.NewDecoder(r.Body).Decode(&req)
		c.plans[req.KeyID] = append(c.plans[req.KeyID], parts[1])
		w.WriteHeader(http.StatusCreated)

	default:
		http.Error(w, "unexpected route", http.StatusMethodNotAllowed)
	}
}

func newTestService(t *testing.T) (ports.KeyService, *controlPlane) {
	t.Helper()
	cp := newControlPlane()
	server := httptest.NewServer(cp)
	t.Cleanup(server.Close)

	ks, err := NewFactory("", time.Second).KeyService(context.Background(), provision.Endpoint{
		AccessKeyID:     "AKIA123",
		SecretAccessKey: "shh",
		Region:          "eu-west-1",
		EndpointURL:     server.URL,
	})
	if err != nil {
		t.Fatalf("KeyService: %v", err)
	}
	return ks, cp
}

func TestKeyService_Lifecycle(t *testing.T) {
	ks, cp := newTestService(t)
	ctx := context.Background()

	key, err := ks.CreateKey(ctx, "whmcs__serviceid_1")
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if key.ID != "k1" || key.Value != "value-1" || !key.Enabled {
		t.Errorf("created = %+v", key)
	}

	if got := cp.headers.Get("Authorization"); got != "Bearer shh" {
		t.Errorf("Authorization = %s", got)
	}
	if got := cp.headers.Get("X-Access-Key-Id"); got != "AKIA123" {
		t.Errorf("X-Access-Key-Id = %s", got)
	}
	if got := cp.headers.Get("X-Region"); got != "eu-west-1" {
		t.Errorf("X-Region = %s", got)
	}

	if err := ks.AttachUsagePlan(ctx, key.ID, "gold"); err != nil {
		t.Fatalf("AttachUsagePlan: %v", err)
	}
	if err := ks.AttachUsagePlan(ctx, key.ID, "missing"); err == nil {
		t.Error("attach to unknown plan should fail")
	}
	if plans := cp.plans[key.ID]; len(plans) != 1 || plans[0] != "gold" {
		t.Errorf("plans = %v", plans)
	}

	updated, err := ks.UpdateKeyEnabled(ctx, key.ID, false)
	if err != nil || updated.Enabled {
		t.Fatalf("UpdateKeyEnabled = %+v, %v", updated, err)
	}

	got, err := ks.GetKey(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if got.Name != "whmcs__serviceid_1" || got.Enabled {
		t.Errorf("GetKey = %+v", got)
	}

	if err := ks.DeleteKey(ctx, key.ID); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
}

func TestKeyService_NotFound(t *testing.T) {
	ks, _ := newTestService(t)
	ctx := context.Background()

	if _, err := ks.GetKey(ctx, "nope"); !errors.Is(err, ports.ErrKeyNotFound) {
		t.Errorf("GetKey = %v, want ErrKeyNotFound", err)
	}
	if _, err := ks.UpdateKeyEnabled(ctx, "nope", true); !errors.Is(err, ports.ErrKeyNotFound) {
		t.Errorf("UpdateKeyEnabled = %v, want ErrKeyNotFound", err)
	}
	err := ks.DeleteKey(ctx, "nope")
	if !errors.Is(err, ports.ErrKeyNotFound) {
		t.Errorf("DeleteKey = %v, want ErrKeyNotFound", err)
	}
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Error("the RemoteError should stay reachable")
	}
}

func TestFactory_EndpointURL(t *testing.T) {
	ctx := context.Background()

	if _, err := NewFactory("", 0).KeyService(ctx, provision.Endpoint{}); err == nil {
		t.Error("missing url should fail")
	}
	if _, err := NewFactory("", 0).KeyService(ctx, provision.Endpoint{EndpointURL: "not a url"}); err == nil {
		t.Error("invalid url should fail")
	}
	if _, err := NewFactory("https://keys.example.com", 0).KeyService(ctx, provision.Endpoint{}); err != nil {
		t.Errorf("default url: %v", err)
	}
}
