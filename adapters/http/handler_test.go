package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/artpar/awsapigw/adapters/clock"
	"github.com/artpar/awsapigw/adapters/hasher"
	apihttp "github.com/artpar/awsapigw/adapters/http"
	"github.com/artpar/awsapigw/adapters/idgen"
	"github.com/artpar/awsapigw/adapters/memory"
	"github.com/artpar/awsapigw/adapters/metrics"
	"github.com/artpar/awsapigw/adapters/random"
	"github.com/artpar/awsapigw/app"
	"github.com/artpar/awsapigw/domain/provision"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

const testToken = "callback-token"

type testServer struct {
	router  http.Handler
	records *memory.RecordStore
	keys    *memory.Factory
	metrics *metrics.Collector
}

func setupTestServer(t *testing.T, auth *hasher.TokenVerifier) *testServer {
	t.Helper()

	clk := clock.NewFake(baseTime)
	keys := memory.NewFactory(
		memory.WithClock(clk),
		memory.WithIDGenerator(idgen.NewSequential("key")),
		memory.WithRandom(random.NewFake()),
	)
	records := memory.NewRecordStore()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	svc := app.NewLifecycleService(app.LifecycleDeps{
		Records: records,
		Keys:    keys,
		Clock:   clk,
		Logger:  zerolog.Nop(),
		Metrics: m,
	}, app.LifecycleConfig{})

	callbacks := apihttp.NewCallbackHandler(apihttp.CallbackHandlerConfig{
		Lifecycle: svc,
		Defaults: func() apihttp.CallbackDefaults {
			return apihttp.CallbackDefaults{
				Endpoint:      provision.Endpoint{AccessKeyID: "AKIA", SecretAccessKey: "secret", Region: "us-east-1"},
				KeyNamePrefix: "whmcs_",
				UsagePlans:    "Default-Plan",
			}
		},
		Logger: zerolog.Nop(),
	})

	router := apihttp.NewRouter(callbacks, apihttp.NewHealthHandler(records), zerolog.Nop(), apihttp.RouterConfig{
		Metrics:        m,
		MetricsHandler: http.NotFoundHandler(),
		Auth:           auth,
		Version:        "1.2.3",
	})
	return &testServer{router: router, records: records, keys: keys, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+testToken)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func result(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apihttp.ResultResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Result
}

func TestCreate_UsesDefaults(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/services/42/create", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := result(t, rec); got != "success" {
		t.Fatalf("result = %q, want success", got)
	}

	r, err := s.records.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if r.Region != "us-east-1" {
		t.Errorf("region = %s, want us-east-1", r.Region)
	}
	if !reflect.DeepEqual(r.UsagePlans, []string{"default-plan"}) {
		t.Errorf("plans = %v, want [default-plan]", r.UsagePlans)
	}

	k, ok := s.keys.Region("us-east-1").Key(r.KeyID)
	if !ok {
		t.Fatal("key not created in us-east-1")
	}
	if k.Name != "whmcs__serviceid_42" {
		t.Errorf("key name = %s", k.Name)
	}
}

func TestCreate_ConfigOptionsOverrideDefaults(t *testing.T) {
	s := setupTestServer(t, nil)

	body := `{"config_options":{"api_name_pfx":"acme","api_region":"eu-west-1","usage_plan_ids":"P1\nP2, p1"}}`
	rec := s.do(t, http.MethodPost, "/v1/services/7/create", body)
	if got := result(t, rec); got != "success" {
		t.Fatalf("result = %q, want success", got)
	}

	r, _ := s.records.Get(context.Background(), 7)
	if r.Region != "eu-west-1" {
		t.Errorf("region = %s, want eu-west-1", r.Region)
	}
	if !reflect.DeepEqual(r.UsagePlans, []string{"p1", "p2"}) {
		t.Errorf("plans = %v, want [p1 p2]", r.UsagePlans)
	}
	k, ok := s.keys.Region("eu-west-1").Key(r.KeyID)
	if !ok || k.Name != "acme_serviceid_7" {
		t.Errorf("key = %+v, ok = %v", k, ok)
	}
}

func TestCreate_TwiceReportsAlreadyExists(t *testing.T) {
	s := setupTestServer(t, nil)

	s.do(t, http.MethodPost, "/v1/services/1/create", "")
	rec := s.do(t, http.MethodPost, "/v1/services/1/create", "")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := result(t, rec); !strings.Contains(got, "already exists") {
		t.Errorf("result = %q, want already exists message", got)
	}
}

func TestSuspendUnsuspend(t *testing.T) {
	s := setupTestServer(t, nil)
	s.do(t, http.MethodPost, "/v1/services/3/create", "")
	r, _ := s.records.Get(context.Background(), 3)
	gw := s.keys.Region("us-east-1")

	if got := result(t, s.do(t, http.MethodPost, "/v1/services/3/suspend", "{}")); got != "success" {
		t.Fatalf("suspend = %q", got)
	}
	if k, _ := gw.Key(r.KeyID); k.Enabled {
		t.Error("key still enabled after suspend")
	}

	if got := result(t, s.do(t, http.MethodPost, "/v1/services/3/unsuspend", "")); got != "success" {
		t.Fatalf("unsuspend = %q", got)
	}
	if k, _ := gw.Key(r.KeyID); !k.Enabled {
		t.Error("key still disabled after unsuspend")
	}
}

func TestSuspend_NotProvisioned(t *testing.T) {
	s := setupTestServer(t, nil)

	got := result(t, s.do(t, http.MethodPost, "/v1/services/99/suspend", ""))
	if !strings.Contains(got, "does not exist") {
		t.Errorf("result = %q, want not-provisioned message", got)
	}
}

func TestTerminate(t *testing.T) {
	s := setupTestServer(t, nil)
	s.do(t, http.MethodPost, "/v1/services/5/create", "")

	if got := result(t, s.do(t, http.MethodPost, "/v1/services/5/terminate", "")); got != "success" {
		t.Fatalf("terminate = %q", got)
	}
	if s.records.Len() != 0 {
		t.Error("record not removed")
	}
	if n := len(s.keys.Region("us-east-1").Keys()); n != 0 {
		t.Errorf("keys left = %d, want 0", n)
	}
}

func TestReset_RequiresActiveStatus(t *testing.T) {
	s := setupTestServer(t, nil)
	s.do(t, http.MethodPost, "/v1/services/8/create", "")
	before, _ := s.records.Get(context.Background(), 8)

	got := result(t, s.do(t, http.MethodPost, "/v1/services/8/reset", `{"status":"Suspended"}`))
	if !strings.Contains(got, "Invalid request parameters") {
		t.Errorf("result = %q, want invalid params", got)
	}

	if got := result(t, s.do(t, http.MethodPost, "/v1/services/8/reset", `{"status":"Active"}`)); got != "success" {
		t.Fatalf("reset = %q", got)
	}
	after, _ := s.records.Get(context.Background(), 8)
	if after.KeyID == before.KeyID {
		t.Error("reset kept the old key")
	}
}

func TestDescribe(t *testing.T) {
	s := setupTestServer(t, nil)
	s.do(t, http.MethodPost, "/v1/services/12/create", "")

	rec := s.do(t, http.MethodGet, "/v1/services/12", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp apihttp.DescribeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Registered || resp.Source != "live" || resp.Status != provision.StatusEnabled {
		t.Errorf("resp = %+v", resp)
	}

	fields := map[string]string{}
	for _, f := range resp.Fields {
		fields[f.Label] = f.Value
	}
	if fields["Deployed Region"] != "us-east-1" {
		t.Errorf("Deployed Region = %q", fields["Deployed Region"])
	}
	if !strings.HasPrefix(fields["Key Name"], "whmcs__serviceid_12 (ID: ") {
		t.Errorf("Key Name = %q", fields["Key Name"])
	}
	if fields["Key Created"] != "2024-01-15 12:00:00" {
		t.Errorf("Key Created = %q", fields["Key Created"])
	}
}

func TestDescribe_LocalAndUnregistered(t *testing.T) {
	s := setupTestServer(t, nil)
	s.do(t, http.MethodPost, "/v1/services/2/create", "")
	calls := s.keys.Region("us-east-1").TotalCalls()

	var resp apihttp.DescribeResponse
	json.NewDecoder(s.do(t, http.MethodGet, "/v1/services/2?local=1", "").Body).Decode(&resp)
	if resp.Source != "local" {
		t.Errorf("source = %s, want local", resp.Source)
	}
	if got := s.keys.Region("us-east-1").TotalCalls(); got != calls {
		t.Errorf("local describe made %d gateway calls", got-calls)
	}

	resp = apihttp.DescribeResponse{}
	json.NewDecoder(s.do(t, http.MethodGet, "/v1/services/404", "").Body).Decode(&resp)
	if resp.Registered {
		t.Error("unknown service reported as registered")
	}
	if len(resp.Fields) != 1 || resp.Fields[0].Value != provision.StatusNotRegistered {
		t.Errorf("fields = %v", resp.Fields)
	}
}

func (s *testServer) lastEndpoint(t *testing.T) provision.Endpoint {
	t.Helper()
	eps := s.keys.Endpoints()
	if len(eps) == 0 {
		t.Fatal("no endpoint reached the gateway factory")
	}
	return eps[len(eps)-1]
}

func TestDescribeWith_UsesCallbackCredentials(t *testing.T) {
	s := setupTestServer(t, nil)
	opts := `{"config_options":{"aws_key_id":"AKIA-SVC","aws_key_secret":"svc-secret"}}`
	if got := result(t, s.do(t, http.MethodPost, "/v1/services/31/create", opts)); got != "success" {
		t.Fatalf("create = %q", got)
	}

	rec := s.do(t, http.MethodPost, "/v1/services/31/describe", opts)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp apihttp.DescribeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Source != "live" || resp.Status != provision.StatusEnabled {
		t.Errorf("resp = %+v", resp)
	}

	ep := s.lastEndpoint(t)
	if ep.AccessKeyID != "AKIA-SVC" || ep.SecretAccessKey != "svc-secret" {
		t.Errorf("describe endpoint credentials = %s/%s, want AKIA-SVC/svc-secret", ep.AccessKeyID, ep.SecretAccessKey)
	}
}

func TestDescribe_NeverMixesCredentials(t *testing.T) {
	s := setupTestServer(t, nil)
	s.do(t, http.MethodPost, "/v1/services/32/create", "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"get ignores key id query", http.MethodGet, "/v1/services/32?aws_key_id=AKIA-SVC", ""},
		{"body key id alone", http.MethodPost, "/v1/services/32/describe", `{"config_options":{"aws_key_id":"AKIA-SVC"}}`},
		{"body secret alone", http.MethodPost, "/v1/services/32/describe", `{"config_options":{"aws_key_secret":"svc-secret"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, tt.method, tt.path, tt.body); rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			ep := s.lastEndpoint(t)
			if ep.AccessKeyID != "AKIA" || ep.SecretAccessKey != "secret" {
				t.Errorf("credentials = %s/%s, want the configured pair", ep.AccessKeyID, ep.SecretAccessKey)
			}
		})
	}
}

func TestSuspend_PartialCredentialsUseDefaults(t *testing.T) {
	s := setupTestServer(t, nil)
	s.do(t, http.MethodPost, "/v1/services/33/create", "")

	body := `{"config_options":{"aws_key_id":"AKIA-SVC"}}`
	if got := result(t, s.do(t, http.MethodPost, "/v1/services/33/suspend", body)); got != "success" {
		t.Fatalf("suspend = %q", got)
	}
	ep := s.lastEndpoint(t)
	if ep.AccessKeyID != "AKIA" || ep.SecretAccessKey != "secret" {
		t.Errorf("credentials = %s/%s, want the configured pair", ep.AccessKeyID, ep.SecretAccessKey)
	}
}

func TestDescribeWith_InvalidBody(t *testing.T) {
	s := setupTestServer(t, nil)
	rec := s.do(t, http.MethodPost, "/v1/services/34/describe", "{")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDescribe_StoreFailure(t *testing.T) {
	s := setupTestServer(t, nil)
	s.records.SetGetError(errors.New("disk gone"))

	rec := s.do(t, http.MethodGet, "/v1/services/2", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestInvalidRequests(t *testing.T) {
	s := setupTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"non-numeric id", http.MethodPost, "/v1/services/abc/create", ""},
		{"zero id", http.MethodPost, "/v1/services/0/suspend", ""},
		{"negative describe", http.MethodGet, "/v1/services/-4", ""},
		{"bad json", http.MethodPost, "/v1/services/4/create", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := result(t, rec); !strings.HasPrefix(got, "Invalid request parameters") {
				t.Errorf("result = %q", got)
			}
		})
	}
	if s.records.Len() != 0 {
		t.Error("invalid request created a record")
	}
}

func TestAuth(t *testing.T) {
	s := setupTestServer(t, hasher.NewTokenVerifier(hasher.Plain{}, testToken))

	req := httptest.NewRequest(http.MethodPost, "/v1/services/1/create", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if got := testutil.ToFloat64(s.metrics.AuthFailures); got != 1 {
		t.Errorf("auth failures = %v, want 1", got)
	}
	if s.records.Len() != 0 {
		t.Error("unauthorized request created a record")
	}

	if got := result(t, s.do(t, http.MethodPost, "/v1/services/1/create", "")); got != "success" {
		t.Errorf("authorized create = %q", got)
	}

	// health stays open
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestHealthReady(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestVersion(t *testing.T) {
	s := setupTestServer(t, nil)

	var v apihttp.VersionResponse
	json.NewDecoder(s.do(t, http.MethodGet, "/version", "").Body).Decode(&v)
	if v.Version != "1.2.3" || v.Service != "awsapigw" {
		t.Errorf("version = %+v", v)
	}
}

func TestRequestMetrics(t *testing.T) {
	s := setupTestServer(t, nil)
	s.do(t, http.MethodPost, "/v1/services/1/create", "")

	got := testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues(http.MethodPost, "/v1/services/{id}/create", "2xx"))
	if got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
}
