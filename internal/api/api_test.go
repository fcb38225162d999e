// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/heimdall/internal/firewall"
	"github.com/tomtom215/heimdall/internal/ingest"
	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/models"
	"github.com/tomtom215/heimdall/internal/registry"
	"github.com/tomtom215/heimdall/internal/store"
	"github.com/tomtom215/heimdall/internal/store/badgerstore"
	ws "github.com/tomtom215/heimdall/internal/websocket"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// flakyStore injects failures into a real backend.
type flakyStore struct {
	store.Store

	mu          sync.Mutex
	appendErr   error
	appendDelay time.Duration
	upsertErr   error
	pingErr     error
}

func (f *flakyStore) set(fn func(*flakyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *flakyStore) AppendEvent(ctx context.Context, ev *models.Event) error {
	f.mu.Lock()
	err, delay := f.appendErr, f.appendDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return f.Store.AppendEvent(ctx, ev)
}

func (f *flakyStore) UpsertNode(ctx context.Context, n *models.Node) error {
	f.mu.Lock()
	err := f.upsertErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.UpsertNode(ctx, n)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	err := f.pingErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Ping(ctx)
}

type testEnv struct {
	handler http.Handler
	backend *flakyStore
	hub     *ws.Hub
	nodes   *registry.Registry
	rules   *firewall.Store
}

func newTestEnv(t *testing.T, storageTimeout time.Duration) *testEnv {
	t.Helper()
	bs, err := badgerstore.Open(badgerstore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = bs.Close() })

	backend := &flakyStore{Store: bs}
	gw := store.NewGuard(backend, store.GuardConfig{Backend: "badger", Timeout: storageTimeout})
	hub := ws.NewHub(ws.Config{})
	nodes := registry.New(gw, registry.Config{})
	rules := firewall.New(gw, firewall.Config{})

	cfg := ingest.DefaultConfig()
	cfg.DiscoverNodes = false
	coord := ingest.New(gw, hub, rules, nodes, cfg)

	h := NewHandler(Deps{Ingest: coord, Events: gw, Nodes: nodes, Rules: rules, Hub: hub, Health: gw}, HandlerConfig{})
	mw := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})
	return &testEnv{
		handler: NewRouter(h, mw).Setup(),
		backend: backend,
		hub:     hub,
		nodes:   nodes,
		rules:   rules,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
	Meta    Meta            `json:"meta"`
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
	return env
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) envelope {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d: %s", rec.Code, status, rec.Body.String())
	}
	env := decodeEnvelope(t, rec, nil)
	if env.Success || env.Error == nil || env.Error.Code != code {
		t.Fatalf("error body = %s, want code %s", rec.Body.String(), code)
	}
	if env.Error.RequestID == "" {
		t.Error("error body missing request_id")
	}
	return env
}

const validEvent = `{"timestamp":"10:00:01","src":"192.168.1.20","dst":"8.8.8.8","protocol":"UDP","status":"ALLOWED","message":"dns"}`

func TestSubmitAndListEvents(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.do(t, http.MethodPost, "/api/v1/events", validEvent)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	var ev models.Event
	if body := decodeEnvelope(t, rec, &ev); !body.Success {
		t.Fatalf("submit not successful: %s", rec.Body.String())
	}
	if ev.Seq != 1 || ev.Src != "192.168.1.20" || ev.Timestamp != "10:00:01" {
		t.Errorf("event = %+v", ev)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	env.do(t, http.MethodPost, "/api/v1/events", validEvent)

	rec = env.do(t, http.MethodGet, "/api/v1/events", "")
	var events []models.Event
	body := decodeEnvelope(t, rec, &events)
	if len(events) != 2 || events[0].Seq != 2 || events[1].Seq != 1 {
		t.Errorf("events = %+v", events)
	}
	if body.Meta.Count == nil || *body.Meta.Count != 2 {
		t.Errorf("meta.count = %v, want 2", body.Meta.Count)
	}
}

func TestSubmitEventInvalid(t *testing.T) {
	env := newTestEnv(t, time.Second)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad status", `{"src":"1.1.1.1","dst":"2.2.2.2","protocol":"TCP","status":"MAYBE"}`, "status"},
		{"missing src", `{"dst":"2.2.2.2","protocol":"TCP","status":"ALLOWED"}`, "src"},
		{"malformed", `{"src":`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/events", tt.body)
			body := expectError(t, rec, http.StatusBadRequest, CodeValidationFailed)
			if body.Error.Details[tt.field] == "" {
				t.Errorf("details = %v, want entry for %s", body.Error.Details, tt.field)
			}
		})
	}

	rec := env.do(t, http.MethodGet, "/api/v1/events", "")
	var events []models.Event
	decodeEnvelope(t, rec, &events)
	if len(events) != 0 {
		t.Errorf("invalid events were persisted: %+v", events)
	}
}

func TestSubmitEventStorageErrors(t *testing.T) {
	t.Run("failure", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		env.backend.set(func(f *flakyStore) { f.appendErr = errors.New("disk full") })

		body := expectError(t, env.do(t, http.MethodPost, "/api/v1/events", validEvent), http.StatusInternalServerError, CodeStorageError)
		if strings.Contains(body.Error.Message, "disk full") {
			t.Error("backend error text leaked to client")
		}
		if len(env.hub.History()) != 0 {
			t.Error("failed event was published")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		env := newTestEnv(t, 20*time.Millisecond)
		env.backend.set(func(f *flakyStore) { f.appendDelay = 200 * time.Millisecond })

		expectError(t, env.do(t, http.MethodPost, "/api/v1/events", validEvent), http.StatusGatewayTimeout, CodeStorageTimeout)
		if len(env.hub.History()) != 0 {
			t.Error("timed out event was published")
		}
		var events []models.Event
		decodeEnvelope(t, env.do(t, http.MethodGet, "/api/v1/events", ""), &events)
		if len(events) != 0 {
			t.Errorf("timed out event was stored: %+v", events)
		}
	})
}

func TestRecentEventsLimit(t *testing.T) {
	env := newTestEnv(t, time.Second)
	for i := 0; i < 3; i++ {
		env.do(t, http.MethodPost, "/api/v1/events", validEvent)
	}

	for _, bad := range []string{"0", "501", "-1", "ten"} {
		expectError(t, env.do(t, http.MethodGet, "/api/v1/events?limit="+bad, ""), http.StatusBadRequest, CodeValidationFailed)
	}

	var events []models.Event
	decodeEnvelope(t, env.do(t, http.MethodGet, "/api/v1/events?limit=2", ""), &events)
	if len(events) != 2 || events[0].Seq != 3 {
		t.Errorf("limited events = %+v", events)
	}
}

func TestNodeEndpoints(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.do(t, http.MethodPost, "/api/v1/nodes", `{"address":"10.0.0.5","os":"Linux"}`)
	var node models.Node
	decodeEnvelope(t, rec, &node)
	if rec.Code != http.StatusOK || node.TrustScore != 100 || node.OS != "Linux" || node.MAC != models.UnknownAttr {
		t.Fatalf("upsert = %d %+v", rec.Code, node)
	}

	for _, step := range []struct {
		amount int
		want   int
	}{{30, 70}, {30, 40}, {50, 0}} {
		rec := env.do(t, http.MethodPost, "/api/v1/nodes/penalize", `{"address":"10.0.0.5","amount":`+itoa(step.amount)+`}`)
		var res PenalizeResult
		decodeEnvelope(t, rec, &res)
		if !res.Known || res.Node == nil || res.Node.TrustScore != step.want {
			t.Fatalf("penalize %d = %+v, want score %d", step.amount, res, step.want)
		}
	}

	rec = env.do(t, http.MethodPost, "/api/v1/nodes/penalize", `{"address":"10.9.9.9","amount":10}`)
	var res PenalizeResult
	decodeEnvelope(t, rec, &res)
	if rec.Code != http.StatusOK || res.Known {
		t.Errorf("unknown penalize = %d %+v", rec.Code, res)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/nodes/penalize", `{"address":"10.0.0.5","amount":-1}`), http.StatusBadRequest, CodeValidationFailed)
	expectError(t, env.do(t, http.MethodPost, "/api/v1/nodes/penalize", `{"address":"10.0.0.5"}`), http.StatusBadRequest, CodeValidationFailed)
	expectError(t, env.do(t, http.MethodPost, "/api/v1/nodes", `{"address":"not-an-ip"}`), http.StatusBadRequest, CodeValidationFailed)

	var nodes []models.Node
	decodeEnvelope(t, env.do(t, http.MethodGet, "/api/v1/nodes", ""), &nodes)
	if len(nodes) != 1 || nodes[0].TrustScore != 0 {
		t.Errorf("nodes = %+v", nodes)
	}
}

func TestRuleEndpoints(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.do(t, http.MethodPost, "/api/v1/rules", `{"address":"1.2.3.4","reason":"scanner"}`)
	var rule models.Rule
	decodeEnvelope(t, rec, &rule)
	if rec.Code != http.StatusOK || rule.ID == "" || rule.Action != models.ActionDeny {
		t.Fatalf("add = %d %+v", rec.Code, rule)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/rules", `{"address":"1.2.3.4"}`), http.StatusConflict, CodeConflict)
	expectError(t, env.do(t, http.MethodPost, "/api/v1/rules", `{"address":"1.2.3.5","action":"DROP"}`), http.StatusBadRequest, CodeValidationFailed)

	rec = env.do(t, http.MethodPost, "/api/v1/rules", `{"address":"1.2.3.6","action":"allow"}`)
	var allow models.Rule
	decodeEnvelope(t, rec, &allow)
	if allow.Action != models.ActionAllow || allow.Reason != models.DefaultRuleReason {
		t.Errorf("allow rule = %+v", allow)
	}

	var rules []models.Rule
	decodeEnvelope(t, env.do(t, http.MethodGet, "/api/v1/rules", ""), &rules)
	if len(rules) != 2 {
		t.Fatalf("rules = %+v", rules)
	}

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodDelete, "/api/v1/rules/"+rule.ID, ""); rec.Code != http.StatusOK {
			t.Fatalf("delete #%d = %d", i+1, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodDelete, "/api/v1/rules/does-not-exist", ""); rec.Code != http.StatusOK {
		t.Errorf("delete unknown = %d", rec.Code)
	}
	if _, ok := env.rules.Lookup("1.2.3.4"); ok {
		t.Error("rule still present after delete")
	}
}

func TestQuickBlock(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.do(t, http.MethodPost, "/api/v1/nodes", `{"address":"10.0.0.7"}`)

	rec := env.do(t, http.MethodPost, "/api/v1/nodes/10.0.0.7/block", "")
	var res QuickBlockResult
	decodeEnvelope(t, rec, &res)
	if rec.Code != http.StatusOK || !res.Penalized || res.Node.TrustScore != 50 || res.Rule.Reason != models.DefaultRuleReason {
		t.Fatalf("quick block = %d %+v", rec.Code, res)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/nodes/10.0.0.7/block", ""), http.StatusConflict, CodeConflict)
	if n, _ := env.nodes.Get("10.0.0.7"); n.TrustScore != 50 {
		t.Errorf("duplicate block penalized again: %d", n.TrustScore)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/nodes/10.0.0.8/block", `{"reason":"port scan"}`)
	res = QuickBlockResult{}
	decodeEnvelope(t, rec, &res)
	if rec.Code != http.StatusOK || res.Penalized || res.Rule.Reason != "port scan" {
		t.Errorf("unknown node block = %d %+v", rec.Code, res)
	}
}

func TestQuickBlockPartialFailure(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.do(t, http.MethodPost, "/api/v1/nodes", `{"address":"10.0.0.9"}`)
	env.backend.set(func(f *flakyStore) { f.upsertErr = errors.New("node table locked") })

	rec := env.do(t, http.MethodPost, "/api/v1/nodes/10.0.0.9/block", "")
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207: %s", rec.Code, rec.Body.String())
	}
	var res QuickBlockResult
	decodeEnvelope(t, rec, &res)
	if res.Penalized || res.PenaltyError == "" || res.Rule.ID == "" {
		t.Errorf("partial result = %+v", res)
	}
	if _, ok := env.rules.Lookup("10.0.0.9"); !ok {
		t.Error("rule should remain after penalty failure")
	}
	if n, _ := env.nodes.Get("10.0.0.9"); n.TrustScore != 100 {
		t.Errorf("score changed to %d despite failure", n.TrustScore)
	}
}

func TestLegacyRoutes(t *testing.T) {
	env := newTestEnv(t, time.Second)

	rec := env.do(t, http.MethodPost, "/api/log", validEvent)
	var ev models.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil || rec.Code != http.StatusOK || ev.Seq != 1 {
		t.Fatalf("legacy log = %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"success"`) {
		t.Error("legacy response should not be enveloped")
	}

	rec = env.do(t, http.MethodPost, "/api/nodes/update", `{"ip":"10.1.1.1","os":"Windows","mac":"aa:bb:cc:dd:ee:ff"}`)
	var upserted legacyUpsertResult
	if err := json.Unmarshal(rec.Body.Bytes(), &upserted); err != nil || !upserted.Success || upserted.Node.IP != "10.1.1.1" {
		t.Fatalf("legacy node update = %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/nodes/penalize", `{"ip":"10.1.1.1","penalty":15}`)
	if got := strings.TrimSpace(rec.Body.String()); rec.Code != http.StatusOK || got != `{"success":true}` {
		t.Errorf("legacy penalize = %d %s", rec.Code, got)
	}

	// Field names follow the original dashboard: _id, ip, trustScore, lastSeen.
	rec = env.do(t, http.MethodGet, "/api/nodes", "")
	var rawNodes []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &rawNodes); err != nil || len(rawNodes) != 1 {
		t.Fatalf("legacy nodes: %v %s", err, rec.Body.String())
	}
	for _, key := range []string{"_id", "ip", "mac", "os", "type", "trustScore", "status", "lastSeen"} {
		if _, ok := rawNodes[0][key]; !ok {
			t.Errorf("legacy node missing %q: %v", key, rawNodes[0])
		}
	}
	if rawNodes[0]["trustScore"] != float64(85) || rawNodes[0]["os"] != "Windows" || rawNodes[0]["status"] != "Online" {
		t.Errorf("legacy node = %v", rawNodes[0])
	}

	rec = env.do(t, http.MethodPost, "/api/firewall", `{"ip":"6.6.6.6","reason":"botnet"}`)
	var rule legacyRule
	if err := json.Unmarshal(rec.Body.Bytes(), &rule); err != nil || rule.IP != "6.6.6.6" || rule.ID == "" || rule.Reason != "botnet" {
		t.Fatalf("legacy rule = %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/firewall", `{"ip":"6.6.6.6"}`)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("legacy duplicate = %d %s", rec.Code, rec.Body.String())
	}

	var rules []legacyRule
	if err := json.Unmarshal(env.do(t, http.MethodGet, "/api/firewall", "").Body.Bytes(), &rules); err != nil || len(rules) != 1 || rules[0].ID != rule.ID {
		t.Errorf("legacy rules = %+v", rules)
	}
	if rec := env.do(t, http.MethodDelete, "/api/firewall/"+rule.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("legacy delete = %d", rec.Code)
	}
	if got := env.rules.Len(); got != 0 {
		t.Errorf("rules after legacy delete = %d", got)
	}
}

func TestLegacyWebSocketStream(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.do(t, http.MethodPost, "/api/log", validEvent)

	server := httptest.NewServer(env.handler)
	defer server.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/", nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() []models.Event {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var events []models.Event
		if err := json.Unmarshal(data, &events); err != nil {
			t.Fatalf("message is not an event array: %s", data)
		}
		return events
	}

	if history := read(); len(history) != 1 || history[0].Seq != 1 || history[0].Src == "" {
		t.Fatalf("history = %+v", history)
	}

	resp2, err := http.Post(server.URL+"/api/log", "application/json", bytes.NewBufferString(validEvent))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp2.Body.Close()

	if live := read(); len(live) != 1 || live[0].Seq != 2 {
		t.Errorf("live = %+v", live)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, time.Second)

	if rec := env.do(t, http.MethodGet, "/api/v1/health/live", ""); rec.Code != http.StatusOK {
		t.Errorf("live = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/health/ready", ""); rec.Code != http.StatusOK {
		t.Errorf("ready = %d", rec.Code)
	}

	env.backend.set(func(f *flakyStore) { f.pingErr = errors.New("down") })
	rec := env.do(t, http.MethodGet, "/api/v1/health/ready", "")
	var status HealthStatus
	decodeEnvelope(t, rec, &status)
	if rec.Code != http.StatusServiceUnavailable || status.Storage != "unreachable" {
		t.Errorf("ready while down = %d %+v", rec.Code, status)
	}
}

func TestMetricsAndNotFound(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.do(t, http.MethodPost, "/api/v1/events", validEvent)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "heimdall_events_ingested_total") {
		t.Errorf("metrics = %d", rec.Code)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/v1/nope", ""), http.StatusNotFound, CodeNotFound)
}

func TestWebSocketStream(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.do(t, http.MethodPost, "/api/v1/events", validEvent)

	server := httptest.NewServer(env.handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() ws.Frame {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f ws.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return f
	}

	if f := read(); f.Type != ws.FrameHistory || len(f.Data) != 1 || f.Data[0].Seq != 1 {
		t.Fatalf("history frame = %+v", f)
	}

	resp2, err := http.Post(server.URL+"/api/v1/events", "application/json", bytes.NewBufferString(validEvent))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp2.Body.Close()

	if f := read(); f.Type != ws.FrameEvents || len(f.Data) != 1 || f.Data[0].Seq != 2 {
		t.Errorf("live frame = %+v", f)
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	h := NewHandler(Deps{}, HandlerConfig{AllowedOrigins: []string{"http://dashboard.local"}})

	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "heimdall:5000", true},
		{"http://dashboard.local", "heimdall:5000", true},
		{"http://heimdall:5000", "heimdall:5000", true},
		{"http://evil.example", "heimdall:5000", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
		req.Host = tt.host
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := h.checkWebSocketOrigin(req); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrInvalidEvent, http.StatusBadRequest, CodeValidationFailed},
		{models.ErrInvalidArgument, http.StatusBadRequest, CodeValidationFailed},
		{models.ErrDuplicateRule, http.StatusConflict, CodeConflict},
		{models.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{models.WrapStorage("x", models.ErrTimeout), http.StatusGatewayTimeout, CodeStorageTimeout},
		{models.WrapStorage("x", errors.New("io")), http.StatusInternalServerError, CodeStorageError},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("sanitizeLogValue = %q", got)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
