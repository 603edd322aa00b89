package server_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/mailtrust/internal/channel"
	"github.com/raysh454/mailtrust/internal/model"
	"github.com/raysh454/mailtrust/internal/server"
	"github.com/raysh454/mailtrust/internal/testutil"
)

func newTestServer(t *testing.T, eval channel.Evaluator) *server.Server {
	t.Helper()

	s, err := server.NewServer(server.Config{ListenAddr: ":0"}, eval, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func TestNewServer_RequiresEvaluator(t *testing.T) {
	t.Parallel()
	if _, err := server.NewServer(server.Config{}, nil, nil); err == nil {
		t.Fatal("expected error for nil evaluator")
	}
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &testutil.FakeEvaluator{})

	rec := doJSON(t, s, "GET", "/healthz", "")

	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_CORS_Preflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &testutil.FakeEvaluator{})

	rec := doJSON(t, s, "OPTIONS", channel.ScanPath, "")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if m := rec.Header().Get("Access-Control-Allow-Methods"); m != "POST" {
		t.Errorf("expected POST allowed, got %q", m)
	}
}

// ─── Health ────────────────────────────────────────────────────────────

func TestServer_Health(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &testutil.FakeEvaluator{})

	rec := doJSON(t, s, "GET", "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var h server.HealthResponse
	decodeJSON(t, rec, &h)
	if h.Status != "ok" {
		t.Errorf("expected status ok, got %q", h.Status)
	}
}

// ─── Scan ──────────────────────────────────────────────────────────────

func TestServer_Scan(t *testing.T) {
	t.Parallel()
	eval := &testutil.FakeEvaluator{}
	s := newTestServer(t, eval)

	rec := doJSON(t, s, "POST", channel.ScanPath, `{
		"run_id": "r-1",
		"domain": " PayPal.com ",
		"urls": ["https://a.example/x", "javascript:alert(1)", "https://a.example/x", "/relative"],
		"heuristic": {"detected": true, "reason": "Tracking Pixel", "severity": "INFO"}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var v model.Verdict
	decodeJSON(t, rec, &v)
	if v.RunID != "r-1" {
		t.Errorf("expected run id r-1, got %q", v.RunID)
	}

	reqs := eval.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 evaluation, got %d", len(reqs))
	}
	if reqs[0].Domain != "paypal.com" {
		t.Errorf("expected normalized domain, got %q", reqs[0].Domain)
	}
	if len(reqs[0].URLs) != 1 || reqs[0].URLs[0] != "https://a.example/x" {
		t.Errorf("expected cleaned URLs, got %v", reqs[0].URLs)
	}
	if reqs[0].Heuristic.Reason != model.ReasonTrackingPixel {
		t.Errorf("expected heuristic carried, got %v", reqs[0].Heuristic)
	}
}

func TestServer_Scan_MissingHeuristicDefaultsToOK(t *testing.T) {
	t.Parallel()
	eval := &testutil.FakeEvaluator{}
	s := newTestServer(t, eval)

	rec := doJSON(t, s, "POST", channel.ScanPath, `{"domain":"example.com","urls":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := eval.Requests()[0].Heuristic; got != model.NoFinding() {
		t.Errorf("expected no finding, got %v", got)
	}
}

func TestServer_Scan_BadRequests(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &testutil.FakeEvaluator{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{invalid}`},
		{"missing domain", `{"urls":["https://a.example"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, "POST", channel.ScanPath, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			var e server.ErrorResponse
			decodeJSON(t, rec, &e)
			if e.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestServer_Scan_EvaluatorError(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &testutil.FakeEvaluator{Err: errors.New("boom")})

	rec := doJSON(t, s, "POST", channel.ScanPath, `{"domain":"example.com"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var e server.ErrorResponse
	decodeJSON(t, rec, &e)
	if e.Error != "boom" {
		t.Errorf("expected boom, got %q", e.Error)
	}
}

func TestServer_Scan_Timeout(t *testing.T) {
	t.Parallel()
	eval := &testutil.FakeEvaluator{Delay: time.Second}
	s, err := server.NewServer(server.Config{EvaluateTimeout: 20 * time.Millisecond}, eval, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := doJSON(t, s, "POST", channel.ScanPath, `{"domain":"example.com"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────────

func TestServer_ScanWS_MultipleRequestsPerConnection(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &testutil.FakeEvaluator{})
	ts := httptest.NewServer(s)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + channel.WSScanPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, id := range []string{"a", "b"} {
		if err := conn.WriteJSON(model.ScanRequest{RunID: id, Domain: "example.com"}); err != nil {
			t.Fatalf("write: %v", err)
		}
		var env channel.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read: %v", err)
		}
		if env.Verdict == nil || env.Verdict.RunID != id {
			t.Fatalf("expected verdict for %s, got %+v", id, env)
		}
	}

	if err := conn.WriteJSON(model.ScanRequest{RunID: "c"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var env channel.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Error == "" || env.Verdict != nil {
		t.Errorf("expected error frame for missing domain, got %+v", env)
	}
}
