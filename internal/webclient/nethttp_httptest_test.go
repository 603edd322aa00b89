package webclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/webclient"
)

// ─── Do: real HTTP round-trip via httptest ──────────────────────────────

func TestNetHTTPClient_Do_GET_ReturnsBody(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "hello")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "response body")
	}))
	defer ts.Close()

	client, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.NopLogger{}, ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	resp, err := client.Get(context.Background(), ts.URL+"/test")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if !resp.OK() {
		t.Errorf("expected 2xx, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "response body" {
		t.Errorf("expected 'response body', got %q", resp.Body)
	}
	if resp.Headers.Get("X-Custom") != "hello" {
		t.Errorf("expected X-Custom header 'hello', got %q", resp.Headers.Get("X-Custom"))
	}
}

func TestNetHTTPClient_Do_POST_SendsBodyAndHeaders(t *testing.T) {
	t.Parallel()
	var receivedBody, receivedMethod, receivedAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.NopLogger{}, ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	hdrs := http.Header{}
	hdrs.Set("Authorization", "api-key")
	resp, err := client.Do(context.Background(), &webclient.Request{
		Method:  "post",
		URL:     ts.URL + "/submit",
		Headers: hdrs,
		Body:    []byte("payload"),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	if receivedMethod != "POST" {
		t.Errorf("expected POST, got %s", receivedMethod)
	}
	if receivedBody != "payload" {
		t.Errorf("expected body 'payload', got %q", receivedBody)
	}
	if receivedAuth != "api-key" {
		t.Errorf("expected Authorization header forwarded, got %q", receivedAuth)
	}
	if resp.StatusCode != 201 {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
}

func TestNetHTTPClient_Do_NilRequest(t *testing.T) {
	t.Parallel()
	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, nil, nil)

	_, err := client.Do(context.Background(), nil)
	if !errors.Is(err, webclient.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestNetHTTPClient_Do_ContextCancelled(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, logging.NopLogger{}, ts.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, ts.URL)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNetHTTPClient_Do_CapsBody(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{MaxBodyBytes: 10}, logging.NopLogger{}, ts.Client())
	resp, err := client.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(resp.Body) != 10 {
		t.Errorf("expected body capped at 10 bytes, got %d", len(resp.Body))
	}
}
