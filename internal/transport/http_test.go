package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetherd/herd/internal/config"
	"github.com/fleetherd/herd/internal/registrar"
	"github.com/fleetherd/herd/internal/runtime"
)

func newTestServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := runtime.New(config.Config{ProjectPath: t.TempDir(), APIToken: token}, log)
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}
	t.Cleanup(func() { rt.Close() })

	rt.Tools.Register("herd_ping", "test tool", map[string]registrar.ParamDef{}, func(_ context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"success": true, "pong": args["x"]}, nil
	})

	s := New(rt, "")
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthIsUnauthenticated(t *testing.T) {
	ts := newTestServer(t, "secret")

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var health struct {
		Status   string            `json:"status"`
		Adapters map[string]string `json:"adapters"`
		Stores   map[string]string `json:"stores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("health.Status = %q", health.Status)
	}
	if health.Stores["operational"] != "ok" || health.Stores["graph"] != "ok" {
		t.Errorf("stores = %+v", health.Stores)
	}
	if health.Adapters["notify"] != "unavailable" {
		t.Errorf("adapters = %+v, notify should be unavailable (not wired)", health.Adapters)
	}
}

func TestToolCallRequiresBearerToken(t *testing.T) {
	ts := newTestServer(t, "secret")

	body := bytes.NewBufferString(`{"x":"1"}`)
	resp, err := http.Post(ts.URL+"/tools/herd_ping", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/tools/herd_ping", bytes.NewBufferString(`{"x":"1"}`))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorized status = %d, want 200", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["pong"] != "1" {
		t.Errorf("result = %+v", result)
	}
}

func TestToolCallOpenWhenNoTokenConfigured(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/tools/herd_ping", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 when no token configured", resp.StatusCode)
	}
}

func TestUnknownToolReturns500(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/tools/herd_not_a_tool", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for unknown tool (Fatal-class dispatch error)", resp.StatusCode)
	}
}

func TestToolCallEmptyBodyIsAllowed(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/tools/herd_ping", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for empty body", resp.StatusCode)
	}
}
