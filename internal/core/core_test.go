package core

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/latent-explorer/internal/config"
	"github.com/e7canasta/latent-explorer/internal/types"
)

const testYAML = `
instance_id: test-explorer
server:
  addr: 127.0.0.1:0
pipeline:
  debounce_ms: 10
image_service:
  kind: placeholder
  base_url: https://img.test
  min_latency_ms: 1
  max_latency_ms: 2
  cache_size: 8
view3d:
  render_fps: 20
  surface_width: 32
  surface_height: 32
`

func newTestExplorer(t *testing.T) *Explorer {
	t.Helper()
	cfg, err := config.Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	x, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		x.registry.Close()
		x.arena.Close()
	})
	return x
}

func do(t *testing.T, h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func TestGate(t *testing.T) {
	g := NewGate(true)
	var seen []bool
	g.OnChange(func(v bool) { seen = append(seen, v) })

	if g.Set(true) {
		t.Error("Set(true) on open gate reported a change")
	}
	if !g.Set(false) || g.Enabled() {
		t.Error("Set(false) did not close the gate")
	}
	g.Set(true)
	if len(seen) != 2 || seen[0] || !seen[1] {
		t.Errorf("listener saw %v, want [false true]", seen)
	}
}

func TestHealthEndpoints(t *testing.T) {
	x := newTestExplorer(t)
	h := x.Router()

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"alive"`) {
		t.Errorf("/health = %d %s", rec.Code, rec.Body)
	}

	// Not running yet.
	rec := do(t, h, http.MethodGet, "/readiness", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readiness before Run = %d", rec.Code)
	}
	var health HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "unhealthy" || !health.InputEnabled || health.MQTTEnabled {
		t.Errorf("health = %+v", health)
	}

	rec = do(t, h, http.MethodGet, "/metrics", "")
	for _, want := range []string{
		`latent_sessions{instance="test-explorer"} 0`,
		`latent_input_enabled{instance="test-explorer"} 1`,
		"# TYPE latent_render_stale_total counter",
	} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
	if strings.Contains(rec.Body.String(), "latent_mqtt") {
		t.Error("/metrics reports mqtt while disabled")
	}
}

func TestGateEndpoint(t *testing.T) {
	x := newTestExplorer(t)
	h := x.Router()

	s, err := x.registry.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	rec := do(t, h, http.MethodPost, "/gate", `{"enabled":false}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"changed":true`) {
		t.Fatalf("POST /gate = %d %s", rec.Code, rec.Body)
	}
	if s.Enabled() {
		t.Error("session still enabled after POST /gate")
	}

	// New sessions inherit the closed gate.
	s2, _ := x.registry.Create(context.Background())
	if s2.Enabled() {
		t.Error("new session ignored the gate")
	}

	if rec := do(t, h, http.MethodGet, "/gate", ""); !strings.Contains(rec.Body.String(), `"enabled":false`) {
		t.Errorf("GET /gate = %s", rec.Body)
	}

	for _, body := range []string{`{}`, `nope`} {
		if rec := do(t, h, http.MethodPost, "/gate", body); rec.Code != http.StatusBadRequest {
			t.Errorf("POST /gate %q = %d, want 400", body, rec.Code)
		}
	}
}

func TestSessionEndpoints(t *testing.T) {
	x := newTestExplorer(t)
	h := x.Router()

	s, err := x.registry.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	rec := do(t, h, http.MethodGet, "/sessions", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), s.ID().String()) {
		t.Errorf("GET /sessions = %d %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"alt_text":"Placeholder image"`) {
		t.Errorf("GET /sessions missing view alt text: %s", rec.Body)
	}

	if rec := do(t, h, http.MethodGet, "/sessions/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/sessions/00000000-0000-0000-0000-000000000000", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d", rec.Code)
	}

	png := "/sessions/" + s.ID().String() + "/scene.png"
	if rec := do(t, h, http.MethodGet, png, ""); rec.Code != http.StatusConflict {
		t.Errorf("scene.png in 2D = %d, want 409", rec.Code)
	}

	if _, err := s.HandleEvent(types.InputEvent{Kind: types.EventSetMode, Mode: types.Mode3D}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		rec := do(t, h, http.MethodGet, png, "")
		if rec.Code == http.StatusOK {
			if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("Content-Type = %q", ct)
			}
			if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
				t.Error("body is not a PNG")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scene.png never became available, last status %d", rec.Code)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if rec := do(t, h, http.MethodPost, "/sessions/"+s.ID().String()+"/reset", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"distance":5`) {
		t.Errorf("reset = %d %s", rec.Code, rec.Body)
	}
}

func TestControlCallbacks(t *testing.T) {
	x := newTestExplorer(t)
	s, _ := x.registry.Create(context.Background())

	if err := x.disableInput(); err != nil || s.Enabled() {
		t.Errorf("disableInput: err = %v, enabled = %v", err, s.Enabled())
	}
	if err := x.enableInput(); err != nil || !s.Enabled() {
		t.Errorf("enableInput: err = %v, enabled = %v", err, s.Enabled())
	}

	if n, err := x.resetView(""); err != nil || n != 1 {
		t.Errorf("resetView(all) = %d, %v", n, err)
	}
	if n, err := x.resetView(s.ID().String()); err != nil || n != 1 {
		t.Errorf("resetView(id) = %d, %v", n, err)
	}
	if _, err := x.resetView("bogus"); err == nil {
		t.Error("resetView(bogus) succeeded")
	}

	list := x.listSessions()
	if len(list) != 1 || list[0]["id"] != s.ID().String() || list[0]["mode"] != "2d" {
		t.Errorf("listSessions = %v", list)
	}

	status := x.getStatus()
	if status["sessions"] != 1 || status["input_enabled"] != true {
		t.Errorf("getStatus = %v", status)
	}
	if svc := status["image_service"].(map[string]interface{}); svc["cached_images"] != 0 {
		t.Errorf("image_service = %v", svc)
	}

	if err := x.shutdownViaControl(); err == nil {
		t.Error("shutdownViaControl before Run succeeded")
	}
}

func TestRunAndShutdown(t *testing.T) {
	x := newTestExplorer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- x.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for x.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + x.Addr().String() + "/readiness")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/readiness while running = %d", resp.StatusCode)
	}

	if err := x.Run(ctx); err == nil {
		t.Error("second Run succeeded")
	}

	if err := x.shutdownViaControl(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after shutdown command")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), x.ShutdownTimeout())
	defer done()
	if err := x.Shutdown(shutdownCtx); err != nil {
		t.Fatal(err)
	}
	if h := x.HealthCheck(); h.Status != "unhealthy" {
		t.Errorf("status after Shutdown = %s", h.Status)
	}
}
