package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/e7canasta/latent-explorer/modules/imagebus"
	"github.com/e7canasta/latent-explorer/modules/renderpipeline"
)

// PipelineTotals aggregates render pipeline counters over live sessions
type PipelineTotals struct {
	Submitted uint64 `json:"submitted"`
	Ignored   uint64 `json:"ignored"`
	Issued    uint64 `json:"issued"`
	Published uint64 `json:"published"`
	Failures  uint64 `json:"failures"`
	Stale     uint64 `json:"stale"`
	Cleared   uint64 `json:"cleared"`
	InFlight  int    `json:"in_flight"`
}

func (t *PipelineTotals) add(s renderpipeline.Stats) {
	t.Submitted += s.Submitted
	t.Ignored += s.Ignored
	t.Issued += s.Issued
	t.Published += s.Published
	t.Failures += s.Failures
	t.Stale += s.Stale
	t.Cleared += s.Cleared
	if s.InFlight {
		t.InFlight++
	}
}

// HealthStatus represents the health state of the explorer service
type HealthStatus struct {
	Status           string         `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds    int64          `json:"uptime_seconds"`
	InputEnabled     bool           `json:"input_enabled"`
	Sessions         int            `json:"sessions"`
	WebSocketClients int64          `json:"websocket_clients"`
	MQTTEnabled      bool           `json:"mqtt_enabled"`
	MQTTConnected    bool           `json:"mqtt_connected"`
	Pipeline         PipelineTotals `json:"pipeline"`
}

// HealthCheck returns the current health status of the service
func (x *Explorer) HealthCheck() HealthStatus {
	x.mu.RLock()
	running := x.isRunning
	started := x.started
	x.mu.RUnlock()

	status := HealthStatus{
		Status:           "healthy",
		UptimeSeconds:    int64(time.Since(started).Seconds()),
		InputEnabled:     x.gate.Enabled(),
		WebSocketClients: x.ws.Active(),
		MQTTEnabled:      x.emitter != nil,
	}

	infos := x.registry.List()
	status.Sessions = len(infos)
	for _, info := range infos {
		status.Pipeline.add(info.Pipeline)
	}

	if x.emitter != nil {
		status.MQTTConnected = x.emitter.Stats().Connected
	}

	if !running {
		status.Status = "unhealthy"
	} else if status.MQTTEnabled && !status.MQTTConnected {
		status.Status = "degraded"
	}

	return status
}

// LivenessHandler handles /health (process liveness only)
func (x *Explorer) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	x.mu.RLock()
	started := x.started
	x.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(started).Seconds()),
	})
}

// ReadinessHandler handles /readiness; 503 until Run has started
func (x *Explorer) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	health := x.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// MetricsHandler handles /metrics in the Prometheus text format
func (x *Explorer) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	h := x.HealthCheck()
	inst := x.cfg.InstanceID

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)

	gauge := func(name, help string, v interface{}) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s{instance=%q} %v\n", name, help, name, name, inst, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s{instance=%q} %d\n", name, help, name, name, inst, v)
	}

	gauge("latent_uptime_seconds", "Seconds since the service started.", h.UptimeSeconds)
	gauge("latent_input_enabled", "1 when the input gate is open.", boolGauge(h.InputEnabled))
	gauge("latent_sessions", "Live explorer sessions.", h.Sessions)
	gauge("latent_websocket_clients", "Open WebSocket connections.", h.WebSocketClients)
	gauge("latent_render_in_flight", "Sessions with a pending image fetch.", h.Pipeline.InFlight)
	counter("latent_render_submitted_total", "Coordinates and clears accepted by live pipelines.", h.Pipeline.Submitted)
	counter("latent_render_ignored_total", "Submissions dropped while input was disabled.", h.Pipeline.Ignored)
	counter("latent_render_requests_total", "Image fetches issued after debounce.", h.Pipeline.Issued)
	counter("latent_render_published_total", "Current images published.", h.Pipeline.Published)
	counter("latent_render_failures_total", "Current fetches that failed.", h.Pipeline.Failures)
	counter("latent_render_stale_total", "Fetches discarded because a newer request superseded them.", h.Pipeline.Stale)

	if x.emitter != nil {
		st := x.emitter.Stats()
		gauge("latent_mqtt_connected", "1 when the MQTT client is connected.", boolGauge(st.Connected))
		counter("latent_mqtt_published_total", "Messages published to the broker.", st.TotalPublished())
		counter("latent_mqtt_errors_total", "Failed MQTT publishes.", st.Errors)
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// publishHealth periodically publishes HealthCheck to the MQTT health topic
func (x *Explorer) publishHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(x.HealthCheck())
			if err != nil {
				slog.Error("failed to marshal health", "error", err)
				continue
			}
			if err := x.emitter.PublishHealth(payload); err != nil {
				slog.Debug("health not published", "error", err)
			}
		}
	}
}

// logStats periodically logs pipeline activity and warns about consumers
// that skip most results
func (x *Explorer) logStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prev PipelineTotals
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := x.HealthCheck()
			slog.Info("explorer stats",
				"sessions", h.Sessions,
				"ws_clients", h.WebSocketClients,
				"input_enabled", h.InputEnabled,
				"requests_last_interval", h.Pipeline.Issued-min(prev.Issued, h.Pipeline.Issued),
				"stale_last_interval", h.Pipeline.Stale-min(prev.Stale, h.Pipeline.Stale),
				"failures_total", h.Pipeline.Failures,
			)
			prev = h.Pipeline

			for _, info := range x.registry.List() {
				s, err := x.registry.Get(info.ID)
				if err != nil {
					continue
				}
				stats := s.Bus().Stats()
				for id := range stats.Subscribers {
					rate := imagebus.CalculateOverwriteRate(stats, id)
					if rate > 0.80 {
						slog.Warn("consumer skipping most results",
							"session_id", info.ID,
							"subscriber", id,
							"overwrite_rate_pct", int(rate*100),
							"action", "check consumer link")
					}
				}
			}
		}
	}
}
