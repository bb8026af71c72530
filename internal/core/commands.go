package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/latent-explorer/internal/imageservice"
)

// getStatus returns the current service status
func (x *Explorer) getStatus() map[string]interface{} {
	x.mu.RLock()
	running := x.isRunning
	started := x.started
	x.mu.RUnlock()

	status := map[string]interface{}{
		"instance_id":   x.cfg.InstanceID,
		"uptime_s":      time.Since(started).Seconds(),
		"running":       running,
		"input_enabled": x.gate.Enabled(),
		"sessions":      x.registry.Len(),
		"ws_clients":    x.ws.Active(),
		"pipeline": map[string]interface{}{
			"debounce_ms":  x.cfg.Pipeline.DebounceMS,
			"image_width":  x.cfg.Pipeline.ImageWidth,
			"image_height": x.cfg.Pipeline.ImageHeight,
		},
		"image_service": map[string]interface{}{
			"kind":       x.cfg.ImageService.Kind,
			"cache_size": x.cfg.ImageService.CacheSize,
		},
	}

	if cached, ok := x.images.(*imageservice.Cached); ok {
		status["image_service"].(map[string]interface{})["cached_images"] = cached.Len()
	}

	if x.emitter != nil {
		st := x.emitter.Stats()
		status["mqtt"] = map[string]interface{}{
			"broker":         x.cfg.MQTT.Broker,
			"connected":      st.Connected,
			"published":      st.TotalPublished(),
			"errors":         st.Errors,
			"control_topic":  x.cfg.MQTT.Topics.Control,
			"results_prefix": x.cfg.MQTT.Topics.Results,
		}
	}

	return status
}

// enableInput opens the gate for every session
func (x *Explorer) enableInput() error {
	x.gate.Set(true)
	return nil
}

// disableInput closes the gate: drags end, results clear, input is ignored
func (x *Explorer) disableInput() error {
	x.gate.Set(false)
	return nil
}

// resetView resets one session, or all of them when sessionID is empty
func (x *Explorer) resetView(sessionID string) (int, error) {
	if sessionID == "" {
		return x.registry.ResetAll(), nil
	}

	id, err := uuid.Parse(sessionID)
	if err != nil {
		return 0, fmt.Errorf("invalid session id: %w", err)
	}
	s, err := x.registry.Get(id)
	if err != nil {
		return 0, err
	}
	s.ResetView()
	return 1, nil
}

// listSessions returns a summary per live session
func (x *Explorer) listSessions() []map[string]interface{} {
	infos := x.registry.List()
	out := make([]map[string]interface{}, 0, len(infos))
	for _, info := range infos {
		out = append(out, map[string]interface{}{
			"id":         info.ID.String(),
			"mode":       string(info.Mode),
			"enabled":    info.Enabled,
			"created_at": info.CreatedAt.UTC().Format(time.RFC3339),
			"phase":      string(info.View.Phase),
			"requests":   info.Pipeline.Issued,
			"stale":      info.Pipeline.Stale,
		})
	}
	return out
}

// shutdownViaControl cancels the run context; main then runs Shutdown
func (x *Explorer) shutdownViaControl() error {
	x.mu.RLock()
	cancel := x.cancelCtx
	x.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("service is not running")
	}
	slog.Warn("shutdown requested via control plane")
	cancel()
	return nil
}
