package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/latent-explorer/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Handler handles control plane commands
type Handler struct {
	cfg      *config.Config
	client   mqtt.Client
	commands chan Command

	mu        sync.Mutex
	stopped   bool
	callbacks CommandCallbacks
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnGetStatus    func() map[string]interface{}
	OnEnableInput  func() error
	OnDisableInput func() error
	// OnResetView resets one session, or every session when id is empty.
	OnResetView    func(sessionID string) (int, error)
	OnListSessions func() []map[string]interface{}
	OnShutdown     func() error
}

// NewHandler creates a new control plane handler
func NewHandler(cfg *config.Config, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start starts listening for control commands
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.cfg.MQTT.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	go h.processCommands(ctx)

	return nil
}

// Stop stops the control plane handler
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true

	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(h.cfg.MQTT.Topics.Control)
		token.WaitTimeout(2 * time.Second)
	}

	close(h.commands)

	slog.Info("control plane handler stopped")
	return nil
}

// messageHandler is called when a control message is received
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

// processCommands processes commands from the queue
func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
		}
	}
}

// handleCommand executes a command and publishes its response
func (h *Handler) handleCommand(cmd Command) {
	resp := Response{CommandAck: cmd.Command}

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			resp.notImplemented(cmd.Command)
			break
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "enable_input", "disable_input":
		enable := cmd.Command == "enable_input"
		fn := h.callbacks.OnDisableInput
		if enable {
			fn = h.callbacks.OnEnableInput
		}
		if fn == nil {
			resp.notImplemented(cmd.Command)
			break
		}
		if err := fn(); err != nil {
			resp.fail(err)
			break
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"input_enabled": enable,
		}

	case "reset_view":
		if h.callbacks.OnResetView == nil {
			resp.notImplemented(cmd.Command)
			break
		}
		var sessionID string
		if raw, ok := cmd.Params["session_id"]; ok {
			sessionID, ok = raw.(string)
			if !ok {
				resp.Status = "error"
				resp.Error = "invalid 'session_id' parameter (expected string)"
				break
			}
		}
		n, err := h.callbacks.OnResetView(sessionID)
		if err != nil {
			resp.fail(err)
			break
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"sessions_reset": n,
		}

	case "list_sessions":
		if h.callbacks.OnListSessions == nil {
			resp.notImplemented(cmd.Command)
			break
		}
		sessions := h.callbacks.OnListSessions()
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"sessions": sessions,
			"count":    len(sessions),
		}

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			resp.notImplemented(cmd.Command)
			break
		}
		slog.Warn("shutdown command received via MQTT control plane")
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"shutdown_initiated": true,
		}
		// Respond before the process starts tearing down the client.
		h.sendResponse(resp)
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := h.callbacks.OnShutdown(); err != nil {
				slog.Error("shutdown callback failed", "error", err)
			}
		}()
		return

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.sendResponse(resp)
}

func (r *Response) notImplemented(cmd string) {
	r.Status = "error"
	r.Error = cmd + " not implemented"
}

func (r *Response) fail(err error) {
	r.Status = "error"
	r.Error = err.Error()
}

// sendResponse publishes a response on the health topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.MQTT.Topics.Health
	qos := h.cfg.MQTT.QoS["health"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
