package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/e7canasta/latent-explorer/internal/config"
	"github.com/e7canasta/latent-explorer/internal/session"
	"github.com/e7canasta/latent-explorer/internal/types"
)

// ReceiverID is the bus subscriber id of the MQTT forwarder.
const ReceiverID = "mqtt"

// ErrNotConnected is returned by publishes while the broker is unreachable.
var ErrNotConnected = errors.New("emitter: mqtt not connected")

// ResultMessage is the JSON payload published for every render result.
type ResultMessage struct {
	InstanceID string    `json:"instance_id"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	types.RenderResult
}

// MQTTEmitter publishes session render results to an MQTT broker
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // Exported for control plane

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool

	wg sync.WaitGroup
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect establishes connection to MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.cfg.MQTT.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("mqtt connection established",
			"broker", broker,
			"client_id", e.cfg.InstanceID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", broker,
			"max_retry_interval", "30s")
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", broker)

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Attach forwards every result published on the session's bus. The
// forwarder reads through a latest-wins receiver, so a slow broker skips
// intermediate results instead of stalling the pipeline. It stops when the
// session closes its bus.
func (e *MQTTEmitter) Attach(s *session.Session) error {
	recv, err := s.Bus().SubscribeLatest(ReceiverID)
	if err != nil {
		return fmt.Errorf("attach mqtt forwarder: %w", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			result, ok := recv.Receive()
			if !ok {
				return
			}
			if err := e.PublishResult(s.ID(), result); err != nil {
				slog.Debug("result not forwarded", "session_id", s.ID(), "error", err)
			}
		}
	}()
	return nil
}

// Wait blocks until every forwarder has stopped.
func (e *MQTTEmitter) Wait() {
	e.wg.Wait()
}

// PublishResult publishes one render result to {results}/{session_id}
func (e *MQTTEmitter) PublishResult(sessionID uuid.UUID, result types.RenderResult) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.MQTT.Topics.Results, sessionID)
	qos := e.getQoS("results")

	payload, err := json.Marshal(ResultMessage{
		InstanceID:   e.cfg.InstanceID,
		SessionID:    sessionID.String(),
		Timestamp:    time.Now().UTC(),
		RenderResult: result,
	})
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("result published",
		"topic", topic,
		"qos", qos,
		"size", len(payload),
		"loading", result.Loading,
	)

	return nil
}

// PublishHealth publishes a health message
func (e *MQTTEmitter) PublishHealth(payload []byte) error {
	if !e.isConnected() {
		return ErrNotConnected
	}

	token := e.Client.Publish(e.cfg.MQTT.Topics.Health, e.getQoS("health"), false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}

	return token.Error()
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}

	e.setConnected(false)
	return nil
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// TotalPublished sums publishes across topics.
func (s Stats) TotalPublished() uint64 {
	var n uint64
	for _, v := range s.Published {
		n += v
	}
	return n
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// getQoS returns the QoS level for a topic class (default 0)
func (e *MQTTEmitter) getQoS(class string) byte {
	if qos, ok := e.cfg.MQTT.QoS[class]; ok {
		return qos
	}
	return 0
}
