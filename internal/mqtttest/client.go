// Package mqtttest provides an in-memory paho client for tests.
package mqtttest

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Token is an already completed token.
type Token struct {
	Err error
}

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Error() error                   { return t.Err }

func (t *Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Published is one message handed to Client.Publish.
type Published struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Message is an inbound message delivered through Client.Deliver.
type Message struct {
	TopicName string
	Body      []byte
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 0 }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.TopicName }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.Body }
func (m *Message) Ack()              {}

// Client records publishes and routes Deliver calls to subscribers.
type Client struct {
	mu        sync.Mutex
	connected bool
	published []Published
	handlers  map[string]mqtt.MessageHandler

	// PublishErr, when set, fails every Publish.
	PublishErr error
}

// NewClient returns a connected client.
func NewClient() *Client {
	return &Client{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }

func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return &Token{}
}

func (c *Client) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return &Token{Err: c.PublishErr}
	}

	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = append([]byte(nil), p...)
	case string:
		data = []byte(p)
	}
	c.published = append(c.published, Published{Topic: topic, QoS: qos, Payload: data})
	return &Token{}
}

func (c *Client) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
	return &Token{}
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, callback)
	}
	return &Token{}
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	return &Token{}
}

func (c *Client) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.Subscribe(topic, 0, callback)
}

func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Deliver hands payload to the handler subscribed on topic. It reports
// false when nobody is subscribed.
func (c *Client) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(c, &Message{TopicName: topic, Body: payload})
	return true
}

// Published returns a copy of every recorded publish.
func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Subscribed reports whether a handler is registered on topic.
func (c *Client) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[topic]
	return ok
}
