package imagebus

import "github.com/e7canasta/latent-explorer/modules/imagebus/internal/bus"

// Public API - Re-export internal types as stable contract

// Listener is called synchronously, in subscription order, by Publish
type Listener = bus.Listener

// Subscription is the unsubscribe handle returned by Subscribe
type Subscription = bus.Subscription

// Receiver provides blocking/non-blocking access to the latest result
type Receiver = bus.Receiver

// SubscriberStats tracks per-subscriber delivery metrics
type SubscriberStats = bus.SubscriberStats

// BusStats is a snapshot of global and per-subscriber metrics
type BusStats = bus.BusStats

// Bus broadcasts render results to multiple independent consumers
type Bus = bus.Bus

// Public API errors - Re-export internal errors as stable contract
var (
	ErrBusClosed        = bus.ErrBusClosed
	ErrSubscriberExists = bus.ErrSubscriberExists
	ErrNilListener      = bus.ErrNilListener
	ErrReceiverClosed   = bus.ErrReceiverClosed
)
