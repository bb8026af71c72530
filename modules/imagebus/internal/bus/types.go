package bus

import (
	"errors"

	"github.com/e7canasta/latent-explorer/internal/types"
)

// Internal errors - mapped to public errors in imagebus package
var (
	ErrBusClosed        = errors.New("imagebus: bus is closed")
	ErrSubscriberExists = errors.New("imagebus: subscriber already exists")
	ErrNilListener      = errors.New("imagebus: nil listener provided")
	ErrReceiverClosed   = errors.New("imagebus: receiver is closed")
)

// Listener is called synchronously by Publish.
type Listener func(types.RenderResult)

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	ID() string
	// Unsubscribe detaches the listener. Calling it again is a no-op.
	Unsubscribe()
}

// Receiver provides blocking/non-blocking access to the latest result
// for consumers running on their own goroutine.
type Receiver interface {
	// Receive blocks until a result newer than the last one returned is
	// available. ok is false once the receiver is closed.
	Receive() (result types.RenderResult, ok bool)
	// TryReceive returns the latest unread result without blocking.
	TryReceive() (types.RenderResult, bool)
	// Close detaches the receiver from the bus and wakes Receive.
	Close()
}

// SubscriberStats tracks delivery metrics for one subscriber.
type SubscriberStats struct {
	Delivered   uint64
	Overwritten uint64 // latest receivers only: results replaced unread
}

// BusStats is a snapshot of global and per-subscriber metrics.
type BusStats struct {
	TotalPublished uint64
	Subscribers    map[string]SubscriberStats
}

// Bus broadcasts render results to subscribers in subscription order.
type Bus interface {
	Subscribe(listener Listener) (Subscription, error)
	SubscribeLatest(id string) (Receiver, error)
	Publish(result types.RenderResult)
	Stats() BusStats
	Close()
}
