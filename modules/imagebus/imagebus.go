// Package imagebus broadcasts render results from the request pipeline to
// display consumers.
//
// Core rule: "Deliver the present, never replay the past."
//
// A bus carries one stream of RenderResult values for one interactive
// session. Two kinds of subscriber are supported:
//   - Subscribe: a Listener called synchronously by Publish, in
//     subscription order
//   - SubscribeLatest: a single-slot mailbox that always holds the newest
//     result, for consumers on their own goroutine (network writers)
//
// Usage:
//
//	b := imagebus.New()
//	defer b.Close()
//
//	sub, _ := b.Subscribe(func(r types.RenderResult) { view.Apply(r) })
//	defer sub.Unsubscribe()
//
//	rx, _ := b.SubscribeLatest("ws-writer")
//	go func() {
//	    for {
//	        r, ok := rx.Receive()
//	        if !ok {
//	            return
//	        }
//	        send(r)
//	    }
//	}()
//
// A subscriber that joins after a publication receives nothing until the
// next one; consumers that need an initial state assume types.EmptyResult.
package imagebus

import "github.com/e7canasta/latent-explorer/modules/imagebus/internal/bus"

// New creates a new bus instance.
// This is the only public constructor and part of the stable API
func New() Bus {
	return bus.New()
}
