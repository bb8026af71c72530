package bus

import (
	"sync"

	"github.com/e7canasta/latent-explorer/internal/types"
)

// latestHolder implements Receiver as an overwrite-on-write mailbox.
type latestHolder struct {
	mu       sync.Mutex
	cond     *sync.Cond
	result   types.RenderResult
	seq      uint64 // results written
	read     uint64 // seq of the last result handed out
	closed   bool
	onClose  func()
	closeOne sync.Once
}

func newLatestHolder(onClose func()) *latestHolder {
	h := &latestHolder{onClose: onClose}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// set stores result and reports whether an unread result was replaced.
func (h *latestHolder) set(result types.RenderResult) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	replaced := h.seq > h.read
	h.result = result
	h.seq++
	h.cond.Broadcast()
	return replaced
}

// Receive blocks until an unread result is available
func (h *latestHolder) Receive() (types.RenderResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.seq == h.read && !h.closed {
		h.cond.Wait()
	}

	if h.closed {
		return types.RenderResult{}, false
	}

	h.read = h.seq
	return h.result, true
}

// TryReceive returns the latest unread result without blocking
func (h *latestHolder) TryReceive() (types.RenderResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.seq == h.read {
		return types.RenderResult{}, false
	}

	h.read = h.seq
	return h.result, true
}

// Close detaches the receiver from the bus and wakes any Receive.
func (h *latestHolder) Close() {
	h.shutdown()
	h.closeOne.Do(func() {
		if h.onClose != nil {
			h.onClose()
		}
	})
}

func (h *latestHolder) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.cond.Broadcast()
}
