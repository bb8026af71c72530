// Package internal implements the render request pipeline.
//
// This package is INTERNAL - clients MUST use public API in parent package.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/latent-explorer/internal/types"
)

// pipeline is the concrete implementation of renderpipeline.Pipeline.
//
// Goroutine topology:
//   - 0-1 timer callbacks (time.AfterFunc, one armed debounce at a time)
//   - 0-N fetch goroutines (one per issued sequence; superseded ones are
//     cancelled and drain on their own)
//
// Thread-safety: All public methods safe for concurrent use. All state
// below mu is mutated only with mu held, and every publication happens
// with mu held, so publication order equals state order.
type pipeline struct {
	fetcher   Fetcher
	publisher Publisher
	debounce  time.Duration

	mu sync.Mutex

	// --- Debounce ---
	timer    *time.Timer
	timerGen uint64            // bumped on every (re)arm; stale callbacks compare and bail
	pending  *types.Coordinate // coordinate waiting for the timer

	// --- Sequencing ---
	seq         uint64             // latest issued or invalidated sequence
	cancelFetch context.CancelFunc // cancels the fetch tagged seq
	lastImage   string             // imageRef currently on the bus

	enabled bool
	closed  bool
	stats   Stats

	// --- Lifecycle ---
	ctx    context.Context    // parent of every fetch context
	cancel context.CancelFunc // cancelled on Close
	wg     sync.WaitGroup     // tracks fetch goroutines
}

// NewPipeline creates a pipeline (called by public New() in parent package).
func NewPipeline(cfg Config, fetcher Fetcher, publisher Publisher) *pipeline {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	p := &pipeline{
		fetcher:   fetcher,
		publisher: publisher,
		debounce:  debounce,
		enabled:   !cfg.StartDisabled,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Submit feeds the latest coordinate (or nil to clear).
//
// Non-nil: (re)arms the debounce timer; the fetch is issued when the
// timer elapses without another Submit.
//
// Nil: disarms the timer, invalidates any in-flight fetch and publishes
// the empty result immediately. No fetch is issued.
func (p *pipeline) Submit(coord *types.Coordinate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.enabled {
		p.stats.Ignored++
		return
	}
	p.stats.Submitted++

	if coord == nil {
		p.clearLocked()
		return
	}

	c := *coord
	p.pending = &c
	p.stopTimerLocked()
	p.timerGen++
	gen := p.timerGen
	p.timer = time.AfterFunc(p.debounce, func() { p.fire(gen) })
}

// SetEnabled opens or closes the enablement gate.
//
// Closing it behaves like a clear (timer disarmed, in-flight fetch
// invalidated, empty result published) and then ignores Submit until the
// gate opens again. Re-opening publishes nothing.
func (p *pipeline) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.enabled == enabled {
		return
	}
	p.enabled = enabled
	if !enabled {
		p.clearLocked()
	}
}

// Enabled reports the gate state.
func (p *pipeline) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Close disarms the timer, cancels every in-flight fetch and waits for
// fetch goroutines to exit. Nothing is published. Idempotent.
func (p *pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stopTimerLocked()
	p.pending = nil
	p.cancelFetch = nil
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// Stats returns an operational snapshot.
func (p *pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Sequence = p.seq
	s.InFlight = p.cancelFetch != nil
	s.Pending = p.pending != nil
	s.Enabled = p.enabled
	return s
}

// fire runs when a debounce window elapses.
//
// Algorithm:
//  1. Bail if superseded (gen mismatch) or closed
//  2. Take the pending coordinate and a fresh sequence number
//  3. Cancel the previous fetch, if still in flight
//  4. Publish loading=true carrying the image currently shown
//  5. Start the fetch goroutine
func (p *pipeline) fire(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || gen != p.timerGen || p.pending == nil {
		return
	}
	coord := *p.pending
	p.pending = nil
	p.timer = nil

	p.seq++
	seq := p.seq
	p.cancelInFlightLocked()

	ctx, cancel := context.WithCancel(p.ctx)
	p.cancelFetch = cancel
	p.stats.Issued++

	p.publisher.Publish(types.RenderResult{
		ImageRef:   p.lastImage,
		Loading:    true,
		Coordinate: &coord,
	})

	p.wg.Add(1)
	go p.fetch(ctx, cancel, seq, coord)
}

func (p *pipeline) fetch(ctx context.Context, cancel context.CancelFunc, seq uint64, coord types.Coordinate) {
	defer p.wg.Done()
	defer cancel()

	ref, err := p.fetcher.Fetch(ctx, coord)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || seq != p.seq {
		p.stats.Stale++
		slog.Debug("render result superseded",
			"sequence", seq,
			"latest", p.seq,
			"coordinate", coord.String(),
		)
		return
	}
	p.cancelFetch = nil

	if err != nil {
		p.stats.Failures++
		p.lastImage = ""
		slog.Warn("render fetch failed",
			"sequence", seq,
			"coordinate", coord.String(),
			"error", err,
		)
		p.publisher.Publish(types.RenderResult{
			Error:      fmt.Sprintf("failed to load image: %v", err),
			Coordinate: &coord,
		})
		return
	}

	p.stats.Published++
	p.lastImage = ref
	p.publisher.Publish(types.RenderResult{
		ImageRef:   ref,
		Coordinate: &coord,
	})
}

// clearLocked invalidates the current sequence and publishes the empty
// result. The next issued fetch gets a fresh sequence number.
func (p *pipeline) clearLocked() {
	p.stopTimerLocked()
	p.pending = nil
	p.seq++
	p.cancelInFlightLocked()
	p.lastImage = ""
	p.stats.Cleared++
	p.publisher.Publish(types.EmptyResult())
}

func (p *pipeline) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *pipeline) cancelInFlightLocked() {
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}
}
