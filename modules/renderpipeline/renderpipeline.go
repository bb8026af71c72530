// Package renderpipeline turns a stream of latent coordinates into a
// stream of render results.
//
// Philosophy: "Only the latest coordinate matters."
//
// Design:
//   - Debounce: a burst of Submit calls within one quiet period issues
//     exactly one fetch, for the last coordinate
//   - Sequencing: every fetch is tagged with a fresh sequence number and
//     its result is published only if no newer request was issued since
//   - Cancellation: superseded fetches also have their context cancelled
//   - Continuity: while a fetch is pending the published loading result
//     keeps the previous image reference, so consumers never blank out
//
// Lifecycle: New() → Submit()/SetEnabled() → Close()
package renderpipeline

import (
	"github.com/e7canasta/latent-explorer/internal/types"
	"github.com/e7canasta/latent-explorer/modules/renderpipeline/internal"
)

// DefaultDebounce is the stock quiet period.
const DefaultDebounce = internal.DefaultDebounce

// Fetcher is re-exported from internal package.
// See internal/types.go for the cancellation contract.
type Fetcher = internal.Fetcher

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc = internal.FetcherFunc

// Publisher receives the result stream. imagebus.Bus satisfies it.
type Publisher = internal.Publisher

// Config tunes a pipeline instance.
type Config = internal.Config

// Stats is re-exported from internal package.
// See internal/types.go for full documentation.
type Stats = internal.Stats

// Pipeline is the public interface of the render request pipeline.
//
// Thread-safe: all methods safe for concurrent use.
type Pipeline interface {
	// Submit feeds the coordinate currently under the pointer, or nil when
	// the pointer left the space.
	//
	// Non-nil:
	//   - Restarts the debounce timer
	//   - On elapse: publishes {ImageRef: previous, Loading: true} and
	//     issues the fetch
	//
	// Nil:
	//   - Disarms the timer and invalidates any in-flight fetch
	//   - Publishes the empty result synchronously
	//
	// Ignored while disabled or after Close.
	Submit(coord *types.Coordinate)

	// SetEnabled drives the enablement gate.
	//
	// true→false clears like Submit(nil) and ignores input until re-enabled;
	// the next accepted Submit gets a fresh sequence number.
	SetEnabled(enabled bool)

	// Enabled reports the gate state.
	Enabled() bool

	// Close disarms the timer, cancels in-flight fetches and waits for them.
	// Idempotent. Nothing is published on Close.
	Close()

	// Stats returns an operational snapshot.
	Stats() Stats
}

// New creates a pipeline publishing to publisher.
func New(cfg Config, fetcher Fetcher, publisher Publisher) Pipeline {
	return internal.NewPipeline(cfg, fetcher, publisher)
}
