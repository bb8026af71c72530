package internal

import (
	"context"
	"time"

	"github.com/e7canasta/latent-explorer/internal/types"
)

// DefaultDebounce is the quiet period before a submitted coordinate is
// fetched. Chosen empirically for pointer hover; keep it configurable
// rather than re-deriving it.
const DefaultDebounce = 150 * time.Millisecond

// Fetcher resolves a coordinate to an image reference.
//
// Contract:
//   - ctx is cancelled when the request is superseded or the pipeline
//     closes; honoring it is optional (stale results are discarded anyway)
//   - Errors are reported as error results, never retried
type Fetcher interface {
	Fetch(ctx context.Context, coord types.Coordinate) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, coord types.Coordinate) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, coord types.Coordinate) (string, error) {
	return f(ctx, coord)
}

// Publisher receives every result the pipeline emits, in order.
//
// Publish is called with the pipeline lock held: implementations must not
// call back into the pipeline synchronously.
type Publisher interface {
	Publish(result types.RenderResult)
}

// Config tunes a pipeline instance.
type Config struct {
	// Debounce is the quiet period; <= 0 selects DefaultDebounce.
	Debounce time.Duration

	// StartDisabled creates the pipeline with the enablement gate closed.
	StartDisabled bool
}

// Stats is a snapshot of pipeline operational state.
type Stats struct {
	// Submitted counts accepted Submit calls (coordinate or clear).
	Submitted uint64

	// Ignored counts Submit calls dropped while disabled or closed.
	Ignored uint64

	// Issued counts fetches started (one per elapsed debounce window).
	// Issued <= Submitted: the gap is what debouncing saved.
	Issued uint64

	// Published counts successful, current results.
	Published uint64

	// Failures counts current fetches that returned an error.
	Failures uint64

	// Stale counts fetches that resolved after being superseded.
	// Expected to be non-zero under fast pointer movement; it reflects
	// correct suppression, not failure.
	Stale uint64

	// Cleared counts empty results published (null submit or disable).
	Cleared uint64

	// Sequence is the latest issued (or invalidated) sequence number.
	Sequence uint64

	// InFlight is true while the current sequence's fetch is pending.
	InFlight bool

	// Pending is true while a debounce timer is armed.
	Pending bool

	Enabled bool
}
