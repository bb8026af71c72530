// Package imageservice resolves latent coordinates to rendered image
// references.
//
// Every implementation is deterministic per coordinate fingerprint: the
// same coordinate, rounded to 4 decimals per axis, always yields the same
// reference.
package imageservice

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/e7canasta/latent-explorer/internal/types"
	"github.com/e7canasta/latent-explorer/modules/renderpipeline"
)

var (
	// ErrGenerationFailed is returned when the backend rejects a request.
	ErrGenerationFailed = errors.New("imageservice: generation failed")

	// ErrInvalidDimensions is returned for non-positive image sizes.
	ErrInvalidDimensions = errors.New("imageservice: invalid dimensions")

	// ErrUnknownKind is returned by New for an unsupported backend kind.
	ErrUnknownKind = errors.New("imageservice: unknown service kind")
)

// Request describes one image to render.
type Request struct {
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Z      *float64 `json:"z,omitempty"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
}

// RequestFor builds a request for a coordinate at the given size.
func RequestFor(c types.Coordinate, width, height int) Request {
	return Request{X: c.X, Y: c.Y, Z: c.Z, Width: width, Height: height}
}

// Fingerprint is the stable seed of the request coordinate.
func (r Request) Fingerprint() string {
	return Fingerprint(r.X, r.Y, r.Z)
}

func (r Request) validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, r.Width, r.Height)
	}
	return nil
}

// Service renders an image for a coordinate and returns its reference.
type Service interface {
	Render(ctx context.Context, req Request) (string, error)
}

// Fingerprint formats a coordinate as latent_X_Y[_Z] with 4 decimals per
// axis. Axes are rounded before formatting so values that round to zero
// from below print as zero, not -0.0000.
func Fingerprint(x, y float64, z *float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "latent_%.4f_%.4f", round4(x), round4(y))
	if z != nil {
		fmt.Fprintf(&b, "_%.4f", round4(*z))
	}
	return b.String()
}

func round4(v float64) float64 {
	return math.Round(v*1e4)/1e4 + 0
}

// NewFetcher adapts a Service to the render pipeline at a fixed image size.
func NewFetcher(svc Service, width, height int) renderpipeline.Fetcher {
	return renderpipeline.FetcherFunc(func(ctx context.Context, c types.Coordinate) (string, error) {
		return svc.Render(ctx, RequestFor(c, width, height))
	})
}
