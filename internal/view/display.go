// Package view holds the consumer-side state of a rendered image panel.
package view

import (
	"fmt"
	"sync"

	"github.com/e7canasta/latent-explorer/internal/types"
)

// Phase is what the panel shows.
type Phase string

const (
	PhaseIdle    Phase = "idle"    // nothing rendered yet, or cleared
	PhaseLoading Phase = "loading" // overlay on top of the previous image
	PhaseImage   Phase = "image"
	PhaseError   Phase = "error"
)

// State is a snapshot of a Display.
type State struct {
	Phase    Phase  `json:"phase"`
	ImageRef string `json:"image_ref,omitempty"`
	Error    string `json:"error,omitempty"`

	// Coordinate is the coordinate of the latest result, including one
	// still loading.
	Coordinate *types.Coordinate `json:"coordinate,omitempty"`

	// Shown is the coordinate the visible image belongs to. It does not
	// advance while loading.
	Shown *types.Coordinate `json:"shown,omitempty"`

	Caption string `json:"caption,omitempty"`

	// AltText describes the latest image for accessibility.
	AltText string `json:"alt_text"`
}

// Display applies bus results to panel state. A loading result never
// blanks the previous image; it only raises the loading overlay.
//
// Apply has the imagebus.Listener signature.
type Display struct {
	mu sync.RWMutex
	st State
}

// NewDisplay returns a display in its empty default state.
func NewDisplay() *Display {
	d := &Display{}
	d.Apply(types.EmptyResult())
	return d
}

// Apply folds one published result into the panel.
func (d *Display) Apply(r types.RenderResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.st.ImageRef = r.ImageRef
	d.st.Error = r.Error
	d.st.Coordinate = r.Coordinate

	switch {
	case r.Loading:
		d.st.Phase = PhaseLoading
		// Shown keeps the previous coordinate.
	case r.HasError():
		d.st.Phase = PhaseError
		d.st.Shown = r.Coordinate
	case r.ImageRef != "":
		d.st.Phase = PhaseImage
		d.st.Shown = r.Coordinate
	default:
		d.st.Phase = PhaseIdle
		d.st.Shown = nil
	}
	d.st.Caption = caption(d.st.Shown)
	d.st.AltText = altText(d.st.Coordinate)
}

// State returns a snapshot.
func (d *Display) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.st
}

func altText(c *types.Coordinate) string {
	if c == nil {
		return "Placeholder image"
	}
	if c.Is3D() {
		return fmt.Sprintf("Latent space render at X:%.2f Y:%.2f Z:%.2f", c.X, c.Y, *c.Z)
	}
	return fmt.Sprintf("Latent space render at X:%.2f Y:%.2f", c.X, c.Y)
}

func caption(c *types.Coordinate) string {
	if c == nil {
		return ""
	}
	return "Rendered for: " + c.String()
}
