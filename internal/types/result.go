package types

// RenderRequest is issued by the render pipeline when a debounced
// coordinate change fires.
type RenderRequest struct {
	Coordinate Coordinate
	// Sequence is monotonically increasing per pipeline instance.
	Sequence uint64
}

// RenderResult is the unit delivered on the coordinate/image bus.
//
// An empty ImageRef means "no image" and an empty Error means "no error".
// A result is always published whole; consumers replace their previous
// state with it.
type RenderResult struct {
	ImageRef   string      `json:"image_ref,omitempty" msgpack:"image_ref,omitempty"`
	Loading    bool        `json:"loading" msgpack:"loading"`
	Error      string      `json:"error,omitempty" msgpack:"error,omitempty"`
	Coordinate *Coordinate `json:"coordinate,omitempty" msgpack:"coordinate,omitempty"`
}

// EmptyResult is published when the pointer leaves the space, picking
// misses or input is disabled.
func EmptyResult() RenderResult {
	return RenderResult{}
}

// IsEmpty reports whether r is the cleared state.
func (r RenderResult) IsEmpty() bool {
	return r.ImageRef == "" && !r.Loading && r.Error == "" && r.Coordinate == nil
}

// HasError reports whether r carries a fetch failure.
func (r RenderResult) HasError() bool {
	return r.Error != ""
}
