package imagebus

import (
	"testing"

	"github.com/e7canasta/latent-explorer/internal/types"
)

func TestCalculateOverwriteRate(t *testing.T) {
	tests := []struct {
		name     string
		stats    BusStats
		id       string
		expected float64
	}{
		{
			name:     "unknown subscriber",
			stats:    BusStats{Subscribers: map[string]SubscriberStats{}},
			id:       "ws",
			expected: 0.0,
		},
		{
			name:     "nothing delivered",
			stats:    BusStats{Subscribers: map[string]SubscriberStats{"ws": {}}},
			id:       "ws",
			expected: 0.0,
		},
		{
			name:     "every result read",
			stats:    BusStats{Subscribers: map[string]SubscriberStats{"ws": {Delivered: 10}}},
			id:       "ws",
			expected: 0.0,
		},
		{
			name:     "slow writer",
			stats:    BusStats{Subscribers: map[string]SubscriberStats{"ws": {Delivered: 4, Overwritten: 3}}},
			id:       "ws",
			expected: 0.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateOverwriteRate(tt.stats, tt.id)
			if got != tt.expected {
				t.Errorf("CalculateOverwriteRate() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPublicAPI(t *testing.T) {
	b := New()
	defer b.Close()

	var got types.RenderResult
	sub, err := b.Subscribe(func(r types.RenderResult) { got = r })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	want := types.RenderResult{ImageRef: "https://img/1", Coordinate: &types.Coordinate{X: 0.5}}
	b.Publish(want)
	if got.ImageRef != want.ImageRef || got.Coordinate != want.Coordinate {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
