package imageservice

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// DefaultPlaceholderURL serves seeded stock images.
const DefaultPlaceholderURL = "https://picsum.photos"

// Placeholder stands in for a real generator: it returns a seeded stock
// image URL after an artificial delay, and fails at a configurable rate.
type Placeholder struct {
	BaseURL     string
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64 // 0..1
}

// NewPlaceholder returns a placeholder with 30-200ms latency and no failures.
func NewPlaceholder(baseURL string) *Placeholder {
	if baseURL == "" {
		baseURL = DefaultPlaceholderURL
	}
	return &Placeholder{
		BaseURL:    baseURL,
		MinLatency: 30 * time.Millisecond,
		MaxLatency: 200 * time.Millisecond,
	}
}

// Render waits out the simulated latency, or returns early with ctx's
// error when cancelled.
func (p *Placeholder) Render(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	timer := time.NewTimer(p.latency())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	if p.FailureRate > 0 && rand.Float64() < p.FailureRate {
		return "", fmt.Errorf("%w: %s", ErrGenerationFailed, req.Fingerprint())
	}

	base := strings.TrimRight(p.BaseURL, "/")
	return fmt.Sprintf("%s/seed/%s/%d/%d", base, req.Fingerprint(), req.Width, req.Height), nil
}

func (p *Placeholder) latency() time.Duration {
	span := p.MaxLatency - p.MinLatency
	if span <= 0 {
		return max(p.MinLatency, 0)
	}
	return p.MinLatency + rand.N(span)
}
