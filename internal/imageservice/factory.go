package imageservice

import (
	"fmt"
	"time"
)

// Backend kinds accepted by New.
const (
	KindPlaceholder = "placeholder"
	KindRemote      = "remote"
)

// Options selects and tunes a backend.
type Options struct {
	Kind        string
	BaseURL     string
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64
	Endpoint    string
	Timeout     time.Duration
	CacheSize   int // 0 disables caching
}

// New builds the configured backend, optionally behind an LRU cache.
func New(opts Options) (Service, error) {
	var svc Service
	switch opts.Kind {
	case "", KindPlaceholder:
		p := NewPlaceholder(opts.BaseURL)
		p.MinLatency = opts.MinLatency
		p.MaxLatency = opts.MaxLatency
		p.FailureRate = opts.FailureRate
		svc = p
	case KindRemote:
		if opts.Endpoint == "" {
			return nil, fmt.Errorf("remote image service requires an endpoint")
		}
		svc = NewRemote(opts.Endpoint, opts.Timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}

	if opts.CacheSize <= 0 {
		return svc, nil
	}
	cached, err := NewCached(svc, opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}
