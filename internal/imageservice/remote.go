package imageservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Remote calls an HTTP generator. The endpoint receives the request as
// JSON (plus its fingerprint) and answers {"url": "..."}.
type Remote struct {
	Endpoint string
	Client   *http.Client
}

// NewRemote returns a Remote with its own client timeout.
func NewRemote(endpoint string, timeout time.Duration) *Remote {
	return &Remote{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

type remoteRequest struct {
	Request
	Fingerprint string `json:"fingerprint"`
}

type remoteResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

func (r *Remote) Render(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(remoteRequest{Request: req, Fingerprint: req.Fingerprint()})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", req.Fingerprint(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out remoteResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(data, &out)
		return "", fmt.Errorf("%w: status %d %s", ErrGenerationFailed, resp.StatusCode, out.Error)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: empty url", ErrGenerationFailed)
	}
	return out.URL, nil
}
