package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"creative-dispatch/internal/observability"
)

// maxResponseSize caps how much of a worker response is read and kept for audit (10MB).
const maxResponseSize = 10 * 1024 * 1024

const runIDHeader = "X-Dispatch-Run-ID"

// WorkerResponse is the raw HTTP outcome of one worker call.
type WorkerResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// WorkerClient posts recipe-group payloads to the integration worker endpoint.
// It has no retry logic; the http.Client timeout is the only deadline.
type WorkerClient struct {
	httpClient *http.Client
	endpoint   string
}

func NewWorkerClient(endpoint string, timeout time.Duration) *WorkerClient {
	return &WorkerClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
	}
}

// Send issues one POST. Non-2xx responses are returned, not treated as errors;
// only transport failures produce an error.
func (c *WorkerClient) Send(ctx context.Context, wr WorkerRequest) (*WorkerResponse, error) {
	body, err := json.Marshal(wr)
	if err != nil {
		return nil, fmt.Errorf("encode worker request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if wr.RunID != "" {
		req.Header.Set(runIDHeader, wr.RunID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	observability.WorkerLatency.Observe(elapsed.Seconds())
	if err != nil {
		return nil, fmt.Errorf("integration worker request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read worker response: %w", err)
	}
	log.Debug().
		Str("integration_id", wr.IntegrationID).
		Int("attempt", wr.Attempt).
		Int("status", resp.StatusCode).
		Dur("took", elapsed).
		Msg("integration worker responded")

	return &WorkerResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}
