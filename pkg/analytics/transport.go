package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/docker/eventreporter/pkg/httpclient"
)

// Transport delivers one batch and reports the outcome. Implementations
// must be safe for concurrent use; Send must honor ctx cancellation.
type Transport interface {
	Send(ctx context.Context, req *Request) Response
	Close() error
}

// HTTPClient interface for testing
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var errTransportClosed = errors.New("transport closed")

// HTTPTransport posts each batch as a JSON envelope to a collector endpoint.
type HTTPTransport struct {
	endpoint  string
	header    string
	apiKey    string
	caFile    string
	userAgent string
	client    HTTPClient
	logger    *analyticsLogger
	closed    atomic.Bool
}

type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces the default TLS-configured client.
func WithHTTPClient(client HTTPClient) TransportOption {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// WithAPIKey sends key in the given request header.
func WithAPIKey(header, key string) TransportOption {
	return func(t *HTTPTransport) {
		t.header = header
		t.apiKey = key
	}
}

// WithCAFile trusts only the PEM certificates in path.
func WithCAFile(path string) TransportOption {
	return func(t *HTTPTransport) {
		t.caFile = path
	}
}

func WithTransportUserAgent(agent string) TransportOption {
	return func(t *HTTPTransport) {
		t.userAgent = agent
	}
}

func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *HTTPTransport) {
		t.logger = newAnalyticsLogger(logger)
	}
}

// NewHTTPTransport validates endpoint and sets up the secure channel used
// for every send.
func NewHTTPTransport(endpoint string, opts ...TransportOption) (*HTTPTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ConfigError{Field: "endpoint", Reason: fmt.Sprintf("%q must be an http or https URL", endpoint)}
	}

	t := &HTTPTransport{
		endpoint:  endpoint,
		userAgent: httpclient.DefaultUserAgent,
		logger:    newAnalyticsLogger(nil),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.client == nil {
		tlsConfig, err := httpclient.SecureTLSConfig(t.caFile)
		if err != nil {
			return nil, fmt.Errorf("setting up TLS: %w", err)
		}
		t.client = httpclient.NewHTTPClient(
			httpclient.WithUserAgent(t.userAgent),
			httpclient.WithTLSConfig(tlsConfig),
		)
	}

	return t, nil
}

func (t *HTTPTransport) Send(ctx context.Context, req *Request) Response {
	if t.closed.Load() {
		return Response{StatusText: errTransportClosed.Error()}
	}

	status, statusText, err := t.post(ctx, req)
	if err != nil {
		t.logger.Debug("Failed to send batch", "batch_id", req.BatchID, "error", err)
		if statusText == "" {
			statusText = err.Error()
		}
		return Response{HTTPStatus: status, StatusText: statusText}
	}
	return Response{OK: true, HTTPStatus: status, StatusText: statusText}
}

func (t *HTTPTransport) post(ctx context.Context, batch *Request) (int, string, error) {
	jsonData, err := json.Marshal(batch)
	if err != nil {
		return 0, "", fmt.Errorf("failed to marshal request to JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	if t.apiKey != "" && t.header != "" {
		req.Header.Set(t.header, t.apiKey)
	}

	t.logger.Debug("HTTP request details",
		"url", req.URL.String(),
		"batch_id", batch.BatchID,
		"events", len(batch.Records),
		"has_header", req.Header.Get(t.header) != "",
		"payload_size", len(jsonData),
	)

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read up to 1KB of error response
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		t.logger.Debug("HTTP error response details",
			"status_code", resp.StatusCode,
			"status_text", resp.Status,
			"response_body", string(body),
		)
		return resp.StatusCode, resp.Status, fmt.Errorf("HTTP request failed with status %d", resp.StatusCode)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, resp.Status, nil
}

// Close releases idle connections. Sends after Close fail immediately.
func (t *HTTPTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	if c, ok := t.client.(*http.Client); ok {
		httpclient.CloseIdle(c)
	}
	return nil
}

// LogTransport prints every batch to the logger instead of sending it.
type LogTransport struct {
	logger *analyticsLogger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: newAnalyticsLogger(logger)}
}

func (t *LogTransport) Send(_ context.Context, req *Request) Response {
	output, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		t.logger.Error("Failed to marshal batch", "error", err)
		return Response{StatusText: err.Error()}
	}
	t.logger.Info("batch", "batch_id", req.BatchID, "events", len(req.Records), "envelope", string(output))
	return Response{OK: true, HTTPStatus: http.StatusOK, StatusText: "200 OK"}
}

func (t *LogTransport) Close() error {
	return nil
}
