package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockHTTPClient captures HTTP requests for testing
type MockHTTPClient struct {
	*http.Client
	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
	status   int
	body     string
}

// NewMockHTTPClient creates a new mock HTTP client with a default success response
func NewMockHTTPClient() *MockHTTPClient {
	mock := &MockHTTPClient{status: http.StatusAccepted}
	mock.Client = &http.Client{Transport: mock}
	return mock
}

func (m *MockHTTPClient) SetResponse(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.body = body
}

// RoundTrip implements http.RoundTripper and captures the request
func (m *MockHTTPClient) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		m.bodies = append(m.bodies, body)
	} else {
		m.bodies = append(m.bodies, nil)
	}

	return &http.Response{
		StatusCode: m.status,
		Status:     http.StatusText(m.status),
		Body:       io.NopCloser(strings.NewReader(m.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func (m *MockHTTPClient) GetRequests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request{}, m.requests...)
}

func (m *MockHTTPClient) GetBodies() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte{}, m.bodies...)
}

func testRequest() *Request {
	return &Request{
		BatchID:    "batch-1",
		TrackingID: "UA-TEST-1",
		ClientID:   "client-1",
		AppName:    "demo",
		AppVersion: "1.0.0",
		SentAt:     1700000000000,
		Records: []EventPayload{
			{Event: EventTypeScreenView, EventTimestamp: 1700000000000, Source: "demo", Properties: map[string]any{"screen_name": "menu"}},
		},
	}
}

func TestNewHTTPTransport_RejectsBadEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "ftp://example.com", "not a url", "https://"} {
		_, err := NewHTTPTransport(endpoint)
		require.Error(t, err, endpoint)
	}

	_, err := NewHTTPTransport("https://example.com/collect", WithCAFile("/does/not/exist.pem"))
	require.Error(t, err)
}

func TestHTTPTransport_Send(t *testing.T) {
	mock := NewMockHTTPClient()
	tr, err := NewHTTPTransport("https://collector.example.com/collect",
		WithHTTPClient(mock),
		WithAPIKey("x-api-key", "secret"),
		WithTransportUserAgent("demo-agent/1.0"),
		WithTransportLogger(discardLogger()),
	)
	require.NoError(t, err)

	resp := tr.Send(t.Context(), testRequest())
	assert.True(t, resp.OK)
	assert.Equal(t, http.StatusAccepted, resp.HTTPStatus)

	requests := mock.GetRequests()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "demo-agent/1.0", req.Header.Get("User-Agent"))
	assert.Equal(t, "secret", req.Header.Get("x-api-key"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(mock.GetBodies()[0], &body))
	assert.Equal(t, "batch-1", body["batch_id"])
	assert.Equal(t, "UA-TEST-1", body["tracking_id"])
	records, ok := body["records"].([]any)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "screenview", records[0].(map[string]any)["event"])
}

func TestHTTPTransport_ErrorStatus(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.SetResponse(http.StatusTooManyRequests, `{"error":"slow down"}`)
	tr, err := NewHTTPTransport("http://localhost:1/collect", WithHTTPClient(mock))
	require.NoError(t, err)

	resp := tr.Send(t.Context(), testRequest())
	assert.False(t, resp.OK)
	assert.Equal(t, http.StatusTooManyRequests, resp.HTTPStatus)
	assert.Equal(t, "Too Many Requests", resp.StatusText)
}

type failingHTTPClient struct{}

func (failingHTTPClient) Do(*http.Request) (*http.Response, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestHTTPTransport_NetworkError(t *testing.T) {
	tr, err := NewHTTPTransport("http://localhost:1/collect", WithHTTPClient(failingHTTPClient{}))
	require.NoError(t, err)

	resp := tr.Send(t.Context(), testRequest())
	assert.False(t, resp.OK)
	assert.Equal(t, 0, resp.HTTPStatus)
	assert.Contains(t, resp.StatusText, "unexpected EOF")
}

func TestHTTPTransport_SendAfterClose(t *testing.T) {
	mock := NewMockHTTPClient()
	tr, err := NewHTTPTransport("https://collector.example.com/collect", WithHTTPClient(mock))
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	resp := tr.Send(t.Context(), testRequest())
	assert.False(t, resp.OK)
	assert.Equal(t, "transport closed", resp.StatusText)
	assert.Empty(t, mock.GetRequests())
}

func TestHTTPTransport_DefaultClientCloses(t *testing.T) {
	tr, err := NewHTTPTransport("https://collector.example.com/collect")
	require.NoError(t, err)
	require.NoError(t, tr.Close())
}

func TestLogTransport(t *testing.T) {
	var buf bytes.Buffer
	logger := slogToBuffer(&buf)
	tr := NewLogTransport(logger)

	resp := tr.Send(context.Background(), testRequest())
	assert.True(t, resp.OK)
	assert.Equal(t, http.StatusOK, resp.HTTPStatus)
	assert.Contains(t, buf.String(), "[Analytics] batch")
	assert.Contains(t, buf.String(), "batch-1")
	require.NoError(t, tr.Close())
}

func TestClient_WithHTTPTransport(t *testing.T) {
	mock := NewMockHTTPClient()
	tr, err := NewHTTPTransport("https://collector.example.com/collect", WithHTTPClient(mock))
	require.NoError(t, err)

	c := newTestClient(t, tr)
	c.RecordPageView(t.Context(), "keyboardKeys/row3/z", "my page for Z key")
	c.Shutdown(t.Context())

	bodies := mock.GetBodies()
	require.Len(t, bodies, 1)

	var got Request
	require.NoError(t, json.Unmarshal(bodies[0], &got))
	assert.Equal(t, "UA-TEST-1", got.TrackingID)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "keyboardKeys/row3/z", got.Records[0].Properties["path"])
}

func slogToBuffer(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
