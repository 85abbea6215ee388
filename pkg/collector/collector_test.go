package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/eventreporter/pkg/analytics"
)

func postBatch(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/collect", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func batchJSON(t *testing.T, req analytics.Request) string {
	t.Helper()

	buf, err := json.Marshal(req)
	require.NoError(t, err)
	return string(buf)
}

func TestCollect_CountsPerClient(t *testing.T) {
	c := New()

	rec := postBatch(t, c.Handler(), batchJSON(t, analytics.Request{
		BatchID:  "b1",
		ClientID: "client-a",
		AppName:  "demo",
		Records: []analytics.EventPayload{
			{Event: analytics.EventTypeScreenView},
			{Event: analytics.EventTypeEvent},
			{Event: analytics.EventTypeEvent},
		},
	}))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = postBatch(t, c.Handler(), batchJSON(t, analytics.Request{BatchID: "b2", ClientID: "client-a", AppName: "demo", Records: []analytics.EventPayload{}}))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stats := c.Stats()
	require.Contains(t, stats, "client-a")
	a := stats["client-a"]
	assert.Equal(t, 2, a.Batches)
	assert.Equal(t, 3, a.Events)
	assert.Equal(t, 1, a.EmptyBatch)
	assert.Equal(t, 2, a.ByType["event"])
	assert.Equal(t, "b2", a.LastBatchID)
}

func TestCollect_RejectsMalformedBatch(t *testing.T) {
	c := New()

	assert.Equal(t, http.StatusBadRequest, postBatch(t, c.Handler(), `{"batch_id":`).Code)
	assert.Equal(t, http.StatusBadRequest, postBatch(t, c.Handler(), `{"records":[]}`).Code)
	assert.Empty(t, c.Stats())
}

func TestCollect_ForcedStatus(t *testing.T) {
	c := New(WithStatus(http.StatusServiceUnavailable))

	rec := postBatch(t, c.Handler(), batchJSON(t, analytics.Request{BatchID: "b1", ClientID: "client-a"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, c.Stats())
}

func TestStatsAndPing(t *testing.T) {
	c := New()
	postBatch(t, c.Handler(), batchJSON(t, analytics.Request{BatchID: "b1", ClientID: "client-a", Records: []analytics.EventPayload{{Event: analytics.EventTypeTiming}}}))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]ClientStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats["client-a"].ByType["timing"])

	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestServe_UnixSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	socketPath := "unix://" + filepath.Join(t.TempDir(), "collector.sock")
	ln, err := Listen(ctx, socketPath)
	require.NoError(t, err)

	c := New()
	done := make(chan error, 1)
	go func() {
		done <- c.Serve(ctx, ln)
	}()

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", strings.TrimPrefix(socketPath, "unix://"))
			},
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://_/ping", http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestAnalyticsClientEndToEnd(t *testing.T) {
	c := New()
	srv := httptest.NewServer(c.Handler())
	t.Cleanup(srv.Close)

	transport, err := analytics.NewHTTPTransport(srv.URL+"/collect", analytics.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	var logs bytes.Buffer
	client := analytics.New(slog.New(slog.NewTextHandler(&logs, nil)), transport,
		analytics.WithUUIDFile(filepath.Join(t.TempDir(), "client-uuid")))
	require.NoError(t, client.Configure("UA-LOCAL", "demo", "1.0.0", "com.example.demo", "local"))

	client.RecordScreenView(t.Context(), "screen1")
	client.RecordException(t.Context(), "fatal crash", true)

	resp, ok := client.Flush(t.Context())
	require.True(t, ok)
	assert.True(t, resp.OK)
	assert.Equal(t, http.StatusNoContent, resp.HTTPStatus)

	stats := c.Stats()
	require.Contains(t, stats, client.Session().UUID)
	got := stats[client.Session().UUID]
	assert.Equal(t, 2, got.Events)
	assert.Equal(t, 1, got.ByType["exception"])
	assert.Equal(t, "demo", got.AppName)

	client.Shutdown(t.Context())
}

func TestAnalyticsClientSeesForcedFailure(t *testing.T) {
	c := New(WithStatus(http.StatusInternalServerError))
	srv := httptest.NewServer(c.Handler())
	t.Cleanup(srv.Close)

	transport, err := analytics.NewHTTPTransport(srv.URL+"/collect", analytics.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	client := analytics.New(slog.New(slog.NewTextHandler(io.Discard, nil)), transport,
		analytics.WithUUIDFile(filepath.Join(t.TempDir(), "client-uuid")))
	require.NoError(t, client.Configure("UA-LOCAL", "demo", "1.0.0", "com.example.demo", "local"))

	client.RecordPageView(t.Context(), "keyboardKeys/row1/q", "my page for Q key")
	resp, ok := client.Flush(t.Context())
	require.True(t, ok)
	assert.False(t, resp.OK)
	assert.Equal(t, http.StatusInternalServerError, resp.HTTPStatus)
	assert.Equal(t, 1, client.Status().Stats.BatchesFailed)
}
