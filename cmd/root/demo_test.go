package root

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/eventreporter/pkg/analytics"
	"github.com/docker/eventreporter/pkg/cli"
	"github.com/docker/eventreporter/pkg/demo"
)

// blockingTransport holds every send until release is closed.
type blockingTransport struct {
	release chan struct{}
}

func (b *blockingTransport) Send(ctx context.Context, _ *analytics.Request) analytics.Response {
	select {
	case <-b.release:
		return analytics.Response{OK: true, HTTPStatus: 204, StatusText: "204 No Content"}
	case <-ctx.Done():
		return analytics.Response{StatusText: ctx.Err().Error()}
	}
}

func (b *blockingTransport) Close() error { return nil }

func newTestLoop(t *testing.T) (*demoLoop, *analytics.Client, *bytes.Buffer) {
	t.Helper()
	return newTestLoopWith(t, nil)
}

func newTestLoopWith(t *testing.T, transport analytics.Transport) (*demoLoop, *analytics.Client, *bytes.Buffer) {
	t.Helper()

	store, err := newParamStore()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if transport == nil {
		transport = analytics.NewLogTransport(logger)
	}
	client := analytics.New(logger, transport,
		analytics.WithSettingsSource(store),
		analytics.WithUUIDFile(filepath.Join(t.TempDir(), "client-uuid")))
	require.NoError(t, client.Configure("UA-TEST", "demo", "dev", "app", "installer"))

	var out bytes.Buffer
	return &demoLoop{
		app:     demo.New(client, store, demo.WithBenchmark(func() time.Duration { return time.Millisecond })),
		client:  client,
		printer: cli.NewPrinter(&out),
		fps:     60,
	}, client, &out
}

func runLines(t *testing.T, l *demoLoop, lines ...string) {
	t.Helper()

	ch := make(chan string)
	done := make(chan error, 1)
	go func() {
		done <- l.run(t.Context(), ch)
	}()

	for _, line := range lines {
		ch <- line
	}
	close(ch)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestDemoLoop_KeysRecord(t *testing.T) {
	l, client, out := newTestLoop(t)

	runLines(t, l, "7q", "4 ", "x")

	assert.Equal(t, 4, client.QueueLength())
	assert.Contains(t, out.String(), `Key 'x' is not bound`)
}

func TestDemoLoop_Commands(t *testing.T) {
	l, client, out := newTestLoop(t)

	runLines(t, l, "2", "?", "flush")

	assert.Equal(t, 0, client.QueueLength())
	assert.Equal(t, 1, client.Session().RequestsSent)
	assert.Equal(t, 1, client.Status().Stats.BatchesSent)
	assert.Contains(t, out.String(), "Screen: 2")

	runLines(t, l, "flush", "reset")

	assert.Equal(t, 0, client.Session().RequestsSent)
	assert.Contains(t, out.String(), "Nothing to send.")
	assert.Contains(t, out.String(), "New session ")
}

func TestDemoLoop_FlushDoesNotStallFrames(t *testing.T) {
	transport := &blockingTransport{release: make(chan struct{})}
	l, client, out := newTestLoopWith(t, transport)

	ch := make(chan string)
	done := make(chan error, 1)
	go func() {
		done <- l.run(t.Context(), ch)
	}()

	send := func(line string) {
		select {
		case ch <- line:
		case <-time.After(2 * time.Second):
			t.Fatalf("loop blocked before %q", line)
		}
	}
	send("7")
	send("flush")
	send("?")
	send("8")

	close(transport.release)
	close(ch)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}

	assert.Equal(t, 1, client.Status().Stats.BatchesSent)
	assert.Contains(t, out.String(), "Screen: 1")
}

func TestParseCapPolicy(t *testing.T) {
	p, err := parseCapPolicy("drop-batches")
	require.NoError(t, err)
	assert.Equal(t, analytics.CapDropBatches, p)

	_, err = parseCapPolicy("drop-everything")
	var cfgErr *analytics.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestDemo_RejectsBadFlags(t *testing.T) {
	_, stderr, err := execute(t, "", "demo", "--cap-policy", "bogus")
	require.Error(t, err)
	assert.Contains(t, stderr, "Invalid analytics configuration: cap policy")

	_, _, err = execute(t, "", "demo", "--fps", "0")
	require.Error(t, err)
}

func TestDemoFlags_Transport(t *testing.T) {
	f := demoFlags{}
	tr, err := f.newTransport()
	require.NoError(t, err)
	assert.IsType(t, &analytics.LogTransport{}, tr)

	f.endpoint = "ftp://nope"
	_, err = f.newTransport()
	require.Error(t, err)

	f.endpoint = "http://127.0.0.1:1/collect"
	f.apiKey = "secret"
	tr, err = f.newTransport()
	require.NoError(t, err)
	assert.IsType(t, &analytics.HTTPTransport{}, tr)
}

func TestCanonicalEndpoint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://127.0.0.1:8080/collect", canonicalEndpoint(" http://127.0.0.1:8080/collect/ "))
	assert.Empty(t, canonicalEndpoint("  "))
}
