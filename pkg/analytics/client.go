package analytics

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/docker/eventreporter/pkg/concurrent"
	"github.com/docker/eventreporter/pkg/paths"
)

const (
	defaultQueueCapacity   = 1000
	defaultSendTimeout     = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	tracerName             = "github.com/docker/eventreporter/pkg/analytics"
)

// analyticsLogger wraps slog.Logger to prepend "[Analytics]" to all messages
type analyticsLogger struct {
	logger *slog.Logger
}

func newAnalyticsLogger(logger *slog.Logger) *analyticsLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &analyticsLogger{logger: logger}
}

func (l *analyticsLogger) Debug(msg string, args ...any) {
	l.logger.Debug("[Analytics] "+msg, args...)
}

func (l *analyticsLogger) Info(msg string, args ...any) {
	l.logger.Info("[Analytics] "+msg, args...)
}

func (l *analyticsLogger) Warn(msg string, args ...any) {
	l.logger.Warn("[Analytics] "+msg, args...)
}

func (l *analyticsLogger) Error(msg string, args ...any) {
	l.logger.Error("[Analytics] "+msg, args...)
}

func (l *analyticsLogger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.logger.Enabled(ctx, level)
}

type framerateSampler struct {
	interval int
	samples  int
	total    time.Duration
}

func (f *framerateSampler) reset() {
	f.samples = 0
	f.total = 0
}

// Client accumulates analytics events and flushes them to a Transport in
// batches. The owner drives it by calling Tick from its own loop; sends run
// on background goroutines and report back through the OnResponse observer.
//
// All methods are safe for concurrent use.
type Client struct {
	logger    *analyticsLogger
	transport Transport
	tracer    trace.Tracer
	queue     *concurrent.Queue[EventPayload]
	now       func() time.Time
	jitterFn  func(interval time.Duration) time.Duration

	queueCapacity   int
	sendTimeout     time.Duration
	shutdownTimeout time.Duration
	uuidFile        string

	mu         sync.Mutex
	configured bool
	closed     bool
	enabled    bool
	settings   Settings
	source     SettingsSource
	session    Session
	elapsed    time.Duration
	jitter     time.Duration
	framerate  framerateSampler
	observer   func(Response)
	last       *Response
	stats      Stats

	inflight sync.WaitGroup
}

type Option func(*Client)

// WithSettings sets the initial settings; they are clamped to bounds.
func WithSettings(s Settings) Option {
	return func(c *Client) {
		c.settings = s.Clamp()
	}
}

// WithSettingsSource makes OnParamChanged re-read every setting from src.
// The settings are also read from src once at construction.
func WithSettingsSource(src SettingsSource) Option {
	return func(c *Client) {
		c.source = src
	}
}

// WithQueueCapacity bounds the number of events waiting for a flush.
// Records beyond it are dropped.
func WithQueueCapacity(n int) Option {
	return func(c *Client) {
		c.queueCapacity = n
	}
}

// WithJitter replaces the random jitter source. fn receives the effective
// interval; its result is clamped to ±20% of that interval.
func WithJitter(fn func(interval time.Duration) time.Duration) Option {
	return func(c *Client) {
		c.jitterFn = fn
	}
}

// WithUUIDFile sets where the per-install client UUID is persisted.
func WithUUIDFile(path string) Option {
	return func(c *Client) {
		c.uuidFile = path
	}
}

// WithRandomizeUUID gives every session a fresh random UUID instead of the
// persisted per-install one.
func WithRandomizeUUID(randomize bool) Option {
	return func(c *Client) {
		c.session.RandomizeUUID = randomize
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.sendTimeout = d
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.shutdownTimeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates an enabled but unconfigured client and starts its session.
// A nil transport falls back to a LogTransport.
func New(logger *slog.Logger, transport Transport, opts ...Option) *Client {
	if transport == nil {
		transport = NewLogTransport(logger)
	}

	c := &Client{
		logger:          newAnalyticsLogger(logger),
		transport:       transport,
		tracer:          otel.Tracer(tracerName),
		now:             time.Now,
		jitterFn:        uniformJitter,
		queueCapacity:   defaultQueueCapacity,
		sendTimeout:     defaultSendTimeout,
		shutdownTimeout: defaultShutdownTimeout,
		uuidFile:        paths.UUIDFile(),
		enabled:         true,
		settings:        DefaultSettings(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.queue = concurrent.NewQueue[EventPayload](c.queueCapacity)
	if c.source != nil {
		c.settings = SettingsFrom(c.source, c.settings)
	}
	c.startSessionLocked()

	c.logger.Debug("Client created", "session_uuid", c.session.UUID, "randomize_uuid", c.session.RandomizeUUID)
	return c
}

// uniformJitter draws from [-0.2*interval, +0.2*interval].
func uniformJitter(interval time.Duration) time.Duration {
	bound := float64(interval) * jitterFraction
	return time.Duration((rand.Float64()*2 - 1) * bound)
}

// Configure sets the identity reported with every batch. It may be called
// only once, and trackingID must not be empty.
func (c *Client) Configure(trackingID, appName, appVersion, appID, installerID string) error {
	if strings.TrimSpace(trackingID) == "" {
		return &ConfigError{Field: "tracking ID", Reason: "cannot be empty"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.configured {
		return &ConfigError{Field: "identity", Reason: "client is already configured"}
	}

	c.session.Identity = Identity{
		TrackingID:  trackingID,
		AppName:     appName,
		AppVersion:  appVersion,
		AppID:       appID,
		InstallerID: installerID,
	}
	c.configured = true

	c.logger.Debug("Configured", "tracking_id", trackingID, "app", appName, "version", appVersion)
	return nil
}

// SetEnabled is the global kill switch. While disabled every record call is
// a no-op; events already queued are still flushed.
func (c *Client) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

func (c *Client) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetSettings replaces the settings, clamping numeric fields to bounds.
func (c *Client) SetSettings(s Settings) {
	clamped := s.Clamp()
	if clamped != s {
		c.logger.Debug("Settings clamped to bounds", "requested", s, "applied", clamped)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = clamped
	c.clampJitterLocked()
}

func (c *Client) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetFramerateReporting turns the periodic frame-rate sample on or off.
// Every intervalSamples ticks a Performance/Framerate timing is recorded
// with the mean frame time over those ticks.
func (c *Client) SetFramerateReporting(enabled bool, intervalSamples int) error {
	if intervalSamples < 1 {
		return &ConfigError{Field: "framerate interval", Reason: "must be at least one sample"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings.SendFramerate = enabled
	c.framerate.interval = intervalSamples
	c.framerate.reset()
	return nil
}

// OnResponse registers the observer called after every transmission
// attempt. It replaces any previous observer and runs on the sending
// goroutine.
func (c *Client) OnResponse(fn func(Response)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// OnParamChanged re-reads every setting from the settings source. It is
// meant to be registered with the params overlay.
func (c *Client) OnParamChanged(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source != nil {
		c.settings = SettingsFrom(c.source, c.settings)
		c.clampJitterLocked()
	}
	if name == ParamRandomizeUUID {
		if randomize, ok := value.(bool); ok {
			c.setRandomizeUUIDLocked(randomize)
		}
	}

	c.logger.Debug("Param changed", "name", name, "value", value)
}

// Status returns a snapshot for debug overlays.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	var last *Response
	if c.last != nil {
		copied := *c.last
		last = &copied
	}

	return Status{
		Configured:     c.configured,
		Enabled:        c.enabled,
		Closed:         c.closed,
		Queued:         c.queue.Length(),
		Elapsed:        c.elapsed,
		FlushThreshold: c.settings.effectiveInterval() + c.jitter,
		RequestsSent:   c.session.RequestsSent,
		MaxRequests:    c.settings.MaxRequestsPerSession,
		SessionUUID:    c.session.UUID,
		LastResponse:   last,
		Stats:          c.stats,
	}
}

// QueueLength is the number of events waiting for the next flush.
func (c *Client) QueueLength() int {
	return c.queue.Length()
}
