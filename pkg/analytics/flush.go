package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tick advances the flush clock by elapsed, typically the duration of the
// caller's last loop iteration. When the accumulated time exceeds the
// jittered flush window, the queue is drained into one batch which is sent
// on a background goroutine. Tick never blocks on the network.
func (c *Client) Tick(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.configured || c.closed {
		return
	}

	elapsed = max(elapsed, 0)
	c.elapsed += elapsed
	c.sampleFramerateLocked(elapsed)

	if c.elapsed <= c.settings.effectiveInterval()+c.jitter {
		return
	}

	c.elapsed = 0
	c.jitter = c.nextJitterLocked()

	req, ok := c.prepareBatchLocked()
	if !ok {
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.send(context.Background(), req)
	}()
}

// Flush sends everything queued right now and waits for the response. The
// flush clock is left untouched. It returns false when nothing was sent.
func (c *Client) Flush(ctx context.Context) (Response, bool) {
	c.mu.Lock()
	if !c.configured || c.closed {
		c.mu.Unlock()
		return Response{}, false
	}
	req, ok := c.prepareBatchLocked()
	if ok {
		c.inflight.Add(1)
	}
	c.mu.Unlock()

	if !ok {
		return Response{}, false
	}
	defer c.inflight.Done()
	return c.send(ctx, req), true
}

// Shutdown stops accepting records, sends what is still queued (subject to
// the session cap, and only once configured) and waits for in-flight sends until ctx is done or the
// shutdown timeout passes. The transport is always closed. Calling it again
// does nothing.
func (c *Client) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var (
		req *Request
		ok  bool
	)
	if c.configured {
		req, ok = c.prepareBatchLocked()
	}
	if ok {
		c.inflight.Add(1)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.shutdownTimeout)
	defer cancel()

	if ok {
		go func() {
			defer c.inflight.Done()
			c.send(ctx, req)
		}()
	}

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Debug("All sends completed")
	case <-ctx.Done():
		c.logger.Warn("Shutdown timed out, abandoning in-flight sends", "error", ctx.Err())
	}

	if err := c.transport.Close(); err != nil {
		c.logger.Debug("Failed to close transport", "error", err)
	}
}

// nextJitterLocked draws the jitter for the next window, clamped to ±20% of
// the effective interval whatever the jitter function returns.
func (c *Client) nextJitterLocked() time.Duration {
	interval := c.settings.effectiveInterval()
	bound := jitterBound(interval)
	return min(max(c.jitterFn(interval), -bound), bound)
}

// clampJitterLocked keeps the current window's jitter within bounds after
// the interval changed.
func (c *Client) clampJitterLocked() {
	bound := jitterBound(c.settings.effectiveInterval())
	c.jitter = min(max(c.jitter, -bound), bound)
}

func jitterBound(interval time.Duration) time.Duration {
	return time.Duration(float64(interval) * jitterFraction)
}

// prepareBatchLocked drains the queue and decides whether the batch goes
// out. The request counter is charged here, before the send starts.
func (c *Client) prepareBatchLocked() (*Request, bool) {
	records := c.queue.Drain()

	if len(records) == 0 && !c.settings.SendEmptyBatches {
		return nil, false
	}

	if c.session.RequestsSent >= c.settings.MaxRequestsPerSession {
		c.stats.CapDiscarded += len(records)
		c.logger.Debug("Session request cap reached, discarding batch",
			"events", len(records), "max_requests", c.settings.MaxRequestsPerSession)
		return nil, false
	}

	c.session.RequestsSent++

	if records == nil {
		records = []EventPayload{}
	}
	return &Request{
		BatchID:     uuid.NewString(),
		TrackingID:  c.session.TrackingID,
		ClientID:    c.session.UUID,
		UserID:      c.session.UserID,
		AppName:     c.session.AppName,
		AppVersion:  c.session.AppVersion,
		AppID:       c.session.AppID,
		InstallerID: c.session.InstallerID,
		SentAt:      c.now().UnixMilli(),
		Records:     records,
	}, true
}

func (c *Client) send(ctx context.Context, req *Request) Response {
	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "analytics.send", trace.WithAttributes(
		attribute.String("analytics.batch_id", req.BatchID),
		attribute.Int("analytics.events", len(req.Records)),
		attribute.String("analytics.session_uuid", req.ClientID),
	))
	defer span.End()

	resp := c.transport.Send(ctx, req)
	resp.BatchID = req.BatchID
	resp.SessionUUID = req.ClientID
	resp.Events = len(req.Records)
	resp.SentAt = time.UnixMilli(req.SentAt)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.HTTPStatus))
	if !resp.OK {
		span.SetStatus(codes.Error, resp.StatusText)
	}

	c.mu.Lock()
	if resp.OK {
		c.stats.BatchesSent++
	} else {
		c.stats.BatchesFailed++
	}
	last := resp
	c.last = &last
	observer := c.observer
	c.mu.Unlock()

	if resp.OK {
		c.logger.Debug("Batch sent", "batch_id", resp.BatchID, "events", resp.Events, "status", resp.HTTPStatus)
	} else {
		c.logger.Debug("Batch failed", "batch_id", resp.BatchID, "events", resp.Events, "status", resp.StatusText)
	}

	if observer != nil {
		observer(resp)
	}
	return resp
}

// sampleFramerateLocked accumulates frame times and records the mean every
// interval ticks.
func (c *Client) sampleFramerateLocked(frame time.Duration) {
	if !c.settings.SendFramerate || c.framerate.interval <= 0 {
		return
	}

	c.framerate.samples++
	c.framerate.total += frame
	if c.framerate.samples < c.framerate.interval {
		return
	}

	mean := c.framerate.total / time.Duration(c.framerate.samples)
	c.framerate.reset()

	var fps float64
	if mean > 0 {
		fps = float64(time.Second) / float64(mean)
	}
	c.enqueueLocked(&TimingEvent{
		Category: "Performance",
		Variable: "Framerate",
		Duration: mean,
		Label:    fmt.Sprintf("%.1f fps", fps),
	})
}
