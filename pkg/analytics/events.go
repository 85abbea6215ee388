package analytics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordScreenView records that the screen named name was shown.
func (c *Client) RecordScreenView(ctx context.Context, name string) {
	c.Track(ctx, &ScreenViewEvent{Name: name})
}

// RecordPageView records a visit to a path-like location with a title.
func (c *Client) RecordPageView(ctx context.Context, path, title string) {
	c.Track(ctx, &PageViewEvent{Path: path, Title: title})
}

// RecordEvent records a custom category/action event.
func (c *Client) RecordEvent(ctx context.Context, category, action string, value int, label string) {
	c.Track(ctx, &CustomEvent{Category: category, Action: action, Value: value, Label: label})
}

// RecordException records an error description; fatal marks it as a crash.
func (c *Client) RecordException(ctx context.Context, description string, fatal bool) {
	c.Track(ctx, &ExceptionEvent{Description: description, Fatal: fatal})
}

// RecordTiming records how long something took.
func (c *Client) RecordTiming(ctx context.Context, category, variable string, d time.Duration, label string) {
	c.Track(ctx, &TimingEvent{Category: category, Variable: variable, Duration: d, Label: label})
}

// Track queues a structured event for the next flush. It is a no-op when
// the client is unconfigured, disabled, closed, when the event's category
// is turned off, or when the session cap is used up under CapDropRecords.
func (c *Client) Track(ctx context.Context, event StructuredEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enqueueLocked(event) {
		return
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("analytics.record", trace.WithAttributes(
			attribute.String("analytics.event", string(event.GetEventType())),
		))
	}
}

func (c *Client) enqueueLocked(event StructuredEvent) bool {
	eventType := event.GetEventType()

	if reason := c.dropReasonLocked(eventType); reason != "" {
		c.stats.Dropped++
		c.logger.Debug("Event dropped", "event", eventType, "reason", reason)
		return false
	}

	payload, err := c.createEventLocked(event)
	if err != nil {
		c.stats.Dropped++
		c.logger.Error("Failed to build event payload", "event", eventType, "error", err)
		return false
	}

	if !c.queue.Push(payload) {
		c.stats.Dropped++
		c.logger.Warn("Event buffer full, dropping event", "event", eventType, "reason", "buffer_full", "capacity", c.queueCapacity)
		return false
	}

	c.stats.Recorded++
	return true
}

func (c *Client) dropReasonLocked(eventType EventType) string {
	switch {
	case c.closed:
		return "closed"
	case !c.configured:
		return "not_configured"
	case !c.enabled:
		return "disabled"
	case !c.settings.allows(eventType):
		return "category_disabled"
	case c.settings.CapPolicy == CapDropRecords && c.session.RequestsSent >= c.settings.MaxRequestsPerSession:
		return "session_cap"
	default:
		return ""
	}
}

// createEventLocked flattens a structured event and stamps it with session
// context. The timestamp is taken now, not at flush time.
func (c *Client) createEventLocked(event StructuredEvent) (EventPayload, error) {
	properties, err := structToMap(event.ToStructuredProperties())
	if err != nil {
		return EventPayload{}, err
	}
	if properties == nil {
		properties = map[string]any{}
	}

	osName, osLanguage := getSystemInfo()
	properties["session_uuid"] = c.session.UUID
	properties["app_version"] = c.session.AppVersion
	properties["os"] = osName
	properties["os_language"] = osLanguage

	return EventPayload{
		Event:          event.GetEventType(),
		EventTimestamp: c.now().UnixMilli(),
		Source:         c.session.AppName,
		Properties:     properties,
	}, nil
}
