package analytics

import (
	"time"
)

// EVENTS BASE

// StructuredEvent is a type-safe analytics event with structured properties
type StructuredEvent interface {
	GetEventType() EventType
	ToStructuredProperties() any
}

// EventType is the wire name of an event category
type EventType string

const (
	EventTypeScreenView EventType = "screenview"
	EventTypePageView   EventType = "pageview"
	EventTypeEvent      EventType = "event"
	EventTypeException  EventType = "exception"
	EventTypeTiming     EventType = "timing"
)

// EventPayload is a recorded event as it goes on the wire. It is built once,
// at record time, and never modified afterwards.
type EventPayload struct {
	Event          EventType `json:"event"`
	EventTimestamp int64     `json:"event_timestamp"`
	Source         string    `json:"source"`

	Properties map[string]any `json:"properties,omitempty"`
}

// SCREEN VIEWS

type ScreenViewEvent struct {
	Name string
}

type ScreenViewPayload struct {
	ScreenName string `json:"screen_name"`
}

func (e *ScreenViewEvent) GetEventType() EventType {
	return EventTypeScreenView
}

func (e *ScreenViewEvent) ToStructuredProperties() any {
	return ScreenViewPayload{ScreenName: e.Name}
}

// PAGE VIEWS

type PageViewEvent struct {
	Path  string
	Title string
}

type PageViewPayload struct {
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

func (e *PageViewEvent) GetEventType() EventType {
	return EventTypePageView
}

func (e *PageViewEvent) ToStructuredProperties() any {
	return PageViewPayload{Path: e.Path, Title: e.Title}
}

// CUSTOM EVENTS

type CustomEvent struct {
	Category string
	Action   string
	Value    int
	Label    string
}

type CustomEventPayload struct {
	Category string `json:"category"`
	Action   string `json:"action"`
	Label    string `json:"label,omitempty"`
	Value    int    `json:"value"`
}

func (e *CustomEvent) GetEventType() EventType {
	return EventTypeEvent
}

func (e *CustomEvent) ToStructuredProperties() any {
	return CustomEventPayload{
		Category: e.Category,
		Action:   e.Action,
		Label:    e.Label,
		Value:    e.Value,
	}
}

// EXCEPTIONS

type ExceptionEvent struct {
	Description string
	Fatal       bool
}

type ExceptionPayload struct {
	Description string `json:"description"`
	IsFatal     bool   `json:"is_fatal"`
}

func (e *ExceptionEvent) GetEventType() EventType {
	return EventTypeException
}

func (e *ExceptionEvent) ToStructuredProperties() any {
	return ExceptionPayload{Description: e.Description, IsFatal: e.Fatal}
}

// TIMING

type TimingEvent struct {
	Category string
	Variable string
	Duration time.Duration
	Label    string
}

type TimingPayload struct {
	Category   string  `json:"category"`
	Variable   string  `json:"variable"`
	DurationMs float64 `json:"duration_ms"`
	Label      string  `json:"label,omitempty"`
}

func (e *TimingEvent) GetEventType() EventType {
	return EventTypeTiming
}

func (e *TimingEvent) ToStructuredProperties() any {
	return TimingPayload{
		Category:   e.Category,
		Variable:   e.Variable,
		DurationMs: float64(e.Duration) / float64(time.Millisecond),
		Label:      e.Label,
	}
}

// TRANSMISSION

// Request is one batch: everything queued since the previous flush.
type Request struct {
	BatchID     string         `json:"batch_id"`
	TrackingID  string         `json:"tracking_id"`
	ClientID    string         `json:"client_id"`
	UserID      string         `json:"user_id,omitempty"`
	AppName     string         `json:"app_name"`
	AppVersion  string         `json:"app_version"`
	AppID       string         `json:"app_id"`
	InstallerID string         `json:"installer_id"`
	SentAt      int64          `json:"sent_at"`
	Records     []EventPayload `json:"records"`
}

// Response is what the observer receives after each transmission attempt.
type Response struct {
	OK          bool
	HTTPStatus  int
	StatusText  string
	BatchID     string
	SessionUUID string
	Events      int
	SentAt      time.Time
}

// Stats are cumulative counters for the lifetime of a client.
type Stats struct {
	Recorded      int
	Dropped       int
	BatchesSent   int
	BatchesFailed int
	// CapDiscarded counts events thrown away at flush time because the
	// session had already used up its request budget.
	CapDiscarded int
}

// Status is a point-in-time view of the client for debug overlays.
type Status struct {
	Configured     bool
	Enabled        bool
	Closed         bool
	Queued         int
	Elapsed        time.Duration
	FlushThreshold time.Duration
	RequestsSent   int
	MaxRequests    int
	SessionUUID    string
	LastResponse   *Response
	Stats          Stats
}
