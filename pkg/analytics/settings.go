package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/docker/eventreporter/pkg/paramconfig"
)

// CapPolicy decides what happens once a session has used up its requests.
type CapPolicy int

const (
	// CapDropRecords drops new records once the cap is reached, in addition
	// to discarding anything still queued at the next flush.
	CapDropRecords CapPolicy = iota
	// CapDropBatches keeps accepting records and discards the whole batch
	// when a flush finds the cap exhausted.
	CapDropBatches
)

func (p CapPolicy) String() string {
	switch p {
	case CapDropRecords:
		return "drop-records"
	case CapDropBatches:
		return "drop-batches"
	default:
		return fmt.Sprintf("CapPolicy(%d)", int(p))
	}
}

const (
	MinSendInterval = 10 * time.Second
	MaxSendInterval = 300 * time.Second

	MinRequestsPerSession = 3
	MaxRequestsPerSession = 500

	MinSendRate = 0.01
	MaxSendRate = 2.0

	// jitterFraction bounds the random adjustment applied to each flush window.
	jitterFraction = 0.2
)

// Settings are the runtime knobs of a Client.
type Settings struct {
	SendScreenViews bool
	SendPageViews   bool
	SendExceptions  bool
	SendEvents      bool
	SendFramerate   bool

	SendInterval          time.Duration
	MaxRequestsPerSession int
	// SendRate scales SendInterval: the flush window is SendInterval*SendRate.
	SendRate float64

	CapPolicy        CapPolicy
	SendEmptyBatches bool
}

// DefaultSettings enables every category and flushes every 30 seconds.
func DefaultSettings() Settings {
	return Settings{
		SendScreenViews:       true,
		SendPageViews:         true,
		SendExceptions:        true,
		SendEvents:            true,
		SendFramerate:         true,
		SendInterval:          30 * time.Second,
		MaxRequestsPerSession: 100,
		SendRate:              1.0,
		CapPolicy:             CapDropRecords,
	}
}

// ConfigError reports misuse of the client at setup time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("analytics: invalid %s: %s", e.Field, e.Reason)
}

// Validate returns a *ConfigError for the first field outside its bounds.
func (s Settings) Validate() error {
	if s.SendInterval < MinSendInterval || s.SendInterval > MaxSendInterval {
		return &ConfigError{Field: "send interval", Reason: fmt.Sprintf("%s outside [%s, %s]", s.SendInterval, MinSendInterval, MaxSendInterval)}
	}
	if s.MaxRequestsPerSession < MinRequestsPerSession || s.MaxRequestsPerSession > MaxRequestsPerSession {
		return &ConfigError{Field: "max requests per session", Reason: fmt.Sprintf("%d outside [%d, %d]", s.MaxRequestsPerSession, MinRequestsPerSession, MaxRequestsPerSession)}
	}
	if math.IsNaN(s.SendRate) || s.SendRate < MinSendRate || s.SendRate > MaxSendRate {
		return &ConfigError{Field: "send rate", Reason: fmt.Sprintf("%v outside [%v, %v]", s.SendRate, MinSendRate, MaxSendRate)}
	}
	if s.CapPolicy != CapDropRecords && s.CapPolicy != CapDropBatches {
		return &ConfigError{Field: "cap policy", Reason: s.CapPolicy.String()}
	}
	return nil
}

// Clamp pulls every numeric field into its documented bounds.
func (s Settings) Clamp() Settings {
	s.SendInterval = min(max(s.SendInterval, MinSendInterval), MaxSendInterval)
	s.MaxRequestsPerSession = min(max(s.MaxRequestsPerSession, MinRequestsPerSession), MaxRequestsPerSession)
	if math.IsNaN(s.SendRate) {
		s.SendRate = 1.0
	}
	s.SendRate = min(max(s.SendRate, MinSendRate), MaxSendRate)
	if s.CapPolicy != CapDropBatches {
		s.CapPolicy = CapDropRecords
	}
	return s
}

// effectiveInterval is the flush window before jitter.
func (s Settings) effectiveInterval() time.Duration {
	return time.Duration(float64(s.SendInterval) * s.SendRate)
}

// allows reports whether events of type t pass their category flag. Timing
// measurements have no flag of their own.
func (s Settings) allows(t EventType) bool {
	switch t {
	case EventTypeScreenView:
		return s.SendScreenViews
	case EventTypePageView:
		return s.SendPageViews
	case EventTypeEvent:
		return s.SendEvents
	case EventTypeException:
		return s.SendExceptions
	default:
		return true
	}
}

// Param names shared with the params overlay.
const (
	ParamSendScreenViews       = "sendScreenViews"
	ParamSendPage              = "sendPage"
	ParamSendExceptions        = "sendExceptions"
	ParamSendEvents            = "sendEvents"
	ParamSendFramerate         = "sendFramerate"
	ParamSendInterval          = "sendInterval"
	ParamMaxRequestsPerSession = "maxRequestsPerSession"
	ParamSendToGoogleRate      = "sendToGoogleRate"
	ParamRandomizeUUID         = "randomizeUUID"
)

// Params describes the tunable parameters of a client, with DefaultSettings
// as defaults. sendInterval is in seconds.
func Params() []paramconfig.Param {
	d := DefaultSettings()
	return []paramconfig.Param{
		{Name: ParamSendScreenViews, Kind: paramconfig.Bool, Default: d.SendScreenViews},
		{Name: ParamSendPage, Kind: paramconfig.Bool, Default: d.SendPageViews},
		{Name: ParamSendExceptions, Kind: paramconfig.Bool, Default: d.SendExceptions},
		{Name: ParamSendEvents, Kind: paramconfig.Bool, Default: d.SendEvents},
		{Name: ParamSendFramerate, Kind: paramconfig.Bool, Default: d.SendFramerate},
		{Name: ParamSendInterval, Kind: paramconfig.Float, Min: MinSendInterval.Seconds(), Max: MaxSendInterval.Seconds(), Default: d.SendInterval.Seconds()},
		{Name: ParamMaxRequestsPerSession, Kind: paramconfig.Int, Min: MinRequestsPerSession, Max: MaxRequestsPerSession, Default: d.MaxRequestsPerSession},
		{Name: ParamSendToGoogleRate, Kind: paramconfig.Float, Min: MinSendRate, Max: MaxSendRate, Default: d.SendRate},
		{Name: ParamRandomizeUUID, Kind: paramconfig.Bool, Default: false},
	}
}

// SettingsSource is anything that can answer typed param lookups, such as
// a *paramconfig.Store.
type SettingsSource interface {
	Bool(name string) bool
	Int(name string) int
	Float(name string) float64
}

// SettingsFrom reads every param from src. Fields that are not params
// (CapPolicy, SendEmptyBatches) are copied from base.
func SettingsFrom(src SettingsSource, base Settings) Settings {
	base.SendScreenViews = src.Bool(ParamSendScreenViews)
	base.SendPageViews = src.Bool(ParamSendPage)
	base.SendExceptions = src.Bool(ParamSendExceptions)
	base.SendEvents = src.Bool(ParamSendEvents)
	base.SendFramerate = src.Bool(ParamSendFramerate)
	base.SendInterval = time.Duration(src.Float(ParamSendInterval) * float64(time.Second))
	base.MaxRequestsPerSession = src.Int(ParamMaxRequestsPerSession)
	base.SendRate = src.Float(ParamSendToGoogleRate)
	return base.Clamp()
}
