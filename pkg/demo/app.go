// Package demo drives an analytics client the way an interactive app
// would: keys map to records, and a periodic timer emits synthetic traffic
// for every enabled category.
package demo

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/docker/eventreporter/pkg/analytics"
)

// Reporter is the part of *analytics.Client the demo uses.
type Reporter interface {
	RecordScreenView(ctx context.Context, name string)
	RecordPageView(ctx context.Context, path, title string)
	RecordEvent(ctx context.Context, category, action string, value int, label string)
	RecordException(ctx context.Context, description string, fatal bool)
	RecordTiming(ctx context.Context, category, variable string, d time.Duration, label string)
	Tick(elapsed time.Duration)
	Status() analytics.Status
}

const (
	benchmarkIterations = 9000000
	randomnessFraction  = 0.2
)

type pageKey struct {
	path  string
	title string
}

var pageKeys = map[rune]pageKey{
	'q': {"keyboardKeys/row1/q", "my page for Q key"},
	'a': {"keyboardKeys/row2/a", "my page for A key"},
	'z': {"keyboardKeys/row3/z", "my page for Z key"},
}

var exceptionKeys = map[rune]struct {
	description string
	fatal       bool
}{
	'4': {"Exception1", false},
	'5': {"Exception2", false},
	'6': {"Exception3", true},
}

// App holds the demo state. It is not safe for concurrent use; a single
// loop goroutine owns it.
type App struct {
	reporter  Reporter
	params    analytics.SettingsSource
	rng       *rand.Rand
	benchmark func() time.Duration

	screen     int
	elapsed    time.Duration
	randomness time.Duration
}

type Opt func(*App)

// WithRand fixes the random source used for synthetic events.
func WithRand(r *rand.Rand) Opt {
	return func(a *App) {
		a.rng = r
	}
}

// WithBenchmark replaces the sin benchmark, mostly for tests.
func WithBenchmark(fn func() time.Duration) Opt {
	return func(a *App) {
		a.benchmark = fn
	}
}

// New creates an app on screen 1. params supplies the send flags and the
// synthetic event interval.
func New(reporter Reporter, params analytics.SettingsSource, opts ...Opt) *App {
	a := &App{
		reporter:  reporter,
		params:    params,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		benchmark: SimpleBenchmark,
		screen:    1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Screen() int {
	return a.screen
}

// KeyPressed switches screens on 1-3.
func (a *App) KeyPressed(key rune) {
	if key >= '1' && key <= '3' {
		a.screen = int(key - '0')
	}
}

// KeyReleased records whatever key is bound to. It reports false for
// unbound keys.
func (a *App) KeyReleased(ctx context.Context, key rune) bool {
	switch {
	case key >= '1' && key <= '3':
		a.reporter.RecordScreenView(ctx, fmt.Sprintf("screen%d", a.screen))
	case key >= '7' && key <= '9':
		a.reporter.RecordEvent(ctx, "KeyboardEvent", "pressed"+string(key), int(key), "someLabel")
	case key == ' ':
		a.reporter.RecordTiming(ctx, "SimpleBenchMark", fmt.Sprintf("%dxsinf()", benchmarkIterations), a.benchmark(), "")
	default:
		if exc, ok := exceptionKeys[key]; ok {
			a.reporter.RecordException(ctx, exc.description, exc.fatal)
			return true
		}
		if page, ok := pageKeys[key]; ok {
			a.reporter.RecordPageView(ctx, page.path, page.title)
			return true
		}
		return false
	}
	return true
}

// Key is a full press and release.
func (a *App) Key(ctx context.Context, key rune) bool {
	a.KeyPressed(key)
	return a.KeyReleased(ctx, key)
}

// Update advances the app by one frame of length dt. Once the synthetic
// interval plus its random offset has passed, one random event per enabled
// category is recorded.
func (a *App) Update(ctx context.Context, dt time.Duration) {
	a.reporter.Tick(dt)
	a.elapsed += dt

	interval := a.interval()
	if a.elapsed <= interval+a.randomness {
		return
	}

	a.emitSynthetic(ctx)

	a.elapsed = 0
	bound := float64(interval) * randomnessFraction
	a.randomness = time.Duration((a.rng.Float64()*2 - 1) * bound)
}

func (a *App) interval() time.Duration {
	return time.Duration(a.params.Float(analytics.ParamSendInterval) * float64(time.Second))
}

func (a *App) emitSynthetic(ctx context.Context) {
	if a.params.Bool(analytics.ParamSendScreenViews) {
		a.reporter.RecordScreenView(ctx, fmt.Sprintf("Screen %d", a.rng.IntN(10)))
	}

	if a.params.Bool(analytics.ParamSendEvents) {
		a.reporter.RecordEvent(ctx, "KeyboardEvent",
			fmt.Sprintf("Event %d", a.rng.IntN(20)),
			a.rng.IntN(500),
			fmt.Sprintf("Label %d", a.rng.IntN(60)))
	}

	if a.params.Bool(analytics.ParamSendPage) {
		// fake an http-like page hierarchy
		path := fmt.Sprintf("levels/level%d/page%d", a.rng.IntN(22), a.rng.IntN(10))
		a.reporter.RecordPageView(ctx, path, fmt.Sprintf("My Page %d", a.rng.IntN(50)))
	}

	if a.params.Bool(analytics.ParamSendExceptions) {
		a.reporter.RecordException(ctx, fmt.Sprintf("Error %d", a.rng.IntN(100)), false)
	}
}

// Overlay renders the debug text shown under the prompt.
func (a *App) Overlay() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%.1f/%.1f\n", a.elapsed.Seconds(), (a.interval() + a.randomness).Seconds())
	fmt.Fprintf(&b, "Screen: %d\n", a.screen)
	b.WriteString("press 1-3 to report different screenViews\n")
	b.WriteString("press 4-6 to report Exceptions\n")
	b.WriteString("press 7-9 to report Events\n")
	b.WriteString("press q,a,z to report PageViews\n")
	b.WriteString("press SPACE to report a simple benchmark\n")

	st := a.reporter.Status()
	fmt.Fprintf(&b, "\nanalytics: enabled=%t queued=%d next flush %.1f/%.1fs requests %d/%d\n",
		st.Enabled, st.Queued, st.Elapsed.Seconds(), st.FlushThreshold.Seconds(), st.RequestsSent, st.MaxRequests)
	fmt.Fprintf(&b, "session %s  recorded=%d dropped=%d sent=%d failed=%d discarded=%d\n",
		st.SessionUUID, st.Stats.Recorded, st.Stats.Dropped, st.Stats.BatchesSent, st.Stats.BatchesFailed, st.Stats.CapDiscarded)
	if st.LastResponse != nil {
		fmt.Fprintf(&b, "last response: ok=%t %s (%d events)\n", st.LastResponse.OK, st.LastResponse.StatusText, st.LastResponse.Events)
	}

	return b.String()
}

var benchmarkSink float32

// SimpleBenchmark measures how long 9000000 single-precision sines take.
func SimpleBenchmark() time.Duration {
	start := time.Now()
	var acc float32
	for i := range benchmarkIterations {
		acc += float32(math.Sin(float64(float32(i) * 0.1)))
	}
	benchmarkSink = acc
	return time.Since(start)
}
