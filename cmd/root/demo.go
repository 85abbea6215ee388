package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/docker/eventreporter/pkg/analytics"
	"github.com/docker/eventreporter/pkg/cli"
	"github.com/docker/eventreporter/pkg/demo"
	"github.com/docker/eventreporter/pkg/journal"
	"github.com/docker/eventreporter/pkg/paths"
	"github.com/docker/eventreporter/pkg/version"
)

var errQuit = errors.New("quit")

type demoFlags struct {
	endpoint     string
	apiKeyHeader string
	apiKey       string
	caFile       string

	trackingID  string
	appName     string
	appID       string
	installerID string
	userID      string

	paramsFile  string
	journalFile string
	noJournal   bool

	fps               int
	framerateInterval int
	capPolicy         string
	sendEmptyBatches  bool
	overlayEvery      time.Duration
}

func newDemoCmd() *cobra.Command {
	var flags demoFlags

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the interactive analytics demo",
		Long: `Run the interactive analytics demo. Type keys and press Enter:

  1-3    report a screen view (and switch screens)
  4-6    report an exception (6 is fatal)
  7-9    report a keyboard event
  q a z  report a page view
  space  run a small benchmark and report its timing

Commands: "?" prints the overlay, "flush" sends the queue now, "reset" starts a new session.
Without --endpoint batches are only logged.`,
		Example: `  eventreporter demo
  eventreporter demo --endpoint http://127.0.0.1:8080/collect`,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE:    flags.runDemoCommand,
	}

	addEndpointFlags(cmd, &flags.endpoint)
	cmd.Flags().StringVar(&flags.apiKeyHeader, "api-key-header", "x-api-key", "Header carrying the API key")
	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "API key sent with every batch")
	cmd.Flags().StringVar(&flags.caFile, "ca-file", "", "PEM bundle to trust instead of the system roots")
	cmd.Flags().StringVar(&flags.trackingID, "tracking-id", "UA-000000-1", "Tracking ID reported with every batch")
	cmd.Flags().StringVar(&flags.appName, "app-name", "eventreporter SimpleExample", "Application name")
	cmd.Flags().StringVar(&flags.appID, "app-id", "mySimpleAppID", "Application ID")
	cmd.Flags().StringVar(&flags.installerID, "installer-id", "mySimpleAppInstallerID", "Application installer ID")
	cmd.Flags().StringVar(&flags.userID, "user-id", "", "Free-form user ID attached to every batch")
	cmd.Flags().StringVar(&flags.paramsFile, "params", paths.ParamsFile(), "Params file, watched for changes")
	cmd.Flags().StringVar(&flags.journalFile, "journal", paths.JournalFile(), "Transmission journal")
	cmd.Flags().BoolVar(&flags.noJournal, "no-journal", false, "Do not record transmissions")
	cmd.Flags().IntVar(&flags.fps, "fps", 60, "Frames per second of the update loop")
	cmd.Flags().IntVar(&flags.framerateInterval, "framerate-interval", 600, "Frames between two framerate reports")
	cmd.Flags().StringVar(&flags.capPolicy, "cap-policy", analytics.CapDropRecords.String(), "What to drop once the session request cap is reached (drop-records, drop-batches)")
	cmd.Flags().BoolVar(&flags.sendEmptyBatches, "send-empty-batches", false, "Send a request even when nothing was recorded")
	cmd.Flags().DurationVar(&flags.overlayEvery, "overlay-every", 0, "Print the overlay periodically (0 to disable)")

	return cmd
}

func parseCapPolicy(s string) (analytics.CapPolicy, error) {
	for _, p := range []analytics.CapPolicy{analytics.CapDropRecords, analytics.CapDropBatches} {
		if s == p.String() {
			return p, nil
		}
	}
	return 0, &analytics.ConfigError{Field: "cap policy", Reason: fmt.Sprintf("%q is not one of drop-records, drop-batches", s)}
}

func (f *demoFlags) newTransport() (analytics.Transport, error) {
	if f.endpoint == "" {
		return analytics.NewLogTransport(slog.Default()), nil
	}

	opts := []analytics.TransportOption{
		analytics.WithTransportLogger(slog.Default()),
		analytics.WithCAFile(f.caFile),
	}
	if f.apiKey != "" {
		opts = append(opts, analytics.WithAPIKey(f.apiKeyHeader, f.apiKey))
	}
	return analytics.NewHTTPTransport(f.endpoint, opts...)
}

func (f *demoFlags) runDemoCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if f.fps < 1 {
		return fmt.Errorf("--fps must be at least 1, got %d", f.fps)
	}
	capPolicy, err := parseCapPolicy(f.capPolicy)
	if err != nil {
		return err
	}

	store, err := loadParams(f.paramsFile)
	if err != nil {
		return err
	}

	transport, err := f.newTransport()
	if err != nil {
		return err
	}

	settings := analytics.DefaultSettings()
	settings.CapPolicy = capPolicy
	settings.SendEmptyBatches = f.sendEmptyBatches

	client := analytics.New(slog.Default(), transport,
		analytics.WithSettings(settings),
		analytics.WithSettingsSource(store),
		analytics.WithRandomizeUUID(store.Bool(analytics.ParamRandomizeUUID)),
	)
	store.OnParamChanged(client.OnParamChanged)

	if err := client.Configure(f.trackingID, f.appName, version.Version, f.appID, f.installerID); err != nil {
		return err
	}
	if err := client.SetFramerateReporting(store.Bool(analytics.ParamSendFramerate), f.framerateInterval); err != nil {
		return err
	}
	client.SetUserID(f.userID)
	client.SetEnabled(analytics.EnabledFromEnv())

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return cli.RuntimeError{Err: fmt.Errorf("failed to start line editor: %w", err)}
	}
	closeEditor := sync.OnceValue(rl.Close)
	defer closeEditor()

	printer := cli.NewPrinter(rl.Stdout())

	var j *journal.Journal
	if !f.noJournal {
		j, err = journal.Open(ctx, f.journalFile)
		if err != nil {
			slog.Warn("Transmission journal unavailable", "path", f.journalFile, "error", err)
			printer.PrintError(fmt.Errorf("journal disabled: %w", err))
		} else {
			defer j.Close()
		}
	}

	client.OnResponse(func(resp analytics.Response) {
		if !resp.OK {
			slog.Warn("AnalyticsResponse", "http_status", resp.HTTPStatus, "status", resp.StatusText)
		}
		if j != nil {
			if err := j.Record(context.WithoutCancel(ctx), journal.EntryFromResponse(resp)); err != nil {
				slog.Error("Failed to record transmission", "batch_id", resp.BatchID, "error", err)
			}
		}
		printer.PrintResponse(resp)
	})

	printer.PrintWelcomeMessage(f.appName)
	if !client.Enabled() {
		printer.Println("Analytics is disabled (ANALYTICS_ENABLED=false); events will be dropped.")
	}

	l := &demoLoop{
		app:          demo.New(client, store),
		client:       client,
		printer:      printer,
		fps:          f.fps,
		overlayEvery: f.overlayEvery,
	}

	g, gctx := errgroup.WithContext(ctx)
	lines := make(chan string)

	g.Go(func() error {
		return readLines(gctx, rl, closeEditor, lines)
	})
	g.Go(func() error {
		return store.Watch(gctx, f.paramsFile)
	})
	g.Go(func() error {
		return l.run(gctx, lines)
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	client.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		printer.PrintError(err)
		return cli.RuntimeError{Err: err}
	}
	return nil
}

// readLines forwards every line typed until EOF or ^C on an empty line,
// then returns errQuit so the other goroutines stop.
func readLines(ctx context.Context, rl *readline.Instance, closeEditor func() error, lines chan<- string) error {
	defer close(lines)

	// Readline only returns once the editor is closed
	stop := context.AfterFunc(ctx, func() {
		_ = closeEditor()
	})
	defer stop()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return errQuit
			}
			continue
		} else if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errQuit
		}

		select {
		case lines <- line:
		case <-ctx.Done():
			return nil
		}
	}
}

// demoLoop owns the demo app: frames and typed lines are handled on the
// same goroutine. Manual flushes run beside it so a slow endpoint does not
// stall frames.
type demoLoop struct {
	app          *demo.App
	client       *analytics.Client
	printer      *cli.Printer
	fps          int
	overlayEvery time.Duration

	flushes sync.WaitGroup
}

func (l *demoLoop) run(ctx context.Context, lines <-chan string) error {
	defer l.flushes.Wait()

	ticker := time.NewTicker(time.Second / time.Duration(l.fps))
	defer ticker.Stop()

	last := time.Now()
	var sinceOverlay time.Duration

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			l.handleLine(ctx, line)
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			l.app.Update(ctx, dt)

			if l.overlayEvery > 0 {
				sinceOverlay += dt
				if sinceOverlay >= l.overlayEvery {
					sinceOverlay = 0
					l.printer.PrintOverlay(l.app.Overlay())
				}
			}
		}
	}
}

func (l *demoLoop) handleLine(ctx context.Context, line string) {
	switch strings.TrimSpace(line) {
	case "?", "status":
		l.printer.PrintOverlay(l.app.Overlay())
		return
	case "flush":
		l.flushes.Go(func() {
			if _, ok := l.client.Flush(context.WithoutCancel(ctx)); !ok {
				l.printer.Println("Nothing to send.")
			}
		})
		return
	case "reset":
		l.client.ResetSession()
		l.printer.Printf("New session %s\n", l.client.Session().UUID)
		return
	}

	for _, key := range line {
		if !l.app.Key(ctx, key) {
			l.printer.Printf("Key %q is not bound\n", key)
		}
	}
}
