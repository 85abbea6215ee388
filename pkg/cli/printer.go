package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/term"

	"github.com/docker/eventreporter/pkg/analytics"
	"github.com/docker/eventreporter/pkg/journal"
)

var (
	bold  = color.New(color.Bold).SprintfFunc()
	green = color.New(color.FgGreen).SprintfFunc()
	red   = color.New(color.FgRed).SprintfFunc()
	faint = color.New(color.Faint).SprintfFunc()
)

const defaultWidth = 80

// Printer is safe for concurrent use; response lines arrive from send
// goroutines.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{
		out: out,
	}
}

func (p *Printer) Println(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, a...)
}

func (p *Printer) Print(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, a...)
}

func (p *Printer) Printf(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, a...)
}

// PrintWelcomeMessage prints the welcome message
func (p *Printer) PrintWelcomeMessage(appName string) {
	p.Printf("\n------- Welcome to %s! -------\n(Ctrl+C or Ctrl+D to shut down and exit)\n\n", bold(appName))
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) {
	p.Printf("❌ %s\n", err)
}

// PrintResponse prints one line per transmission attempt.
func (p *Printer) PrintResponse(resp analytics.Response) {
	p.Println(FormatResponse(resp))
}

// PrintOverlay prints the debug overlay framed by rules as wide as the
// terminal.
func (p *Printer) PrintOverlay(text string) {
	rule := faint(strings.Repeat("─", p.width()))
	p.Printf("%s\n%s\n%s\n", rule, strings.TrimRight(text, "\n"), rule)
}

// PrintParams prints name = value lines in definition order.
func (p *Printer) PrintParams(names []string, values map[string]any) {
	width := 0
	for _, name := range names {
		width = max(width, len(name))
	}
	for _, name := range names {
		p.Printf("%-*s  %v\n", width, name, values[name])
	}
}

// PrintHistory prints journal entries relative to now.
func (p *Printer) PrintHistory(entries []journal.Entry, summary journal.Summary, now time.Time) {
	if len(entries) == 0 {
		p.Println("No transmissions recorded yet.")
		return
	}

	for _, e := range entries {
		status := green("ok")
		if !e.OK {
			status = red("failed")
		}
		p.Printf("%-20s %s  %-8s %3d events  %s\n",
			FormatAgo(now, e.SentAt), shortID(e.BatchID), status, e.Events, faint(e.StatusText))
	}

	p.Printf("\n%s batches (%d failed), %d events, %d sessions",
		bold("%d", summary.Batches), summary.Failed, summary.Events, summary.Sessions)
	if !summary.Last.IsZero() {
		p.Printf(", last %s", FormatAgo(now, summary.Last))
	}
	p.Println()
}

func (p *Printer) width() int {
	if f, ok := p.out.(*os.File); ok && IsTerminal(f) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return defaultWidth
}

// FormatResponse renders a response as a single colored line.
func FormatResponse(resp analytics.Response) string {
	if resp.OK {
		return fmt.Sprintf("%s batch %s: %d events, %s", green("✓"), shortID(resp.BatchID), resp.Events, resp.StatusText)
	}
	return fmt.Sprintf("%s batch %s: %d events, %s", red("✗"), shortID(resp.BatchID), resp.Events, cmpStatus(resp.StatusText))
}

// FormatAgo renders how long before now t happened, e.g. "3 minutes ago".
func FormatAgo(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < time.Second {
		return "just now"
	}
	return units.HumanDuration(d) + " ago"
}

// ParamsJSON encodes params as a JSON object that keeps definition order.
func ParamsJSON(names []string, values map[string]any) ([]byte, error) {
	om := orderedmap.New[string, any]()
	for _, name := range names {
		om.Set(name, values[name])
	}
	return json.MarshalIndent(om, "", "  ")
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Confirm asks a yes/no question and reads the answer from rd. Anything
// but y or yes is a no.
func (p *Printer) Confirm(ctx context.Context, rd io.Reader, question string) bool {
	p.Printf("%s (y/n): ", question)

	response, err := readLine(ctx, rd)
	if err != nil {
		p.Println()
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func readLine(ctx context.Context, rd io.Reader) (string, error) {
	lines := make(chan string, 1)
	errs := make(chan error, 1)

	go func() {
		line, err := bufio.NewReader(rd).ReadString('\n')
		if err != nil && line == "" {
			errs <- err
			return
		}
		lines <- line
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errs:
		return "", err
	case line := <-lines:
		return line, nil
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func cmpStatus(s string) string {
	if s == "" {
		return "no response"
	}
	return s
}
