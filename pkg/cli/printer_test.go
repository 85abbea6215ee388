package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/docker/eventreporter/pkg/analytics"
	"github.com/docker/eventreporter/pkg/journal"
)

func init() {
	color.NoColor = true
}

func TestFormatResponse_OK(t *testing.T) {
	formatted := FormatResponse(analytics.Response{OK: true, BatchID: "0123456789abcdef", Events: 5, StatusText: "204 No Content"})

	assert.Equal(t, `✓ batch 01234567: 5 events, 204 No Content`, formatted)
}

func TestFormatResponse_Failed(t *testing.T) {
	formatted := FormatResponse(analytics.Response{BatchID: "abc", Events: 0})

	assert.Equal(t, `✗ batch abc: 0 events, no response`, formatted)
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "never", FormatAgo(now, time.Time{}))
	assert.Equal(t, "just now", FormatAgo(now, now))
	assert.Equal(t, "3 minutes ago", FormatAgo(now, now.Add(-3*time.Minute)))
}

func TestParamsJSON_KeepsOrder(t *testing.T) {
	out, err := ParamsJSON([]string{"sendPage", "sendInterval", "randomizeUUID"}, map[string]any{
		"randomizeUUID": false,
		"sendInterval":  30.0,
		"sendPage":      true,
	})
	assert.NilError(t, err)

	assert.Equal(t, `{
  "sendPage": true,
  "sendInterval": 30,
  "randomizeUUID": false
}`, string(out))
}

func TestPrintParams(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintParams([]string{"a", "long_name"}, map[string]any{"a": 1, "long_name": true})

	assert.Equal(t, "a          1\nlong_name  true\n", buf.String())
}

func TestPrintOverlay(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintOverlay("line one\nline two\n")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Assert(t, is.Len(lines, 4))
	assert.Equal(t, strings.Repeat("─", defaultWidth), lines[0])
	assert.Equal(t, "line two", lines[2])
}

func TestPrintHistory(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer

	NewPrinter(&buf).PrintHistory(nil, journal.Summary{}, now)
	assert.Equal(t, "No transmissions recorded yet.\n", buf.String())

	buf.Reset()
	NewPrinter(&buf).PrintHistory([]journal.Entry{
		{BatchID: "batch-0001-xyz", Events: 5, OK: true, StatusText: "204 No Content", SentAt: now.Add(-2 * time.Hour)},
	}, journal.Summary{Batches: 1, Events: 5, Sessions: 1, Last: now.Add(-2 * time.Hour)}, now)

	out := buf.String()
	assert.Assert(t, is.Contains(out, "2 hours ago"))
	assert.Assert(t, is.Contains(out, "batch-00"))
	assert.Assert(t, is.Contains(out, "1 batches (0 failed), 5 events, 1 sessions, last 2 hours ago"))
}

func TestConfirm(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	assert.Assert(t, p.Confirm(t.Context(), strings.NewReader("yes\n"), "Reset?"))
	assert.Assert(t, p.Confirm(t.Context(), strings.NewReader("Y"), "Reset?"))
	assert.Assert(t, !p.Confirm(t.Context(), strings.NewReader("nope\n"), "Reset?"))
	assert.Assert(t, !p.Confirm(t.Context(), strings.NewReader(""), "Reset?"))
	assert.Assert(t, is.Contains(buf.String(), "Reset? (y/n): "))
}

func TestRuntimeError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(RuntimeError{Err: inner})

	assert.Assert(t, errors.Is(err, inner))
	assert.Equal(t, "boom", err.Error())
}
