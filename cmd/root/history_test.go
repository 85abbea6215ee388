package root

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/eventreporter/pkg/journal"
)

func init() {
	color.NoColor = true
}

func TestHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	stdout, _, err := execute(t, "", "history", "--journal", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No transmissions recorded yet.")

	j, err := journal.Open(t.Context(), path)
	require.NoError(t, err)
	for i := range 3 {
		require.NoError(t, j.Record(t.Context(), journal.Entry{
			BatchID:     "batch-" + string(rune('a'+i)) + "-0000",
			SessionUUID: "session",
			Events:      i,
			OK:          i != 1,
			StatusText:  "204 No Content",
			SentAt:      time.Now().Add(-time.Duration(3-i) * time.Hour),
		}))
	}
	require.NoError(t, j.Close())

	stdout, _, err = execute(t, "", "history", "--journal", path, "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "batch-c-")
	assert.Contains(t, stdout, "batch-b-")
	assert.NotContains(t, stdout, "batch-a-")
	assert.Contains(t, stdout, "3 batches (1 failed), 3 events, 1 sessions")
}
