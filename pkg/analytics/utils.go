package analytics

import (
	"cmp"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// getSystemInfo collects system information for events
func getSystemInfo() (osName, osLanguage string) {
	return runtime.GOOS, cmp.Or(os.Getenv("LANG"), "en-US")
}

// EnabledFromEnv reports whether analytics should be on for this process.
// It is always false under `go test` so tests never reach a real collector.
func EnabledFromEnv() bool {
	if flag.Lookup("test.v") != nil {
		return false
	}
	return enabledFromEnv()
}

// enabledFromEnv checks only the environment variable, without the test
// detection bypass.
func enabledFromEnv() bool {
	if env := os.Getenv("ANALYTICS_ENABLED"); env != "" {
		// Only disable if explicitly set to "false"
		return env != "false"
	}
	return true
}

func newUUID() string {
	return uuid.New().String()
}

// getClientUUID gets or creates the persistent per-install UUID stored at
// path. When it cannot be persisted a fresh UUID is still returned, so the
// session works but the UUID will not survive a restart.
func getClientUUID(path string) string {
	if data, err := os.ReadFile(path); err == nil {
		existing := strings.TrimSpace(string(data))
		if _, err := uuid.Parse(existing); err == nil {
			return existing
		}
	}

	fresh := newUUID()
	_ = saveClientUUID(path, fresh)
	return fresh
}

func saveClientUUID(path, id string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(id), 0o600)
}

// structToMap converts a struct to map[string]any using JSON marshaling
// This automatically handles all fields and respects JSON tags (including omitempty)
func structToMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal struct: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to map: %w", err)
	}

	return result, nil
}
