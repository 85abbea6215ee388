package root

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/eventreporter/pkg/analytics"
	"github.com/docker/eventreporter/pkg/paramconfig"
)

func TestParams_SetAndShow(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.yaml")

	stdout, _, err := execute(t, "", "params", "set", "sendInterval", "60", "--file", file)
	require.NoError(t, err)
	assert.Equal(t, "sendInterval = 60\n", stdout)

	_, _, err = execute(t, "", "params", "set", "sendEvents", "false", "--file", file)
	require.NoError(t, err)

	stdout, _, err = execute(t, "", "params", "show", "--json", "--file", file)
	require.NoError(t, err)

	var values map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &values))
	assert.InDelta(t, 60.0, values[analytics.ParamSendInterval], 0)
	assert.Equal(t, false, values[analytics.ParamSendEvents])
	assert.Len(t, values, len(analytics.Params()))

	stdout, _, err = execute(t, "", "params", "show", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, stdout, "maxRequestsPerSession")
}

func TestParams_SetRejectsOutOfRange(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.yaml")

	_, stderr, err := execute(t, "", "params", "set", "sendInterval", "5", "--file", file)

	var paramErr *paramconfig.ParamError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "sendInterval", paramErr.Name)
	assert.Contains(t, stderr, `Invalid parameter "sendInterval"`)
	assert.NoFileExists(t, file)
}

func TestParams_Reset(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.yaml")

	_, _, err := execute(t, "", "params", "set", "maxRequestsPerSession", "9", "--file", file)
	require.NoError(t, err)

	stdout, _, err := execute(t, "n\n", "params", "reset", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Aborted.")

	store, err := loadParams(file)
	require.NoError(t, err)
	assert.Equal(t, 9, store.Int(analytics.ParamMaxRequestsPerSession))

	stdout, _, err = execute(t, "", "params", "reset", "--yes", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Parameters reset.")

	store, err = loadParams(file)
	require.NoError(t, err)
	assert.Equal(t, 100, store.Int(analytics.ParamMaxRequestsPerSession))
}
