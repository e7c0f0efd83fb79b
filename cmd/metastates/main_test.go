package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/metastates"
	"github.com/dmitrymomot/metastates/pkg/states"
)

const definitions = `
models:
  - owner: user
    states:
      - type: kyc
        statuses: [pending, completed, rejected]
        limit: 1
        metadata_schema:
          type: object
          properties:
            level: {type: integer}
      - type: onboarding
        statuses: [pending, completed]
`

type env struct {
	defs   string
	db     string
	tmpDir string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	defs := filepath.Join(dir, "metastates.yaml")
	require.NoError(t, os.WriteFile(defs, []byte(definitions), 0o600))
	return env{defs: defs, db: filepath.Join(dir, "states.db"), tmpDir: dir}
}

func run(t *testing.T, e env, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{
		"--storage", "sqlite",
		"--sqlite-path", e.db,
		"--definitions", e.defs,
		"--log-level", "error",
	}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "metastates version "+metastates.Version+"\n", out.String())
}

func TestCheck(t *testing.T) {
	e := newEnv(t)

	out, err := run(t, e, "check")
	require.NoError(t, err)
	assert.Equal(t, "user\n  kyc: pending, completed, rejected (limit 1) [schema]\n  onboarding: pending, completed\n", out)

	broken := filepath.Join(e.tmpDir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("models:\n  - owner: user\n    states:\n      - type: kyc\n"), 0o600))
	_, err = run(t, e, "check", broken)
	assert.ErrorIs(t, err, states.ErrInvalidConfiguration)
}

func TestAddUpdateHistory(t *testing.T) {
	e := newEnv(t)

	out, err := run(t, e, "add", "user", "42", "kyc", "--metadata", `{"level": 2}`)
	require.NoError(t, err)

	var added recordView
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, "pending", added.Status)
	assert.Equal(t, "42", added.OwnerID)
	assert.EqualValues(t, 2, added.Metadata["level"])

	_, err = run(t, e, "add", "user", "42", "kyc")
	assert.ErrorIs(t, err, states.ErrLimitExceeded)

	_, err = run(t, e, "add", "user", "42", "onboarding", "--status", "archived")
	assert.ErrorIs(t, err, states.ErrInvalidStatus)

	_, err = run(t, e, "add", "user", "42", "onboarding", "--metadata", "{")
	assert.Error(t, err)

	out, err = run(t, e, "update", added.ID, "completed", "--completed-at", "2024-05-01T10:00:00Z")
	require.NoError(t, err)

	var updated recordView
	require.NoError(t, json.Unmarshal([]byte(out), &updated))
	assert.Equal(t, "completed", updated.Status)
	assert.Equal(t, "pending", updated.PreviousStatus)
	require.NotNil(t, updated.CompletedAt)

	_, err = run(t, e, "add", "user", "42", "onboarding")
	require.NoError(t, err)

	out, err = run(t, e, "history", "user", "42")
	require.NoError(t, err)
	var all []recordView
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "onboarding", all[0].StateType)
	assert.Equal(t, "kyc", all[1].StateType)

	out, err = run(t, e, "history", "user", "42", "--type", "kyc")
	require.NoError(t, err)
	var kyc []recordView
	require.NoError(t, json.Unmarshal([]byte(out), &kyc))
	require.Len(t, kyc, 1)
	assert.Equal(t, added.ID, kyc[0].ID)
}

func TestUpdate_Errors(t *testing.T) {
	e := newEnv(t)

	_, err := run(t, e, "update", "missing", "completed")
	assert.ErrorIs(t, err, states.ErrRecordNotFound)

	_, err = run(t, e, "update", "missing", "completed", "--completed-at", "yesterday")
	assert.ErrorContains(t, err, "--completed-at")
}

func TestMetricsFile(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.tmpDir, "metrics.prom")

	_, err := run(t, e, "--metrics-file", path, "add", "user", "1", "onboarding")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "metastates_states_created_total")
}

func TestUnknownStorage(t *testing.T) {
	e := newEnv(t)

	_, err := run(t, e, "--storage", "etcd", "history", "user", "1")
	assert.ErrorIs(t, err, errUnknownStorage)
}

func TestPing(t *testing.T) {
	e := newEnv(t)

	out, err := run(t, e, "ping")
	require.NoError(t, err)
	assert.Equal(t, "sqlite: ok\n", out)

	out, err = run(t, e, "--storage", "memory", "ping")
	require.NoError(t, err)
	assert.Equal(t, "memory: ok\n", out)
}
