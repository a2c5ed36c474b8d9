package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterYAML = `pragmas:
  - AbiHeader expire
contracts:
  - name: Counter
    state:
      - {name: count, type: uint64}
      - {name: seen, type: "mapping(address => bool)"}
    functions:
      - name: constructor
      - name: add
        visibility: external
        params:
          - {name: delta, type: uint32}
        returns:
          - {name: "", type: uint64}
`

func writeDescription(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "counter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(counterYAML), 0o644))
	return path
}

func TestCheckCommand(t *testing.T) {
	require.NoError(t, newApp().Run([]string{"tvmc", "check", writeDescription(t)}))
}

func TestBuildCommand(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, newApp().Run([]string{"tvmc", "build", "--out", out, writeDescription(t)}))

	data, err := os.ReadFile(filepath.Join(out, "Counter.code"))
	require.NoError(t, err)
	listing := string(data)
	assert.True(t, strings.HasPrefix(listing, "; contract Counter\n"))
	assert.Contains(t, listing, ".fragment add_decode, decode\n")
	assert.Contains(t, listing, ".fragment c7_to_c4, store_state\n")
}

func TestLayoutCommand(t *testing.T) {
	path := writeDescription(t)
	require.NoError(t, newApp().Run([]string{"tvmc", "layout", path}))
	require.NoError(t, newApp().Run([]string{"tvmc", "layout", "--function", "add", path}))
	assert.Error(t, newApp().Run([]string{"tvmc", "layout", "--function", "missing", path}))
}

func TestCommandErrors(t *testing.T) {
	assert.Error(t, newApp().Run([]string{"tvmc", "check"}))
	assert.Error(t, newApp().Run([]string{"tvmc", "check", filepath.Join(t.TempDir(), "none.yaml")}))
	assert.Error(t, newApp().Run([]string{"tvmc", "check", "--contract", "Other", writeDescription(t)}))
}

func TestConfigCommand(t *testing.T) {
	require.NoError(t, newApp().Run([]string{"tvmc", "config"}))
}
