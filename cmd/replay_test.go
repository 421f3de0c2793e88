package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jefflunt/tiny-outcome/internal/outcome"
)

func runReplayCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newReplayCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	// nil args make cobra fall back to os.Args
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestReplayFromStdin(t *testing.T) {
	out, err := runReplayCmd(t, "1, 0, 0\n", "--warmup", "100")
	require.NoError(t, err)

	assert.Contains(t, out, "final  L10 ???????100 c 0.33 3/100::3/500")
	assert.Contains(t, out, "stats  min=0.3333 max=0.3333 avg=0.3333")
	assert.Contains(t, out, "value  0x4")
	assert.Contains(t, out, "winner false at 0.66")
	assert.Contains(t, out, "lately false over last 3")
}

func TestReplayEveryAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outcomes.txt")
	require.NoError(t, os.WriteFile(path, []byte("1111\n0000\n"), 0o600))

	out, err := runReplayCmd(t, "", path, "--precision", "4", "--warmup", "full", "--every", "4", "--window", "2", "--threshold", "0.5")
	require.NoError(t, err)

	assert.Contains(t, out, "     4 L10 ??????1111 W 1.00 4/4::4/4")
	assert.Contains(t, out, "     8 L10 ??????0000 W 0.00 4/4::4/4")
	assert.Contains(t, out, "lately false over last 2")
}

func TestReplayRejectsBadInput(t *testing.T) {
	_, err := runReplayCmd(t, "1 0 x")
	assert.ErrorIs(t, err, outcome.ErrInvalidSample)
	assert.Contains(t, err.Error(), "offset 5")

	_, err = runReplayCmd(t, "1", "--precision", "0")
	assert.ErrorIs(t, err, outcome.ErrInvalidConfiguration)

	_, err = runReplayCmd(t, "1", "--warmup", "often")
	assert.ErrorIs(t, err, outcome.ErrInvalidConfiguration)
}

func TestReplayEmptyInput(t *testing.T) {
	out, err := runReplayCmd(t, "")
	require.NoError(t, err)
	assert.Contains(t, out, "final  L10 ?????????? c 0.00 0/166::0/500")
	assert.NotContains(t, out, "lately")
}

func TestRootHasCommands(t *testing.T) {
	root := newRootCmd()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "replay")
}
