package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const fixtureDir = "../harness/testdata"

// executeCommand runs the root command with args and returns stdout, stderr
// and the command error.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// copyFixture copies a file from the harness testdata into dir.
func copyFixture(t *testing.T, src, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fixtureDir, src))
	require.NoError(t, err)
	dst := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))
	require.NoError(t, os.WriteFile(dst, data, 0644))
	return dst
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// benchFixture lays out the adder bench with a passing and an overrange plan.
type benchFixture struct {
	dir       string
	bench     string
	plan      string
	overrange string
	db        string
}

func newBenchFixture(t *testing.T) benchFixture {
	t.Helper()
	dir := t.TempDir()
	return benchFixture{
		dir:       dir,
		bench:     copyFixture(t, "benches/adder.yaml", dir, "bench.yaml"),
		plan:      copyFixture(t, "plans/adder.yaml", dir, "plan.yaml"),
		overrange: copyFixture(t, "plans/overrange.yaml", dir, "overrange.yaml"),
		db:        filepath.Join(dir, "observer.db"),
	}
}

// captureOutput points cmd's output at fresh buffers and returns stdout.
func captureOutput(cmd *cobra.Command) *bytes.Buffer {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	return out
}

// fixedRunID names every run the same.
type fixedRunID string

func (f fixedRunID) Generate() string { return string(f) }

// decodeResponse parses a JSON CLIResponse.
func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// dataField returns a top-level field of a JSON response's data.
func dataField(t *testing.T, resp CLIResponse, name string) any {
	t.Helper()
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data[name]
}
