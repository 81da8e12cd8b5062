package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hoorsana/Observer-2/internal/loader"
)

func TestScheduleCommand_Text(t *testing.T) {
	f := newBenchFixture(t)

	out, _, err := executeCommand(t, "schedule", f.plan)
	require.NoError(t, err)

	want := []string{
		"duration 2 phases 1 events 8",
		"0.000 set_signal adder.val1 value=40",
		"0.000 sample adder.sum",
		"0.500 set_signal adder.val2 value=60",
		"0.500 sample adder.sum",
		"1.000 sample adder.sum",
		"1.500 sample adder.sum",
		"2.000 phase 0 end",
		"2.000 sample adder.sum",
	}
	assert.Equal(t, want, strings.Split(strings.TrimSpace(out), "\n"))
}

func TestScheduleCommand_JSON(t *testing.T) {
	f := newBenchFixture(t)

	out, _, err := executeCommand(t, "--format", "json", "schedule", f.plan)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []any{float64(0)}, dataField(t, resp, "phase_starts"))

	events, ok := dataField(t, resp, "events").([]any)
	require.True(t, ok)
	require.Len(t, events, 8)
	first := events[0].(map[string]any)
	assert.Equal(t, "command", first["kind"])
	assert.Equal(t, "set_signal adder.val1 value=40", first["description"])
	boundary := events[6].(map[string]any)
	assert.Equal(t, "boundary", boundary["kind"])
	assert.Equal(t, float64(2), boundary["time"])
}

func TestScheduleCommand_OffsetOutsidePhase(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, filepath.Join(dir, "plan.yaml"), `phases:
  - duration: 1
    commands:
      - time: 1
        command: set_signal
        target: adder
        data: {signal: val1, value: 1}
`)

	out, _, err := executeCommand(t, "schedule", p)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_SCHEDULE]: OFFSET_OUT_OF_PHASE: phases[0].commands[0]")
}

func TestScheduleCommand_PhaseDir(t *testing.T) {
	t.Setenv(loader.PhaseDirEnv, "")
	dir := t.TempDir()
	shared := filepath.Join(dir, "shared")
	writeFile(t, filepath.Join(shared, "settle.yaml"), `description: settle
duration: 0.5
`)
	p := writeFile(t, filepath.Join(dir, "plans", "plan.yaml"), `phases:
  - settle.yaml
  - duration: 1
`)

	_, _, err := executeCommand(t, "schedule", p)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, _, err := executeCommand(t, "--phase-dir", shared, "schedule", p)
	require.NoError(t, err)
	assert.Contains(t, out, "duration 1.5 phases 2 events 2")
	assert.Contains(t, out, "0.500 phase 0 end")
	assert.Contains(t, out, "1.500 phase 1 end")
}
