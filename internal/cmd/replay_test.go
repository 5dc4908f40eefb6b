package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/replay"
)

func writeScript(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o600))
	return path
}

const buildReviewScript = `
steps:
  - {op: add, node: review, title: Review, to: {x: 600, y: 0}}
  - {op: connect, node: build, target: review}
  - {op: status, node: plan, status: completed}
  - {op: remove, node: nowhere}
`

func TestReplay(t *testing.T) {
	withHome(t)
	p := createLaunch(t)
	script := writeScript(t, buildReviewScript)

	out := mustRun(t, "--user", "alice", "replay", p.ID, script)
	assert.Contains(t, out, "3 of 4 steps applied as owner")
	assert.Contains(t, out, "connect build -> review")
	assert.Contains(t, out, "no change")
	assert.NotContains(t, out, "Saved")

	// Without --save the project is untouched.
	shown := decodeJSON[collab.Project](t, mustRun(t, "--user", "alice", "-o", "json", "project", "show", p.ID))
	assert.Len(t, shown.Tasks, 2)
}

func TestReplaySave(t *testing.T) {
	withHome(t)
	p := createLaunch(t)
	script := writeScript(t, buildReviewScript)

	report := decodeJSON[replay.Report](t, mustRun(t, "--user", "alice", "-o", "json", "replay", p.ID, script, "--save"))
	assert.True(t, report.Saved)
	assert.Equal(t, 3, report.Tasks)
	assert.Equal(t, 2, report.Edges)
	assert.Equal(t, 2, report.Connectors)

	shown := decodeJSON[collab.Project](t, mustRun(t, "--user", "alice", "-o", "json", "project", "show", p.ID))
	require.Len(t, shown.Tasks, 3)
	assert.Equal(t, "Review", shown.Tasks[2].Title)
}

func TestReplayRequiresEditRightsToSave(t *testing.T) {
	withHome(t)
	p := createLaunch(t)
	mustRun(t, "--user", "alice", "project", "visibility", p.ID)
	script := writeScript(t, buildReviewScript)

	// Anyone may replay a public project; nothing applies without edit rights.
	out := mustRun(t, "replay", p.ID, script)
	assert.Contains(t, out, "0 of 4 steps applied as guest")

	_, err := run(t, "--user", "bob", "replay", p.ID, script, "--save")
	require.Error(t, err)
}

func TestReplayBadScript(t *testing.T) {
	withHome(t)
	p := createLaunch(t)

	_, err := run(t, "--user", "alice", "replay", p.ID, writeScript(t, "steps: [{op: fly}]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown op")
}
