package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/exitcode"
)

const launchYAML = `title: Launch
goal: Ship v1
targetDate: "2026-12-01"
tasks:
  - id: plan
    title: Plan
    status: in_progress
    position: {x: 0, y: 0}
    next_task_ids: [build]
  - id: build
    title: Build
    status: not_started
    position: {x: 300, y: 0}
    next_task_ids: []
`

func createLaunch(t *testing.T) *collab.Project {
	t.Helper()
	path := filepath.Join(t.TempDir(), "launch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(launchYAML), 0o600))
	p := decodeJSON[collab.Project](t, mustRun(t, "--user", "alice", "-o", "json", "project", "create", "--from", path))
	require.NotEmpty(t, p.ID)
	return &p
}

func TestProjectCreate(t *testing.T) {
	withHome(t)

	out := mustRun(t, "--user", "alice", "project", "create", "--title", "Launch", "--goal", "Ship v1")
	assert.Contains(t, out, "Created project Launch")

	p := createLaunch(t)
	assert.Equal(t, "Launch", p.Title)
	assert.Equal(t, "alice", p.OwnerID)
	assert.Equal(t, "2026-12-01", p.TargetDate)
	require.Len(t, p.Tasks, 2)
	assert.Equal(t, "build", string(p.Tasks[0].NextTaskIDs[0]))
}

func TestProjectCreateValidation(t *testing.T) {
	withHome(t)

	_, err := run(t, "--user", "alice", "project", "create")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProjectInvalid, errors.CodeOf(err))

	_, err = run(t, "--user", "alice", "project", "create", "--title", "X", "--target-date", "next week")
	require.Error(t, err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(err))

	_, err = run(t, "--user", "alice", "project", "create", "--from", "missing.yaml")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.CodeOf(err))
}

func TestProjectShowAndList(t *testing.T) {
	withHome(t)
	p := createLaunch(t)

	out := mustRun(t, "--user", "alice", "project", "show", p.ID)
	assert.Contains(t, out, "Launch")
	assert.Contains(t, out, "Goal:       Ship v1")
	assert.Contains(t, out, "In Progress")
	assert.Contains(t, out, "private")

	list := decodeJSON[[]collab.Project](t, mustRun(t, "--user", "alice", "-o", "json", "project", "list"))
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	// Others see nothing until the project is public.
	_, err := run(t, "project", "show", p.ID)
	require.Error(t, err)
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(err))

	out = mustRun(t, "--user", "alice", "project", "visibility", p.ID)
	assert.Contains(t, out, "now public")

	out = mustRun(t, "project", "show", p.ID)
	assert.Contains(t, out, "public")

	_, err = run(t, "--user", "bob", "project", "visibility", p.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProjectForbidden, errors.CodeOf(err))
}

func TestProjectShowMissing(t *testing.T) {
	withHome(t)

	_, err := run(t, "--user", "alice", "project", "show", "nope")
	require.Error(t, err)
	assert.Equal(t, exitcode.NotFound, exitcode.DetermineExitCode(err))
}

func TestProjectUpdate(t *testing.T) {
	withHome(t)
	p := createLaunch(t)

	_, err := run(t, "--user", "alice", "project", "update", p.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")

	tasks := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(tasks, []byte("- {id: only, title: Only, status: completed}\n"), 0o600))

	updated := decodeJSON[collab.Project](t, mustRun(t, "--user", "alice", "-o", "json",
		"project", "update", p.ID, "--title", "Relaunch", "--target-date", "", "--tasks-from", tasks))
	assert.Equal(t, "Relaunch", updated.Title)
	assert.Equal(t, "Ship v1", updated.Goal)
	assert.Empty(t, updated.TargetDate)
	require.Len(t, updated.Tasks, 1)
	assert.Equal(t, "only", string(updated.Tasks[0].ID))
}

func TestProjectExportRoundTrip(t *testing.T) {
	withHome(t)
	p := createLaunch(t)

	out := mustRun(t, "--user", "alice", "project", "export", p.ID)
	assert.Contains(t, out, "title: Launch")

	file := filepath.Join(t.TempDir(), "export.yaml")
	mustRun(t, "--user", "alice", "project", "export", p.ID, "--file", file)

	// An export is both a project to create and a task list to update with.
	copied := decodeJSON[collab.Project](t, mustRun(t, "--user", "bob", "-o", "json", "project", "create", "--from", file))
	assert.Equal(t, "bob", copied.OwnerID)
	assert.Len(t, copied.Tasks, 2)

	mustRun(t, "--user", "bob", "project", "update", copied.ID, "--tasks-from", file)
}

func TestProjectDelete(t *testing.T) {
	withHome(t)
	p := createLaunch(t)

	_, err := run(t, "--user", "alice", "project", "delete", p.ID)
	require.Error(t, err, "deleting without --yes off a terminal must refuse")

	_, err = run(t, "--user", "bob", "project", "delete", p.ID, "--yes")
	require.Error(t, err)

	out := mustRun(t, "--user", "alice", "project", "delete", p.ID, "--yes")
	assert.Contains(t, out, "Deleted")

	_, err = run(t, "--user", "alice", "project", "show", p.ID)
	assert.Equal(t, exitcode.NotFound, exitcode.DetermineExitCode(err))
}
