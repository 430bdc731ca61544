package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/garden/internal/backup"
	"github.com/lazypower/garden/internal/store"
)

const testPass = "apple river stone cloud maple tiger"

type harness struct {
	t   *testing.T
	dir string
	db  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(EnvPassphrase, "")
	dir := t.TempDir()
	return &harness{t: t, dir: dir, db: filepath.Join(dir, "garden.db")}
}

// run executes one command against the harness database and returns stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	base := []string{
		"--config", filepath.Join(h.dir, "missing.yaml"),
		"--db", h.db,
		"--log-level", "error",
	}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "garden %s", strings.Join(args, " "))
	return out
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("version")
	assert.Contains(t, out, "garden dev")
}

func TestMigrateReportsVersion(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("migrate")
	assert.Contains(t, out, "schema version 13")
}

func TestEntityCommands(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.mustRun("entity", "add", "Iris", "Calder", "-d", "neighbor"), "added person #1: Iris Calder")
	assert.Contains(t, h.mustRun("entity", "add", "Iris", "Calder", "-d", "neighbor"), "already exists (#1)")
	assert.Contains(t, h.mustRun("entity", "add", "Run Club", "--kind", "group"), "added group #2")

	_, err := h.run("entity", "add", "Rover", "--kind", "robot")
	assert.ErrorIs(t, err, store.ErrInvalidKind)

	out := h.mustRun("entity", "list")
	assert.Contains(t, out, "Iris Calder")
	assert.Contains(t, out, "Run Club")

	out = h.mustRun("entity", "list", "--kind", "group")
	assert.NotContains(t, out, "Iris")

	h.mustRun("entity", "edit", "1", "--name", "Iris C.")
	h.mustRun("member", "add", "2", "1")
	assert.Contains(t, h.mustRun("member", "list", "2"), "Iris C.")

	out = h.mustRun("entity", "show", "1")
	assert.Contains(t, out, "## Iris C. (#1, person)")
	assert.Contains(t, out, "details: neighbor")
	assert.Contains(t, out, "group: Run Club (#2)")
	assert.Contains(t, out, "Coffee")

	h.mustRun("entity", "hide", "1")
	assert.NotContains(t, h.mustRun("entity", "list"), "Iris")
	assert.Contains(t, h.mustRun("entity", "list", "--all"), "Iris C. (hidden)")

	h.mustRun("entity", "delete", "1")
	_, err = h.run("entity", "show", "1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = h.run("entity", "show", "abc")
	assert.Error(t, err)
}

func TestMergeCommand(t *testing.T) {
	h := newHarness(t)
	h.mustRun("entity", "add", "Iris")
	h.mustRun("entity", "add", "Iris Calder")
	h.mustRun("interact", "1", "Coffee")

	assert.Contains(t, h.mustRun("merge", "1", "2"), "merged #1 into #2")
	out := h.mustRun("history", "2")
	assert.Contains(t, out, "Coffee")
}

func TestInteractAndHistory(t *testing.T) {
	h := newHarness(t)
	h.mustRun("entity", "add", "Iris")

	out := h.mustRun("interact", "1", "Coffee", "-n", "oat latte")
	assert.Contains(t, out, "recorded Coffee with Iris (1 row), score now 3.00")

	h.mustRun("interact", "1", "Phone", "Call", "--at", "2024-01-02 10:30")

	out = h.mustRun("history", "1")
	assert.Contains(t, out, "Coffee - oat latte")
	assert.Contains(t, out, "2024-01-02 10:30")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Coffee", "newest first")

	_, err := h.run("interact", "1", "Coffee", "--at", "yesterday")
	assert.Error(t, err)
	_, err = h.run("interact", "9", "Coffee")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTagCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun("entity", "add", "Iris")
	assert.Contains(t, h.mustRun("tag", "add", "1", "Book", "Club"), "tagged #1 with Book Club")

	out := h.mustRun("tag", "list")
	assert.Contains(t, out, "Family")
	assert.Contains(t, out, "Book Club")

	h.mustRun("tag", "repair")
	assert.Contains(t, h.mustRun("entity", "show", "1"), "tags: Book Club")
}

func TestTypesAndConfigApply(t *testing.T) {
	h := newHarness(t)
	h.mustRun("entity", "add", "Iris")
	assert.Contains(t, h.mustRun("types"), "General Contact")
	assert.Contains(t, h.mustRun("types", "eligible", "1"), "Coffee")

	path := filepath.Join(h.dir, "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`interactionTypes:
  - name: Walk
    icon: walk-outline
    entityTypes: [person]
    score: 2
tags:
  - name: Family
    icon: home-outline
`), 0o644))

	assert.Contains(t, h.mustRun("config", "apply", path), "applied 1 interaction types and 1 tags")
	assert.Contains(t, h.mustRun("types"), "Walk")

	_, err := h.run("config", "apply")
	assert.Error(t, err, "no file and none configured")
}

func TestSettingsAndScores(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.mustRun("settings"), "decay: linear, factor 0")

	out := h.mustRun("settings", "set", "--model", "exponential", "--factor", "0.1")
	assert.Contains(t, out, "decay: exponential, factor 0.1")

	_, err := h.run("settings", "set", "--model", "cubic")
	assert.Error(t, err)
	_, err = h.run("settings", "set", "--factor=-1")
	assert.ErrorIs(t, err, store.ErrInvalidSettings)

	h.mustRun("entity", "add", "Iris")
	assert.Contains(t, h.mustRun("scores", "recompute"), "rescored 1 entities")
}

func TestReminderCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun("entity", "add", "Iris")

	h.mustRun("reminder", "set", "1", "1990-05-05", "--days", "2", "--at", "08:15")
	out := h.mustRun("reminder", "list")
	assert.Contains(t, out, "1990-05-05 08:15  2d ahead  on")
	assert.Contains(t, h.mustRun("reminder", "sync"), "1 reminder scheduled")

	_, err := h.run("reminder", "set", "1", "05/05")
	assert.ErrorIs(t, err, store.ErrInvalidBirthday)

	h.mustRun("reminder", "rm", "1")
	assert.Contains(t, h.mustRun("reminder", "list"), "No birthday reminders.")
}

func TestExportImportPlain(t *testing.T) {
	h := newHarness(t)
	h.mustRun("entity", "add", "Iris")
	h.mustRun("interact", "1", "Coffee")

	file := filepath.Join(h.dir, "backup.json")
	assert.Contains(t, h.mustRun("export", "--plain", "-o", file), "wrote "+file)

	other := newHarness(t)
	out := other.mustRun("import", file)
	assert.Contains(t, out, "imported 1 entities, 1 interactions")
	assert.Contains(t, other.mustRun("entity", "list"), "Iris")
}

func TestExportImportEncrypted(t *testing.T) {
	h := newHarness(t)
	h.mustRun("entity", "add", "Iris")

	file := filepath.Join(h.dir, "backup.garden")
	h.mustRun("export", "-o", file, "--passphrase", "Apple  river stone cloud maple TIGER")

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, backup.IsEnvelope(raw))

	other := newHarness(t)
	_, err = other.run("import", file, "--passphrase", "river apple stone cloud maple tiger")
	assert.ErrorIs(t, err, backup.ErrIntegrity)
	_, err = other.run("import", file)
	assert.ErrorIs(t, err, backup.ErrInvalidPassphrase)

	t.Setenv(EnvPassphrase, testPass)
	assert.Contains(t, other.mustRun("import", file), "imported 1 entities")
}

func TestExportGeneratesPassphrase(t *testing.T) {
	h := newHarness(t)
	h.mustRun("entity", "add", "Iris")
	file := filepath.Join(h.dir, "backup.garden")

	out := h.mustRun("export", "-o", file)
	first := strings.SplitN(out, "\n", 2)[0]
	require.True(t, strings.HasPrefix(first, "passphrase: "))
	pass := strings.TrimPrefix(first, "passphrase: ")
	assert.NoError(t, backup.ValidatePassphrase(pass))

	other := newHarness(t)
	other.mustRun("import", file, "--passphrase", pass)
}

func TestPassphraseCommand(t *testing.T) {
	h := newHarness(t)
	out := strings.TrimSpace(h.mustRun("passphrase"))
	assert.NoError(t, backup.ValidatePassphrase(out))
}
