package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DAYBOOK_CONFIG", "")
	t.Setenv("DAYBOOK_BACKUP_DIR", filepath.Join(dir, "backups"))

	src := filepath.Join(dir, "src.db")
	file := filepath.Join(dir, "export.json")

	run(t, "--db", src, "export", "--out", file, "--passphrase", "")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")))

	out := run(t, "--db", filepath.Join(dir, "dst.db"), "import", file, "--passphrase", "")
	assert.Contains(t, out, "preferences")

	out = run(t, "--db", src, "reschedule")
	assert.Contains(t, out, "Registered 0 reminders")
}

func TestImportMissingFile(t *testing.T) {
	t.Setenv("DAYBOOK_CONFIG", "")
	rootCmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "x.db"), "import", "/nonexistent/backup.json"})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	assert.Error(t, rootCmd.Execute())
}
