package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const projectYAML = `embeddings:
  provider: static
  dimensions: 64
vector_store:
  backend: badger
  collection: test_reports
index:
  batch_size: 2
  embed_workers: 2
`

const cbcReport = `Test Report
Test Name: Complete Blood Count
Hemoglobin 13.5 g/dL
Platelets 250 x10^3/uL

Test Report
Test Name: Fasting Glucose
Glucose 110 mg/dL, above the reference range
`

// setupProject creates an isolated project using the static embedder and
// the badger backend, so every command runs offline and state survives
// between invocations.
func setupProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, key := range []string{
		"MEDRAG_EMBEDDINGS_PROVIDER", "MEDRAG_VECTOR_BACKEND", "MEDRAG_COLLECTION",
		"MEDRAG_DATA_DIR", "MEDRAG_TELEMETRY_DISABLED", "MEDRAG_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	logFile := filepath.Join(dir, "logs", "medrag.log")
	cfg := projectYAML + "logging:\n  file: " + logFile + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".medrag.yaml"), []byte(cfg), 0o644))
	return dir
}

// writeReport writes a report file under dir/reports and returns its path.
func writeReport(t *testing.T, dir, name, content string) string {
	t.Helper()

	reports := filepath.Join(dir, "reports")
	require.NoError(t, os.MkdirAll(reports, 0o755))
	path := filepath.Join(reports, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// runCLI executes the root command against the project in dir.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--config", dir}, args...))

	err := root.Execute()
	return buf.String(), err
}
