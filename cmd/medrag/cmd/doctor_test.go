package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/medrag/internal/preflight"
)

// TS01: Diagnostics

func TestDoctor_HealthyProject(t *testing.T) {
	// Given a project with one ingested report
	dir := setupProject(t)
	path := writeReport(t, dir, "cbc.txt", cbcReport)
	_, err := runCLI(t, dir, "ingest", "--user", "u1", path)
	require.NoError(t, err)

	// When running diagnostics
	out, err := runCLI(t, dir, "doctor", "--verbose")

	// Then every required check passes
	require.NoError(t, err)
	assert.Contains(t, out, "medrag doctor")
	assert.Contains(t, out, "embedder: static")
	assert.Contains(t, out, "vector_index: 2 points, 64 dimensions")
	assert.Contains(t, out, "keyword_index: 2 documents")
	assert.Contains(t, out, "Status: READY")
}

func TestDoctor_JSON(t *testing.T) {
	dir := setupProject(t)

	out, err := runCLI(t, dir, "doctor", "--format", "json")
	require.NoError(t, err)

	var got struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, []string{"ready", "ready_with_warnings"}, got.Status)

	names := make([]string, 0, len(got.Checks))
	for _, c := range got.Checks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		"write_permissions", "disk_space", "file_descriptors",
		"config", "embedder", "vector_index", "keyword_index",
	}, names)
}

func TestDoctor_InvalidConfigFails(t *testing.T) {
	// Given a project whose config does not validate
	dir := setupProject(t)
	bad := projectYAML + "search:\n  vector_weight: 5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".medrag.yaml"), []byte(bad), 0o644))

	// When running diagnostics
	out, err := runCLI(t, dir, "doctor")

	// Then the config check fails the command
	require.Error(t, err)
	assert.Contains(t, out, "config:")
	assert.Contains(t, out, "Status: FAILED")
}

func TestDoctor_InvalidFormat(t *testing.T) {
	dir := setupProject(t)
	_, err := runCLI(t, dir, "doctor", "--format", "xml")
	require.Error(t, err)
}

func TestDoctorOutput_StatusNames(t *testing.T) {
	data, err := json.Marshal(DoctorOutput{
		Status: "ready",
		Checks: []preflight.CheckResult{{Name: "config", Status: preflight.StatusPass}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ready","checks":[{"name":"config","status":"pass","message":"","required":false}]}`, string(data))
}
