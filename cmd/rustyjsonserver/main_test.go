package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProcessConfigMissingFileIsNotAnError(t *testing.T) {
	pc, err := loadProcessConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, processConfig{}, pc)
}

func TestLoadProcessConfigParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rustyjsonserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_dir: /var/lib/rjs\nlog_level: debug\n"), 0o644))

	pc, err := loadProcessConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/rjs", pc.DBDir)
	assert.Equal(t, "debug", pc.LogLevel)
}

func TestLoadProcessConfigRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rustyjsonserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_dir: [unterminated\n"), 0o644))

	_, err := loadProcessConfig(path)
	assert.Error(t, err)
}
