package main

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	// this file lives in cmd/migrate/, so repo root is ../..
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(thisFile), "..", ".."))
	return filepath.Join(repoRoot, "db", "migrations")
}

func TestMigrations_ParseAndContainSchema(t *testing.T) {
	migrations, err := goose.CollectMigrations(migrationsDir(t), 0, goose.MaxVersion)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	// the circulation schema must be the first migration
	assert.Equal(t, int64(1), migrations[0].Version)
}
