package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add stock alerts", "add_stock_alerts"},
		{"Add-Stock-Alerts", "add_stock_alerts"},
		{"add__journal__index", "add_journal_index"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"_leading", "leading"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	first, err := CreateMigration(dir, "create inventory events", "journal table")
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)
	assert.Equal(t, "000001_create_inventory_events.up.sql", filepath.Base(first.UpPath))
	assert.Equal(t, "000001_create_inventory_events.down.sql", filepath.Base(first.DownPath))

	content, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "-- Description: journal table"))

	second, err := CreateMigration(dir, "Add Alert Index", "")
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)

	_, err = CreateMigration(dir, "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000002_b.up.sql", "000002_b.down.sql",
		"000001_a.up.sql", "000001_a.down.sql",
		"README.md", "notaversion_x.up.sql",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000003_dir.up.sql"), 0o755))

	got, err := ListMigrations(os.DirFS(dir), ".")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(1), got[0].Version)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, uint(2), got[1].Version)

	missing, err := ListMigrations(os.DirFS(filepath.Join(dir, "nope")), ".")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := EmbeddedMigrations()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "create_inventory_events", got[0].Name)
	assert.Equal(t, "create_stock_alerts", got[1].Name)

	src, err := EmbeddedSource()
	require.NoError(t, err)
	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)
	require.NoError(t, src.Close())
}
