package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadUsesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "e3db.json")
	require.NoError(t, SaveToFile(sampleProfile(), path))

	got, err := Load(LoaderOptions{Path: path})
	require.NoError(t, err)
	require.Equal(t, "client-1", got.ClientID)
}

func TestLoadAppliesAPIURLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "e3db.json")
	require.NoError(t, SaveToFile(sampleProfile(), path))

	t.Setenv("E3DB_API_URL", "https://override.example")
	got, err := Load(LoaderOptions{Path: path})
	require.NoError(t, err)
	require.Equal(t, "https://override.example", got.APIURL)
}

func TestLoadForPathSkipsSearchOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "e3db.json")
	require.NoError(t, SaveToFile(sampleProfile(), path))

	got, err := LoadForPath(path)
	require.NoError(t, err)
	require.Equal(t, "client-1", got.ClientID)
}

func TestLoadErrorsWhenFileMissing(t *testing.T) {
	_, err := Load(LoaderOptions{Path: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
}
