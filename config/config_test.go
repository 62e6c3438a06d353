package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleProfile() *Profile {
	return &Profile{
		Version:    CurrentProfileVersion,
		ClientID:   "client-1",
		APIKeyID:   "key-1",
		APISecret:  "secret-1",
		PublicKey:  "pub",
		PrivateKey: "priv",
		APIURL:     "https://api.e3db.com",
	}
}

func TestSaveThenLoadFromFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "e3db.json")

	want := sampleProfile()
	require.NoError(t, SaveToFile(want, path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadFromFileRejectsMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "e3db.json")
	require.NoError(t, SaveToFile(&Profile{ClientID: "only-this"}, path))

	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestValidateReportsAllMissingFields(t *testing.T) {
	err := Validate(&Profile{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "client_id")
	require.Contains(t, err.Error(), "api_url")
}

func TestSaveToFileFillsDefaultVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "e3db.json")

	profile := sampleProfile()
	profile.Version = 0
	require.NoError(t, SaveToFile(profile, path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, CurrentProfileVersion, got.Version)
}
