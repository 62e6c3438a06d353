// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoaderOptions configures the profile loader.
type LoaderOptions struct {
	// Path, if set, is used verbatim instead of the search list below.
	Path string
	// SkipEnvOverride disables E3DB_API_URL / ${VAR} substitution.
	SkipEnvOverride bool
}

// DefaultLoaderOptions returns the default search-path behavior.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{}
}

// Load resolves and reads the client profile, searching in priority
// order: an explicit opts.Path, then $E3DB_CONFIG_FILE, then
// ~/.tozny/e3db.json.
func Load(opts ...LoaderOptions) (*Profile, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	path, err := resolvePath(options.Path)
	if err != nil {
		return nil, err
	}

	profile, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	if !options.SkipEnvOverride {
		ApplyOverrides(profile)
	}

	return profile, nil
}

// resolvePath applies the search order documented on Load.
func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if fromEnv := os.Getenv("E3DB_CONFIG_FILE"); fromEnv != "" {
		return fromEnv, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve default profile path: %w", err)
	}
	return filepath.Join(home, ".tozny", "e3db.json"), nil
}

// MustLoad loads the profile or panics on error, for CLI entry points
// that have no sensible way to continue without one.
func MustLoad(opts ...LoaderOptions) *Profile {
	profile, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("config: failed to load client profile: %v", err))
	}
	return profile
}

// LoadForPath loads the profile from an explicit path, skipping the
// search order entirely.
func LoadForPath(path string) (*Profile, error) {
	return Load(LoaderOptions{Path: path})
}
