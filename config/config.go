// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
)

// LoadFromFile reads a Profile from a JSON file.
func LoadFromFile(path string) (*Profile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read profile: %w", err)
	}

	profile := &Profile{}
	if err := json.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("config: parse profile: %w", err)
	}

	if err := Validate(profile); err != nil {
		return nil, err
	}

	return profile, nil
}

// SaveToFile writes a Profile to a JSON file with owner-only
// permissions, since it carries a private key.
func SaveToFile(profile *Profile, path string) error {
	if profile.Version == 0 {
		profile.Version = CurrentProfileVersion
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal profile: %w", err)
	}

	if err := ioutil.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write profile: %w", err)
	}

	return nil
}

// Validate checks that a Profile carries the fields every component
// of the core needs before it can build a CryptoSuite-backed client:
// identity, key material, and a server to talk to.
func Validate(profile *Profile) error {
	var missing []string
	if profile.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if profile.PublicKey == "" {
		missing = append(missing, "public_key")
	}
	if profile.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if profile.APIURL == "" {
		missing = append(missing, "api_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: profile missing required fields: %v", missing)
	}
	return nil
}
