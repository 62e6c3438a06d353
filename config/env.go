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
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"

	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/crypto/nist"
	"github.com/tozny/e3db-go/crypto/sodium"
)

// envVarPattern matches ${VAR} or ${VAR:default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment variable values
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}

// ApplyOverrides substitutes ${VAR} references in a Profile's APIURL
// and overlays the E3DB_API_URL environment variable, highest
// priority first, matching the config/env.go + config/loader.go split
// this package is grounded on.
func ApplyOverrides(profile *Profile) {
	if profile == nil {
		return
	}
	profile.APIURL = SubstituteEnvVars(profile.APIURL)
	if override := os.Getenv("E3DB_API_URL"); override != "" {
		profile.APIURL = override
	}
}

// LoadDotEnv loads a local .env file into the process environment if
// one exists at path, for CLI/dev convenience. A missing file is not
// an error; a malformed one is.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// SuiteFromEnv selects the CryptoSuite per spec.md §6: CRYPTO_SUITE=NIST
// selects the NIST suite, anything else (including unset) selects
// sodium.
func SuiteFromEnv() sagecrypto.Suite {
	if strings.EqualFold(os.Getenv("CRYPTO_SUITE"), "NIST") {
		return nist.New()
	}
	return sodium.New()
}
