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

// Command e3db is the CLI front end for this module's client library:
// write/read/list records, share/revoke access, and put/get file-backed
// records against a registered e3db identity.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	apiURL     string
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "e3db",
	Short: "e3db CLI - end-to-end encrypted record storage",
	Long: `e3db is a command-line client for a tozny/e3db-compatible
end-to-end encrypted record store.

This tool supports:
- Writing and reading encrypted records
- Listing/searching records by writer and type
- Sharing and revoking record-type access with other clients
- Uploading and downloading large file-backed records`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("e3db: build logger: %w", err)
		}
		logger = l
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to client profile JSON (default: $E3DB_CONFIG_FILE or ~/.tozny/e3db.json)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "override the profile's api_url")

	// Note: commands are registered in their respective files
	// - write.go: writeCmd
	// - read.go: readCmd
	// - list.go: listCmd
	// - share.go: shareCmd
	// - revoke.go: revokeCmd
	// - filecmd.go: filePutCmd, fileGetCmd
	// - login.go: loginCmd
}
