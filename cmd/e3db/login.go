package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tozny/e3db-go/config"
	"github.com/tozny/e3db-go/identity"
)

var (
	loginUsername string
	loginPassword string
	loginRealm    string
	loginApp      string
	loginOut      string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange realm credentials for a client profile and save it",
	Long: `Login performs the identity-broker PKCE exchange and writes the
recovered client profile to disk, so subsequent commands can load it
with --config or E3DB_CONFIG_FILE.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&loginUsername, "username", "", "realm username (required)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "realm password (required)")
	loginCmd.Flags().StringVar(&loginRealm, "realm", "", "identity realm name (required)")
	loginCmd.Flags().StringVar(&loginApp, "app", "account", "OIDC client/application name")
	loginCmd.Flags().StringVar(&loginOut, "out", "", "path to save the client profile (default: --config, else $E3DB_CONFIG_FILE)")
	loginCmd.MarkFlagRequired("username")
	loginCmd.MarkFlagRequired("password")
	loginCmd.MarkFlagRequired("realm")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if apiURL == "" {
		return fmt.Errorf("login: --api-url is required")
	}

	suite := config.SuiteFromEnv()
	id, err := identity.Login(context.Background(), http.DefaultClient, suite, loginUsername, loginPassword, loginRealm, loginApp, apiURL)
	if err != nil {
		logger.Error("login failed", zap.String("realm", loginRealm), zap.Error(err))
		return err
	}

	var profile config.Profile
	if err := json.Unmarshal(id.ClientConfig, &profile); err != nil {
		return fmt.Errorf("login: decode recovered client config: %w", err)
	}
	if profile.APIURL == "" {
		profile.APIURL = apiURL
	}

	out := loginOut
	if out == "" {
		out = configPath
	}
	if out == "" {
		out = os.Getenv("E3DB_CONFIG_FILE")
	}
	if out == "" {
		return fmt.Errorf("login: no --out, --config, or E3DB_CONFIG_FILE path to save the profile to")
	}

	if err := config.SaveToFile(&profile, out); err != nil {
		return fmt.Errorf("login: save profile: %w", err)
	}

	logger.Info("logged in", zap.String("client_id", profile.ClientID), zap.String("path", out))
	return nil
}
