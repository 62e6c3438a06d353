package main

import (
	"fmt"

	"github.com/tozny/e3db-go/config"
	"github.com/tozny/e3db-go/e3db"
	"github.com/tozny/e3db-go/internal/obs"
)

// newClient loads the client profile (honoring --config/--api-url) and
// builds a Client against it, applying CRYPTO_SUITE and a Prometheus
// Recorder so CLI runs are observable the same way a long-running
// caller would be.
func newClient() (*e3db.Client, error) {
	profile, err := config.Load(config.LoaderOptions{Path: configPath})
	if err != nil {
		return nil, fmt.Errorf("load client profile: %w", err)
	}
	if apiURL != "" {
		profile.APIURL = apiURL
	}

	suite := config.SuiteFromEnv()
	return e3db.New(profile, suite, nil, obs.PrometheusRecorder{})
}
