package config

import (
	"testing"

	sagecrypto "github.com/tozny/e3db-go/crypto"
)

func TestSubstituteEnvVarsUsesDefaultWhenUnset(t *testing.T) {
	t.Setenv("E3DB_TEST_UNSET_VAR", "")
	got := SubstituteEnvVars("${E3DB_TEST_UNSET_VAR:fallback}")
	if got != "fallback" {
		t.Fatalf("got %q, want %q", got, "fallback")
	}
}

func TestSubstituteEnvVarsPrefersSetValue(t *testing.T) {
	t.Setenv("E3DB_TEST_VAR", "from-env")
	got := SubstituteEnvVars("${E3DB_TEST_VAR:fallback}")
	if got != "from-env" {
		t.Fatalf("got %q, want %q", got, "from-env")
	}
}

func TestApplyOverridesPrefersEnvVarOverProfile(t *testing.T) {
	t.Setenv("E3DB_API_URL", "https://override.example")
	profile := &Profile{APIURL: "https://stored.example"}
	ApplyOverrides(profile)
	if profile.APIURL != "https://override.example" {
		t.Fatalf("got %q, want override applied", profile.APIURL)
	}
}

func TestSuiteFromEnvDefaultsToSodium(t *testing.T) {
	t.Setenv("CRYPTO_SUITE", "")
	if SuiteFromEnv().Mode() != sagecrypto.ModeSodium {
		t.Fatalf("expected sodium mode by default")
	}
}

func TestSuiteFromEnvSelectsNISTCaseInsensitively(t *testing.T) {
	t.Setenv("CRYPTO_SUITE", "nist")
	if SuiteFromEnv().Mode() != sagecrypto.ModeNIST {
		t.Fatalf("expected nist mode for CRYPTO_SUITE=nist")
	}
}
