package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalConfig = `volflow:
  name: "TestApp"
  version: "1.0"
feed:
  kind: csv
  ticker: SPY
  csv:
    path: testdata/tape.csv
`

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Volflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Volflow.Name)
	}
	if cfg.Surface.IVMin != 0.05 || cfg.Surface.IVMax != 0.35 {
		t.Errorf("unexpected IV range: %v..%v", cfg.Surface.IVMin, cfg.Surface.IVMax)
	}
	if cfg.Surface.MoneynessMin != 0.80 || cfg.Surface.MoneynessMax != 1.20 {
		t.Errorf("unexpected moneyness range: %v..%v", cfg.Surface.MoneynessMin, cfg.Surface.MoneynessMax)
	}
	if cfg.Surface.MaxDaysToExp != 60 {
		t.Errorf("unexpected max days to expiry: %v", cfg.Surface.MaxDaysToExp)
	}
	if cfg.Surface.BucketWidth != 5*time.Minute {
		t.Errorf("unexpected bucket width: %v", cfg.Surface.BucketWidth)
	}
	if cfg.Surface.Timezone != "America/New_York" {
		t.Errorf("unexpected timezone: %s", cfg.Surface.Timezone)
	}
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("TAPE_PATH", "/tmp/day.csv")
	path := writeTempConfig(t, `volflow:
  name: "TestApp"
  version: "1.0"
feed:
  kind: csv
  ticker: SPY
  csv:
    path: ${TAPE_PATH}
`)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Feed.CSV.Path != "/tmp/day.csv" {
		t.Errorf("env expansion failed: %s", cfg.Feed.CSV.Path)
	}
}

func TestLoadConfigRejectsBadFeedKind(t *testing.T) {
	path := writeTempConfig(t, `volflow:
  name: "TestApp"
  version: "1.0"
feed:
  kind: ftp
  ticker: SPY
`)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown feed kind")
	}
}

func TestLoadConfigRejectsInvertedRanges(t *testing.T) {
	path := writeTempConfig(t, `volflow:
  name: "TestApp"
  version: "1.0"
feed:
  kind: csv
  ticker: SPY
  csv:
    path: testdata/tape.csv
surface:
  iv_min: 0.5
  iv_max: 0.1
`)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for inverted IV range")
	}
}

func TestLoadConfigProductionRequiresFeedCredentials(t *testing.T) {
	content := `volflow:
  name: "TestApp"
  version: "1.0"
feed:
  kind: rest
  ticker: SPY
  rest:
    url: https://api.example.com/v1/opra/trades
`
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	t.Setenv(appEnvVar, "prod")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing rest api key in production")
	}

	t.Setenv(appEnvVar, "dev")
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("development run should not require credentials: %v", err)
	}

	withKey := writeTempConfig(t, content+`    api_key: secret
`)
	defer os.Remove(withKey)

	t.Setenv(appEnvVar, "prod")
	if _, err := LoadConfig(withKey); err != nil {
		t.Fatalf("production run with api key should pass: %v", err)
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv(appEnvVar, "prod")
	if env := AppEnvironment(); env != EnvironmentProduction {
		t.Errorf("expected production, got %s", env)
	}
	t.Setenv(appEnvVar, "")
	if env := AppEnvironment(); env != EnvironmentDevelopment {
		t.Errorf("expected development default, got %s", env)
	}
	if !IsProductionLike(EnvironmentStaging) {
		t.Error("staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Error("development should not be production-like")
	}
}
