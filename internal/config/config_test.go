package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolateHome(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, ".cache"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, ".local", "share"))
}

func TestLoadDefaults(t *testing.T) {
	isolateHome(t)
	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Timeout != 10*time.Second || settings.Retries != 2 {
		t.Fatalf("defaults wrong: %+v", settings)
	}
	if settings.LogLevel != "info" || !settings.CacheEnabled {
		t.Fatalf("defaults wrong: %+v", settings)
	}
	if settings.DustRaw != 10 || settings.BridgeTimeout != 10*time.Minute {
		t.Fatalf("defaults wrong: %+v", settings)
	}
	if settings.LedgerDir == "" || settings.PlanStorePath == "" {
		t.Fatalf("store paths unset: %+v", settings)
	}
}

func TestLoadFileConfig(t *testing.T) {
	isolateHome(t)
	cfgDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "yieldctl")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `
timeout: 30s
retries: 5
log_level: DEBUG
custody:
  base_url: https://custody.internal
  api_key: secret
providers:
  yields_url: https://yields.example
rpc:
  "eip155:8453": https://base.example/rpc
withdraw:
  dust_raw: 25
bridge:
  poll_interval: 1s
  timeout: 3m
`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Timeout != 30*time.Second || settings.Retries != 5 || settings.LogLevel != "debug" {
		t.Fatalf("file values ignored: %+v", settings)
	}
	if settings.CustodyURL != "https://custody.internal" || settings.CustodyAPIKey != "secret" {
		t.Fatalf("custody config ignored: %+v", settings)
	}
	if settings.YieldsURL != "https://yields.example" {
		t.Fatalf("provider url ignored: %+v", settings)
	}
	if settings.RPCOverrides["eip155:8453"] != "https://base.example/rpc" {
		t.Fatalf("rpc override ignored: %+v", settings.RPCOverrides)
	}
	if settings.DustRaw != 25 || settings.BridgePollInterval != time.Second || settings.BridgeTimeout != 3*time.Minute {
		t.Fatalf("file values ignored: %+v", settings)
	}
}

func TestEnvOverridesFileAndFlagsOverrideEnv(t *testing.T) {
	isolateHome(t)
	cfgDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "yieldctl")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("timeout: 30s\nlog_level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("YIELD_TIMEOUT", "20s")
	t.Setenv("YIELD_LOG_LEVEL", "error")
	t.Setenv("YIELD_CUSTODY_API_KEY", "from-env")

	settings, err := Load(GlobalFlags{Timeout: "5s", Retries: -1})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Timeout != 5*time.Second {
		t.Fatalf("flag should win: %v", settings.Timeout)
	}
	if settings.LogLevel != "error" {
		t.Fatalf("env should beat file: %v", settings.LogLevel)
	}
	if settings.CustodyAPIKey != "from-env" {
		t.Fatalf("env api key ignored")
	}
}

func TestLoadRejectsMalformedDurations(t *testing.T) {
	isolateHome(t)
	if _, err := Load(GlobalFlags{Timeout: "soon", Retries: -1}); err == nil {
		t.Fatal("malformed --timeout must fail")
	}

	cfgDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "yieldctl")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("timeout: never\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(GlobalFlags{Retries: -1}); err == nil {
		t.Fatal("malformed file timeout must fail")
	}
}

func TestNoCacheFlagDisablesCache(t *testing.T) {
	isolateHome(t)
	settings, err := Load(GlobalFlags{NoCache: true, Retries: -1})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.CacheEnabled {
		t.Fatal("--no-cache ignored")
	}
}
