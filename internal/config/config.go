// Package config layers settings from a yaml file, YIELD_* environment
// variables, and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath string
	Timeout    string
	Retries    int
	LogLevel   string
	CustodyURL string
	LedgerDir  string
	NoCache    bool
}

type Settings struct {
	Timeout  time.Duration
	Retries  int
	LogLevel string

	CustodyURL    string
	CustodyAPIKey string

	YieldsURL string
	SwapURL   string
	BridgeURL string
	PricesURL string

	RPCOverrides map[string]string

	LedgerDir     string
	CacheEnabled  bool
	CachePath     string
	CacheLockPath string
	CacheTTL      time.Duration
	PlanStorePath string
	PlanLockPath  string

	DustRaw            int64
	BridgePollInterval time.Duration
	BridgeTimeout      time.Duration
}

type fileConfig struct {
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	LogLevel string `yaml:"log_level"`
	Custody  struct {
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"custody"`
	Providers struct {
		YieldsURL string `yaml:"yields_url"`
		SwapURL   string `yaml:"swap_url"`
		BridgeURL string `yaml:"bridge_url"`
		PricesURL string `yaml:"prices_url"`
	} `yaml:"providers"`
	RPC   map[string]string `yaml:"rpc"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		TTL      string `yaml:"ttl"`
	} `yaml:"cache"`
	Plans struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"plans"`
	Ledger struct {
		Dir string `yaml:"dir"`
	} `yaml:"ledger"`
	Withdraw struct {
		DustRaw *int64 `yaml:"dust_raw"`
	} `yaml:"withdraw"`
	Bridge struct {
		PollInterval string `yaml:"poll_interval"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"bridge"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.CacheTTL <= 0 {
		settings.CacheTTL = 5 * time.Minute
	}
	if settings.DustRaw <= 0 {
		settings.DustRaw = 10
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	cacheDir, err := defaultStateDir("XDG_CACHE_HOME", ".cache")
	if err != nil {
		return Settings{}, err
	}
	dataDir, err := defaultStateDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Timeout:            10 * time.Second,
		Retries:            2,
		LogLevel:           "info",
		CacheEnabled:       true,
		CachePath:          filepath.Join(cacheDir, "feeds.db"),
		CacheLockPath:      filepath.Join(cacheDir, "feeds.lock"),
		CacheTTL:           5 * time.Minute,
		PlanStorePath:      filepath.Join(cacheDir, "plans.db"),
		PlanLockPath:       filepath.Join(cacheDir, "plans.lock"),
		LedgerDir:          filepath.Join(dataDir, "ledger"),
		DustRaw:            10,
		BridgePollInterval: 5 * time.Second,
		BridgeTimeout:      10 * time.Minute,
	}, nil
}

func defaultStateDir(envVar, fallback string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	return filepath.Join(base, "yieldctl"), nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "yieldctl", "config.yaml"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.Custody.BaseURL != "" {
		settings.CustodyURL = cfg.Custody.BaseURL
	}
	if cfg.Custody.APIKey != "" {
		settings.CustodyAPIKey = cfg.Custody.APIKey
	}
	if cfg.Custody.APIKeyEnv != "" {
		settings.CustodyAPIKey = os.Getenv(cfg.Custody.APIKeyEnv)
	}
	if cfg.Providers.YieldsURL != "" {
		settings.YieldsURL = cfg.Providers.YieldsURL
	}
	if cfg.Providers.SwapURL != "" {
		settings.SwapURL = cfg.Providers.SwapURL
	}
	if cfg.Providers.BridgeURL != "" {
		settings.BridgeURL = cfg.Providers.BridgeURL
	}
	if cfg.Providers.PricesURL != "" {
		settings.PricesURL = cfg.Providers.PricesURL
	}
	if len(cfg.RPC) > 0 {
		if settings.RPCOverrides == nil {
			settings.RPCOverrides = map[string]string{}
		}
		for k, v := range cfg.RPC {
			settings.RPCOverrides[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Cache.TTL != "" {
		d, err := time.ParseDuration(cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("config cache.ttl: %w", err)
		}
		settings.CacheTTL = d
	}
	if cfg.Plans.Path != "" {
		settings.PlanStorePath = cfg.Plans.Path
	}
	if cfg.Plans.LockPath != "" {
		settings.PlanLockPath = cfg.Plans.LockPath
	}
	if cfg.Ledger.Dir != "" {
		settings.LedgerDir = cfg.Ledger.Dir
	}
	if cfg.Withdraw.DustRaw != nil {
		settings.DustRaw = *cfg.Withdraw.DustRaw
	}
	if cfg.Bridge.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Bridge.PollInterval)
		if err != nil {
			return fmt.Errorf("config bridge.poll_interval: %w", err)
		}
		settings.BridgePollInterval = d
	}
	if cfg.Bridge.Timeout != "" {
		d, err := time.ParseDuration(cfg.Bridge.Timeout)
		if err != nil {
			return fmt.Errorf("config bridge.timeout: %w", err)
		}
		settings.BridgeTimeout = d
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("YIELD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("YIELD_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("YIELD_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("YIELD_CUSTODY_URL"); v != "" {
		settings.CustodyURL = v
	}
	if v := os.Getenv("YIELD_CUSTODY_API_KEY"); v != "" {
		settings.CustodyAPIKey = v
	}
	if v := os.Getenv("YIELD_YIELDS_URL"); v != "" {
		settings.YieldsURL = v
	}
	if v := os.Getenv("YIELD_SWAP_URL"); v != "" {
		settings.SwapURL = v
	}
	if v := os.Getenv("YIELD_BRIDGE_URL"); v != "" {
		settings.BridgeURL = v
	}
	if v := os.Getenv("YIELD_PRICES_URL"); v != "" {
		settings.PricesURL = v
	}
	if v := os.Getenv("YIELD_LEDGER_DIR"); v != "" {
		settings.LedgerDir = v
	}
	if v := os.Getenv("YIELD_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("YIELD_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("YIELD_PLANS_PATH"); v != "" {
		settings.PlanStorePath = v
	}
	if v := os.Getenv("YIELD_PLANS_LOCK_PATH"); v != "" {
		settings.PlanLockPath = v
	}
	if v := os.Getenv("YIELD_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.CustodyURL != "" {
		settings.CustodyURL = flags.CustodyURL
	}
	if flags.LedgerDir != "" {
		settings.LedgerDir = flags.LedgerDir
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	return nil
}
