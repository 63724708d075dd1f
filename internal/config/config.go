package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/secret"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"

	rpcEnvPrefix = "ETHEREUM_PROVIDER_"
)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	LogLevel       string
	LogFormat      string
	StoreDriver    string
	Chains         string
	NoCache        bool
}

// Chain is one enabled chain with an optional RPC override.
type Chain struct {
	Name string
	RPC  string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	LogLevel       string
	LogFormat      string

	EncryptionKeyHex string

	StoreDriver   string
	StorePath     string
	StoreLockPath string
	StoreDSN      string

	WalletCacheTTL time.Duration

	CacheEnabled    bool
	CacheBackend    string
	CachePath       string
	CacheLockPath   string
	RedisURL        string
	BalanceCacheTTL time.Duration

	Chains []Chain
}

type fileConfig struct {
	Output        string `yaml:"output"`
	Timeout       string `yaml:"timeout"`
	EncryptionKey string `yaml:"encryption_key"`
	Log           struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Store struct {
		Driver   string `yaml:"driver"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		DSN      string `yaml:"dsn"`
		DSNEnv   string `yaml:"dsn_env"`
	} `yaml:"store"`
	Cache struct {
		Enabled    *bool  `yaml:"enabled"`
		Backend    string `yaml:"backend"`
		Path       string `yaml:"path"`
		LockPath   string `yaml:"lock_path"`
		RedisURL   string `yaml:"redis_url"`
		BalanceTTL string `yaml:"balance_ttl"`
		WalletTTL  string `yaml:"wallet_ttl"`
	} `yaml:"cache"`
	Chains []struct {
		Name   string `yaml:"name"`
		RPC    string `yaml:"rpc"`
		RPCEnv string `yaml:"rpc_env"`
	} `yaml:"chains"`
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

	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}
	applyRPCOverrides(&settings)

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.WalletCacheTTL <= 0 {
		settings.WalletCacheTTL = time.Hour
	}
	if settings.BalanceCacheTTL <= 0 {
		settings.BalanceCacheTTL = 5 * time.Second
	}

	return settings, nil
}

// EncryptionKey decodes and validates the configured wallet encryption key.
func (s Settings) EncryptionKey() ([]byte, error) {
	if strings.TrimSpace(s.EncryptionKeyHex) == "" {
		return nil, clierr.New(clierr.CodeConfig, "missing encryption key; set ENCRYPTION_KEY to 32 bytes of hex")
	}
	return secret.ParseKey(s.EncryptionKeyHex)
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	cacheDir, err := defaultCacheDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Timeout:         15 * time.Second,
		LogLevel:        "warn",
		LogFormat:       "console",
		StoreDriver:     DriverSQLite,
		StorePath:       filepath.Join(dataDir, "wallets.db"),
		StoreLockPath:   filepath.Join(dataDir, "wallets.lock"),
		WalletCacheTTL:  time.Hour,
		CacheEnabled:    true,
		CacheBackend:    CacheSQLite,
		CachePath:       filepath.Join(cacheDir, "cache.db"),
		CacheLockPath:   filepath.Join(cacheDir, "cache.lock"),
		BalanceCacheTTL: 5 * time.Second,
	}, nil
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
	return filepath.Join(base, "agent-wallet", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "agent-wallet"), nil
}

func defaultCacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "agent-wallet"), nil
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

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.EncryptionKey != "" {
		settings.EncryptionKeyHex = cfg.EncryptionKey
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = cfg.Log.Format
	}
	if cfg.Store.Driver != "" {
		settings.StoreDriver = strings.ToLower(cfg.Store.Driver)
	}
	if cfg.Store.Path != "" {
		settings.StorePath = cfg.Store.Path
	}
	if cfg.Store.LockPath != "" {
		settings.StoreLockPath = cfg.Store.LockPath
	}
	if cfg.Store.DSN != "" {
		settings.StoreDSN = cfg.Store.DSN
	}
	if cfg.Store.DSNEnv != "" {
		settings.StoreDSN = os.Getenv(cfg.Store.DSNEnv)
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Backend != "" {
		settings.CacheBackend = strings.ToLower(cfg.Cache.Backend)
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Cache.RedisURL != "" {
		settings.RedisURL = cfg.Cache.RedisURL
	}
	if cfg.Cache.BalanceTTL != "" {
		d, err := time.ParseDuration(cfg.Cache.BalanceTTL)
		if err != nil {
			return fmt.Errorf("config cache.balance_ttl: %w", err)
		}
		settings.BalanceCacheTTL = d
	}
	if cfg.Cache.WalletTTL != "" {
		d, err := time.ParseDuration(cfg.Cache.WalletTTL)
		if err != nil {
			return fmt.Errorf("config cache.wallet_ttl: %w", err)
		}
		settings.WalletCacheTTL = d
	}
	if len(cfg.Chains) > 0 {
		settings.Chains = settings.Chains[:0]
		for _, c := range cfg.Chains {
			if strings.TrimSpace(c.Name) == "" {
				return fmt.Errorf("config chains: entry without a name")
			}
			rpc := c.RPC
			if c.RPCEnv != "" {
				rpc = os.Getenv(c.RPCEnv)
			}
			settings.Chains = append(settings.Chains, Chain{Name: strings.TrimSpace(c.Name), RPC: strings.TrimSpace(rpc)})
		}
	}

	return nil
}

// loadEnvFile reads path, or ./.env when path is empty, into the process
// environment without overriding variables that are already set.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("AGENT_WALLET_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("AGENT_WALLET_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("AGENT_WALLET_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("AGENT_WALLET_LOG_FORMAT"); v != "" {
		settings.LogFormat = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		settings.EncryptionKeyHex = v
	}
	if v := os.Getenv("AGENT_WALLET_STORE_DRIVER"); v != "" {
		settings.StoreDriver = strings.ToLower(v)
	}
	if v := os.Getenv("AGENT_WALLET_STORE_PATH"); v != "" {
		settings.StorePath = v
	}
	if v := os.Getenv("AGENT_WALLET_STORE_LOCK_PATH"); v != "" {
		settings.StoreLockPath = v
	}
	if v := os.Getenv("AGENT_WALLET_STORE_DSN"); v != "" {
		settings.StoreDSN = v
	}
	if v := os.Getenv("AGENT_WALLET_WALLET_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.WalletCacheTTL = d
		}
	}
	if v := os.Getenv("AGENT_WALLET_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("AGENT_WALLET_CACHE_BACKEND"); v != "" {
		settings.CacheBackend = strings.ToLower(v)
	}
	if v := os.Getenv("AGENT_WALLET_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("AGENT_WALLET_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("AGENT_WALLET_REDIS_URL"); v != "" {
		settings.RedisURL = v
	}
	if v := os.Getenv("AGENT_WALLET_BALANCE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.BalanceCacheTTL = d
		}
	}
	if v := os.Getenv("AGENT_WALLET_CHAINS"); v != "" {
		settings.Chains = parseChains(v)
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		settings.LogFormat = flags.LogFormat
	}
	if flags.StoreDriver != "" {
		settings.StoreDriver = strings.ToLower(flags.StoreDriver)
	}
	if strings.TrimSpace(flags.Chains) != "" {
		settings.Chains = parseChains(flags.Chains)
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	switch settings.StoreDriver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("store driver must be sqlite, postgres or memory")
	}
	switch settings.CacheBackend {
	case CacheMemory, CacheSQLite, CacheRedis:
	default:
		return fmt.Errorf("cache backend must be memory, sqlite or redis")
	}

	return nil
}

// applyRPCOverrides fills chains without an explicit RPC from
// ETHEREUM_PROVIDER_<CHAIN>, e.g. ETHEREUM_PROVIDER_ARBITRUM_SEPOLIA.
func applyRPCOverrides(settings *Settings) {
	for i, c := range settings.Chains {
		if c.RPC != "" {
			continue
		}
		for _, name := range rpcEnvNames(c.Name) {
			if v := strings.TrimSpace(os.Getenv(name)); v != "" {
				settings.Chains[i].RPC = v
				break
			}
		}
	}
}

// RPCEnvName is the environment variable consulted for chain's RPC override.
func RPCEnvName(chain string) string {
	return rpcEnvNames(chain)[0]
}

func rpcEnvNames(chain string) []string {
	upper := strings.ToUpper(strings.TrimSpace(chain))
	underscored := strings.NewReplacer("-", "_", " ", "_").Replace(upper)
	compact := strings.NewReplacer("-", "", "_", "", " ", "").Replace(upper)
	if compact == underscored {
		return []string{rpcEnvPrefix + underscored}
	}
	return []string{rpcEnvPrefix + underscored, rpcEnvPrefix + compact}
}

// parseChains reads "base,arbitrum=https://rpc" into chain entries.
func parseChains(raw string) []Chain {
	var out []Chain
	for _, part := range splitList(raw) {
		name, rpc, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, Chain{Name: name, RPC: strings.TrimSpace(rpc)})
	}
	return out
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
