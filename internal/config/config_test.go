package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
)

const testEncryptionKey = "05f1f51c9decc55769cdf10694f3373409a1f4545e6f72ddb2c01d51491f5b89"

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
	for _, name := range []string{"ENCRYPTION_KEY", "AGENT_WALLET_OUTPUT", "AGENT_WALLET_CHAINS", "AGENT_WALLET_STORE_DRIVER", "AGENT_WALLET_CACHE_BACKEND"} {
		t.Setenv(name, "")
	}
	return tmp
}

func TestDefaults(t *testing.T) {
	tmp := isolate(t)
	settings, err := Load(GlobalFlags{EnvFile: ""})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "json" || settings.StoreDriver != DriverSQLite || settings.CacheBackend != CacheSQLite {
		t.Fatalf("unexpected defaults %+v", settings)
	}
	if settings.StorePath != filepath.Join(tmp, "data", "agent-wallet", "wallets.db") {
		t.Fatalf("unexpected store path %s", settings.StorePath)
	}
	if settings.WalletCacheTTL != time.Hour || settings.BalanceCacheTTL != 5*time.Second {
		t.Fatalf("unexpected ttls wallet=%s balance=%s", settings.WalletCacheTTL, settings.BalanceCacheTTL)
	}
	if len(settings.Chains) != 0 {
		t.Fatalf("expected no chains by default, got %v", settings.Chains)
	}
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	yaml := "output: plain\nstore:\n  driver: memory\nchains:\n  - name: base\n    rpc: https://file.example\n"
	if err := os.WriteFile(configPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("AGENT_WALLET_OUTPUT", "json")
	t.Setenv("AGENT_WALLET_CHAINS", "arbitrum,optimism=https://op.example")
	settings, err := Load(GlobalFlags{ConfigPath: configPath, Plain: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.StoreDriver != DriverMemory {
		t.Fatalf("expected file store driver, got %s", settings.StoreDriver)
	}
	if len(settings.Chains) != 2 || settings.Chains[0].Name != "arbitrum" || settings.Chains[1].RPC != "https://op.example" {
		t.Fatalf("expected env chains to replace file chains, got %+v", settings.Chains)
	}

	settings, err = Load(GlobalFlags{ConfigPath: configPath, Chains: "base-sepolia"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(settings.Chains) != 1 || settings.Chains[0].Name != "base-sepolia" {
		t.Fatalf("expected flag chains to win, got %+v", settings.Chains)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	isolate(t)
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestRejectsUnknownDrivers(t *testing.T) {
	isolate(t)
	if _, err := Load(GlobalFlags{StoreDriver: "mongo"}); err == nil {
		t.Fatal("expected unknown store driver to fail")
	}
	t.Setenv("AGENT_WALLET_CACHE_BACKEND", "memcached")
	if _, err := Load(GlobalFlags{}); err == nil {
		t.Fatal("expected unknown cache backend to fail")
	}
}

func TestRPCOverrideFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("AGENT_WALLET_CHAINS", "arbitrum-sepolia,base=https://explicit.example")
	t.Setenv("ETHEREUM_PROVIDER_ARBITRUM_SEPOLIA", "https://arb-sepolia.example")
	t.Setenv("ETHEREUM_PROVIDER_BASE", "https://ignored.example")
	settings, err := Load(GlobalFlags{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Chains[0].RPC != "https://arb-sepolia.example" {
		t.Fatalf("expected env rpc override, got %+v", settings.Chains[0])
	}
	if settings.Chains[1].RPC != "https://explicit.example" {
		t.Fatalf("explicit rpc must win over env, got %+v", settings.Chains[1])
	}
}

func TestRPCEnvNames(t *testing.T) {
	if got := RPCEnvName("arbitrum-sepolia"); got != "ETHEREUM_PROVIDER_ARBITRUM_SEPOLIA" {
		t.Fatalf("unexpected env name %s", got)
	}
	names := rpcEnvNames("arbitrumSepolia")
	if len(names) != 1 || names[0] != "ETHEREUM_PROVIDER_ARBITRUMSEPOLIA" {
		t.Fatalf("unexpected env names %v", names)
	}
}

func TestEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	tmp := isolate(t)
	envPath := filepath.Join(tmp, "wallet.env")
	content := "ENCRYPTION_KEY=" + testEncryptionKey + "\nAGENT_WALLET_OUTPUT=plain\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// Unset so the file can supply it; t.Setenv restores the previous value afterwards.
	os.Unsetenv("ENCRYPTION_KEY")
	t.Setenv("AGENT_WALLET_OUTPUT", "json")

	settings, err := Load(GlobalFlags{EnvFile: envPath})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "json" {
		t.Fatalf("process environment must win over the env file, got %s", settings.OutputMode)
	}
	key, err := settings.EncryptionKey()
	if err != nil {
		t.Fatalf("EncryptionKey failed: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32 byte key, got %d", len(key))
	}

	if _, err := Load(GlobalFlags{EnvFile: filepath.Join(tmp, "missing.env")}); err == nil {
		t.Fatal("expected missing explicit env file to fail")
	}
}

func TestEncryptionKeyValidation(t *testing.T) {
	if _, err := (Settings{}).EncryptionKey(); !clierr.Is(err, clierr.CodeConfig) {
		t.Fatalf("expected config error for missing key, got %v", err)
	}
	if _, err := (Settings{EncryptionKeyHex: "abcd"}).EncryptionKey(); !clierr.Is(err, clierr.CodeConfig) {
		t.Fatalf("expected config error for short key, got %v", err)
	}
	if _, err := (Settings{EncryptionKeyHex: "0x" + testEncryptionKey}).EncryptionKey(); err != nil {
		t.Fatalf("expected 0x-prefixed key to parse, got %v", err)
	}
}
