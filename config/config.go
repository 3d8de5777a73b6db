package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the marketd service configuration. Owner and verifier are
// bootstrap values: they seed state on first start and are ignored once the
// persisted params exist (administration then goes through the owner-only
// RPC methods).
type Config struct {
	RPCAddress             string            `toml:"RPCAddress"`
	DataDir                string            `toml:"DataDir"`
	NetworkName            string            `toml:"NetworkName"`
	PaymentTokenSymbol     string            `toml:"PaymentTokenSymbol"`
	PurchaseTimeoutSeconds int64             `toml:"PurchaseTimeoutSeconds"`
	OwnerAddress           string            `toml:"OwnerAddress"`
	VerifierAddress        string            `toml:"VerifierAddress"`
	Alloc                  map[string]string `toml:"Alloc"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./marketdata"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "market-local"
	}
	if strings.TrimSpace(cfg.PaymentTokenSymbol) == "" {
		cfg.PaymentTokenSymbol = "KLV"
	}
	if cfg.PurchaseTimeoutSeconds <= 0 {
		cfg.PurchaseTimeoutSeconds = 3600
	}
	if cfg.Alloc == nil {
		cfg.Alloc = map[string]string{}
	}
}

func validate(cfg *Config) error {
	if cfg.PurchaseTimeoutSeconds <= 0 {
		return fmt.Errorf("config: PurchaseTimeoutSeconds must be positive")
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
