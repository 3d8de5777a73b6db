package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8645", cfg.RPCAddress)
	require.Equal(t, "market-local", cfg.NetworkName)
	require.Equal(t, "KLV", cfg.PaymentTokenSymbol)
	require.Equal(t, int64(3600), cfg.PurchaseTimeoutSeconds)

	_, err = os.Stat(path)
	require.NoError(t, err, "default file must be written")

	// The generated file loads back cleanly.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, again.RPCAddress)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
RPCAddress = "0.0.0.0:9000"
PurchaseTimeoutSeconds = 120
OwnerAddress = "0x00000000000000000000000000000000000000EE"

[Alloc]
"0x0000000000000000000000000000000000000002" = "1000"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, int64(120), cfg.PurchaseTimeoutSeconds)
	require.Equal(t, "market-local", cfg.NetworkName, "missing fields take defaults")
	require.Equal(t, "0x00000000000000000000000000000000000000EE", cfg.OwnerAddress)
	require.Equal(t, "1000", cfg.Alloc["0x0000000000000000000000000000000000000002"])
}

func TestLoadDefaultsNonPositiveTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("PurchaseTimeoutSeconds = -5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(3600), cfg.PurchaseTimeoutSeconds)
}
