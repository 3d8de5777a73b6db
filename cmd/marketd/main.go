package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"sessionmarket/config"
	"sessionmarket/observability/logging"
	"sessionmarket/rpc"
	"sessionmarket/state"
	"sessionmarket/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	useMemDB := flag.Bool("memdb", false, "DEV ONLY: keep all state in memory instead of the data directory")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MARKET_ENV"))
	logger := logging.Setup("marketd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var db storage.Database
	if *useMemDB {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		defer leveldb.Close()
		db = leveldb
	}

	if err := bootstrap(db, cfg); err != nil {
		logger.Error("Failed to bootstrap state", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(db, rpc.ServerConfig{
		NetworkName:            cfg.NetworkName,
		PaymentTokenSymbol:     cfg.PaymentTokenSymbol,
		PurchaseTimeoutSeconds: cfg.PurchaseTimeoutSeconds,
	}, logger)

	logger.Info("marketd ready",
		"network", cfg.NetworkName,
		"token", cfg.PaymentTokenSymbol,
		"timeout_seconds", cfg.PurchaseTimeoutSeconds,
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// bootstrap seeds the persisted params and the one-time token allocation on
// a fresh store. Stores that already carry params keep them; the config
// values only fill gaps.
func bootstrap(db storage.Database, cfg *config.Config) error {
	overlay := storage.NewOverlay(db)
	mgr := state.NewManager(overlay)

	if _, ok := mgr.MarketOwner(); !ok && cfg.OwnerAddress != "" {
		owner, err := parseConfigAddress("OwnerAddress", cfg.OwnerAddress)
		if err != nil {
			return err
		}
		if err := mgr.SetMarketOwner(owner); err != nil {
			return err
		}
	}
	if _, ok := mgr.VerifierAddress(); !ok && cfg.VerifierAddress != "" {
		verifier, err := parseConfigAddress("VerifierAddress", cfg.VerifierAddress)
		if err != nil {
			return err
		}
		if err := mgr.SetVerifierAddress(verifier); err != nil {
			return err
		}
	}

	if !mgr.GenesisDone() {
		for rawAddr, rawAmount := range cfg.Alloc {
			addr, err := parseConfigAddress("Alloc", rawAddr)
			if err != nil {
				return err
			}
			amount, ok := new(big.Int).SetString(strings.TrimSpace(rawAmount), 10)
			if !ok {
				return fmt.Errorf("invalid Alloc amount %q for %s", rawAmount, rawAddr)
			}
			if err := mgr.Mint(addr, amount); err != nil {
				return err
			}
		}
		if err := mgr.SetGenesisDone(); err != nil {
			return err
		}
	}

	return overlay.Commit()
}

func parseConfigAddress(field, raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid %s %q", field, raw)
	}
	return [20]byte(common.HexToAddress(trimmed)), nil
}
