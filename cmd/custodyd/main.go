package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custody/config"
	"custody/core/state"
	"custody/crypto"
	"custody/observability/logging"
	"custody/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	keygenPath := flag.String("keygen", "", "Generate a signer key, write it to the given keystore file, and exit")
	flag.Parse()

	if *keygenPath != "" {
		if err := generateKeystore(*keygenPath); err != nil {
			fmt.Fprintf(os.Stderr, "keygen failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	env := strings.TrimSpace(os.Getenv("CUSTODY_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup(cfg.ServiceName, env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	srv := newServer(manager, logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listening", slog.String("address", cfg.MetricsAddress))
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	logger.Info("api listening", slog.String("address", cfg.ListenAddress))
	if err := http.ListenAndServe(cfg.ListenAddress, srv.routes()); err != nil {
		logger.Error("api server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// generateKeystore creates a fresh signer key and stores it encrypted at path.
// The passphrase comes from CUSTODY_KEYSTORE_PASSPHRASE so it never appears in
// process arguments.
func generateKeystore(path string) error {
	passphrase := os.Getenv("CUSTODY_KEYSTORE_PASSPHRASE")
	if passphrase == "" {
		return fmt.Errorf("CUSTODY_KEYSTORE_PASSPHRASE must be set")
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(path, key, passphrase); err != nil {
		return err
	}
	pub := key.PubKey()
	fmt.Printf("keystore: %s\n", path)
	fmt.Printf("public key: %s\n", hex.EncodeToString(pub.Compressed()))
	fmt.Printf("address: %s\n", pub.Address().String())
	return nil
}
