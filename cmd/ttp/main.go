// Command ttp runs the trusted dealer.
//
// The dealer holds the fingerprint database, enrolls clients and
// verifiers, and derives fresh masking material for every epoch from
// its master secret. Material for the current epoch is served over the
// API and pushed to enrolled verifiers on epoch transitions.
//
// # Usage
//
//	go run ./cmd/ttp --addr=:8081 --fingerprints=db.txt
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lingering/threshnet/api/httpserver"
	"github.com/lingering/threshnet/cmd/common"
	"github.com/lingering/threshnet/fingerprint"
	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/ttp"
)

func main() {
	var (
		addr             = flag.String("addr", ":8081", "HTTP listen address")
		metricsAddr      = flag.String("metrics-addr", "", "metrics listen address (disabled if empty)")
		enablePprof      = flag.Bool("pprof", false, "enable pprof debug API")
		logJSON          = flag.Bool("log-json", false, "log in JSON format")
		debug            = flag.Bool("debug", false, "enable debug logging")
		registryURL      = flag.String("registry", "", "registry URL to fetch the protocol config from")
		configPath       = flag.String("config", "", "protocol config YAML (defaults if empty)")
		signingKeyHex    = flag.String("signing-key", "", "Ed25519 private key in hex (generated if empty)")
		kemKeyHex        = flag.String("exchange-key", "", "X25519 private key in hex (generated if empty)")
		masterSecretHex  = flag.String("master-secret", "", "master secret in hex (generated if empty)")
		fingerprintsPath = flag.String("fingerprints", "", "file with one hex fingerprint per line")
		dbHost           = flag.String("db-host", "", "PostgreSQL host (in-memory store if empty)")
		dbPort           = flag.Int("db-port", 5432, "PostgreSQL port")
		dbUser           = flag.String("db-user", "threshnet", "PostgreSQL user")
		dbPassword       = flag.String("db-password", "", "PostgreSQL password")
		dbName           = flag.String("db-name", "threshnet", "PostgreSQL database")
	)
	flag.Parse()

	log := common.NewLogger(*logJSON, *debug)

	protoConfig, err := loadConfig(*registryURL, *configPath)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	signingKey, err := common.LoadOrGenerateSigningKey(*signingKeyHex)
	if err != nil {
		log.Error("Failed to load signing key", "err", err)
		os.Exit(1)
	}
	kemKey, err := common.LoadOrGenerateKemKey(*kemKeyHex)
	if err != nil {
		log.Error("Failed to load exchange key", "err", err)
		os.Exit(1)
	}
	masterSecret, err := common.LoadMasterSecret(*masterSecretHex, log)
	if err != nil {
		log.Error("Failed to load master secret", "err", err)
		os.Exit(1)
	}

	store, err := common.NewStore(*dbHost, *dbPort, *dbUser, *dbPassword, *dbName)
	if err != nil {
		log.Error("Failed to create store", "err", err)
		os.Exit(1)
	}

	dealer, err := ttp.New(&ttp.Config{
		ProtocolConfig: protoConfig,
		MasterSecret:   masterSecret,
		Store:          store,
		Log:            log,
	}, signingKey, kemKey)
	if err != nil {
		log.Error("Failed to create dealer", "err", err)
		os.Exit(1)
	}

	if *fingerprintsPath != "" {
		if err := loadFingerprints(dealer, *fingerprintsPath, log); err != nil {
			log.Error("Failed to load fingerprints", "err", err)
			os.Exit(1)
		}
	}
	log.Info("Dealer ready",
		"publicKey", dealer.PublicKey().String(),
		"databaseSize", dealer.DatabaseSize())

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		MetricsAddr:              *metricsAddr,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, ttp.NewHandler(dealer))
	if err != nil {
		log.Error("Failed to create HTTP server", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dealer.Start(ctx)
	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down dealer")
	cancel()
	srv.Shutdown()
}

func loadConfig(registryURL, configPath string) (*protocol.Config, error) {
	if registryURL != "" {
		return common.FetchConfig(registryURL)
	}
	if configPath != "" {
		return protocol.LoadConfig(configPath)
	}
	return protocol.DefaultConfig(), nil
}

func loadFingerprints(dealer *ttp.TTP, path string, log *slog.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	loaded := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fp, err := fingerprint.ParseHex(line)
		if err != nil {
			return err
		}
		if err := dealer.AddFingerprint(fp); err != nil {
			return err
		}
		loaded++
	}
	log.Info("Loaded fingerprint database", "count", loaded)
	return scanner.Err()
}
