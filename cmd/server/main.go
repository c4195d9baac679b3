// Command server runs a verifier.
//
// The verifier enrolls with the dealer, receives masking material for
// each epoch, and decides client submissions without ever seeing the
// query or database fingerprints in the clear.
//
// # Usage
//
//	go run ./cmd/server --addr=:8082 --ttp=http://localhost:8081 --ttp-pubkey=<hex>
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lingering/threshnet/api/httpserver"
	"github.com/lingering/threshnet/cmd/common"
	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/server"
	"github.com/lingering/threshnet/services"
)

func main() {
	var (
		addr          = flag.String("addr", ":8082", "HTTP listen address")
		metricsAddr   = flag.String("metrics-addr", "", "metrics listen address (disabled if empty)")
		enablePprof   = flag.Bool("pprof", false, "enable pprof debug API")
		logJSON       = flag.Bool("log-json", false, "log in JSON format")
		debug         = flag.Bool("debug", false, "enable debug logging")
		registryURL   = flag.String("registry", "", "registry URL to fetch the protocol config from")
		configPath    = flag.String("config", "", "protocol config YAML (defaults if empty)")
		ttpURL        = flag.String("ttp", "http://localhost:8081", "dealer URL")
		ttpPubKeyHex  = flag.String("ttp-pubkey", "", "dealer Ed25519 public key in hex (required)")
		endpoint      = flag.String("endpoint", "", "public URL of this verifier for epoch material pushes")
		signingKeyHex = flag.String("signing-key", "", "Ed25519 private key in hex (generated if empty)")
		kemKeyHex     = flag.String("exchange-key", "", "X25519 private key in hex (generated if empty)")
		dbHost        = flag.String("db-host", "", "PostgreSQL host (in-memory verdict cache if empty)")
		dbPort        = flag.Int("db-port", 5432, "PostgreSQL port")
		dbUser        = flag.String("db-user", "threshnet", "PostgreSQL user")
		dbPassword    = flag.String("db-password", "", "PostgreSQL password")
		dbName        = flag.String("db-name", "threshnet", "PostgreSQL database")
	)
	flag.Parse()

	log := common.NewLogger(*logJSON, *debug)

	if *ttpPubKeyHex == "" {
		log.Error("Flag --ttp-pubkey is required")
		os.Exit(1)
	}
	ttpPubKey, err := crypto.NewPublicKeyFromString(*ttpPubKeyHex)
	if err != nil {
		log.Error("Invalid dealer public key", "err", err)
		os.Exit(1)
	}

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

	var store services.VerdictStore
	if *dbHost != "" {
		store, err = common.NewStore(*dbHost, *dbPort, *dbUser, *dbPassword, *dbName)
		if err != nil {
			log.Error("Failed to create store", "err", err)
			os.Exit(1)
		}
	}

	verifier, err := server.New(&server.Config{
		ProtocolConfig: protoConfig,
		TTPPublicKey:   ttpPubKey,
		Store:          store,
		Log:            log,
	}, signingKey)
	if err != nil {
		log.Error("Failed to create verifier", "err", err)
		os.Exit(1)
	}
	log.Info("Verifier ready", "publicKey", verifier.PublicKey().String())

	if err := enrollWithDealer(verifier, signingKey, kemKey, *ttpURL, *endpoint); err != nil {
		log.Error("Failed to enroll with dealer", "err", err)
		os.Exit(1)
	}
	log.Info("Enrolled with dealer", "ttp", *ttpURL)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		MetricsAddr:              *metricsAddr,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, server.NewHandler(verifier))
	if err != nil {
		log.Error("Failed to create HTTP server", "err", err)
		os.Exit(1)
	}

	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down verifier")
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

// enrollWithDealer registers this verifier with the dealer and fetches
// material for the current epoch so submissions can be processed before
// the first epoch transition push arrives.
func enrollWithDealer(verifier *server.Verifier, signingKey crypto.PrivateKey, kemKey crypto.KemPrivateKey, ttpURL, endpoint string) error {
	ttpClient := services.NewTTPClient(ttpURL)

	resp, err := ttpClient.Enroll(signingKey, &protocol.EnrollmentRequest{
		Role:        protocol.RoleVerifier,
		PublicKey:   verifier.PublicKey().String(),
		ExchangeKey: crypto.KemPublicKeyOf(kemKey).String(),
		Endpoint:    endpoint,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("dealer refused enrollment: %s", resp.Message)
	}

	dealerExchangeKey, err := crypto.NewKemPublicKeyFromString(resp.ExchangeKey)
	if err != nil {
		return fmt.Errorf("invalid dealer exchange key: %w", err)
	}
	sharedKey, err := crypto.DeriveSharedSecret(kemKey, dealerExchangeKey, crypto.EnrollmentInfo)
	if err != nil {
		return fmt.Errorf("deriving shared secret: %w", err)
	}

	epoch, err := ttpClient.CurrentEpoch()
	if err != nil {
		return err
	}
	authTag := crypto.EpochAuthTag(sharedKey, verifier.PublicKey(), epoch)
	material, err := ttpClient.EpochMaterial(verifier.PublicKey(), epoch, authTag)
	if err != nil {
		return err
	}
	return verifier.SetEpochMaterial(material)
}
