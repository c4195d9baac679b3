// Command registry runs the service discovery registry.
//
// The registry serves the deployment-wide protocol configuration and
// tracks registered dealers, verifiers and clients. Clients may
// self-register through the public API; dealers and verifiers are
// registered by an administrator through the basic-auth /admin API.
// When attestation is enabled, registrations must carry a valid TEE
// quote matching a published measurement set.
//
// # Usage
//
//	go run ./cmd/registry --addr=:8080 --admin-password=secret
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lingering/threshnet/api/httpserver"
	"github.com/lingering/threshnet/cmd/common"
	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/services"
)

func main() {
	var (
		addr            = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr     = flag.String("metrics-addr", "", "metrics listen address (disabled if empty)")
		enablePprof     = flag.Bool("pprof", false, "enable pprof debug API")
		logJSON         = flag.Bool("log-json", false, "log in JSON format")
		debug           = flag.Bool("debug", false, "enable debug logging")
		configPath      = flag.String("config", "", "protocol config YAML (defaults if empty)")
		adminPassword   = flag.String("admin-password", "", "password for the admin API (disabled if empty)")
		useAttestations = flag.Bool("attestations", false, "require TEE attestation on registration")
		useTDX          = flag.Bool("tdx", false, "verify quotes with real TDX collateral")
		remoteTDXURL    = flag.String("tdx-url", "", "remote TDX attestation service URL")
		measurementsURL = flag.String("measurements-url", "", "URL for allowed measurements")
		dbHost          = flag.String("db-host", "", "PostgreSQL host (in-memory store if empty)")
		dbPort          = flag.Int("db-port", 5432, "PostgreSQL port")
		dbUser          = flag.String("db-user", "threshnet", "PostgreSQL user")
		dbPassword      = flag.String("db-password", "", "PostgreSQL password")
		dbName          = flag.String("db-name", "threshnet", "PostgreSQL database")
	)
	flag.Parse()

	log := common.NewLogger(*logJSON, *debug)

	protoConfig := protocol.DefaultConfig()
	if *configPath != "" {
		var err error
		protoConfig, err = protocol.LoadConfig(*configPath)
		if err != nil {
			log.Error("Failed to load config", "err", err)
			os.Exit(1)
		}
	}

	store, err := common.NewStore(*dbHost, *dbPort, *dbUser, *dbPassword, *dbName)
	if err != nil {
		log.Error("Failed to create store", "err", err)
		os.Exit(1)
	}

	registryConfig := &services.RegistryConfig{
		MeasurementSource: common.NewMeasurementSource(*measurementsURL),
		Store:             store,
		Log:               log,
	}
	if *useAttestations {
		registryConfig.AttestationProvider = common.NewAttestationProvider(*useTDX, *remoteTDXURL)
	}

	registry, err := services.NewRegistry(registryConfig, protoConfig)
	if err != nil {
		log.Error("Failed to create registry", "err", err)
		os.Exit(1)
	}

	registrars := []httpserver.RouteRegistrar{registry}
	if *adminPassword != "" {
		registrars = append(registrars, adminRoutes(registry, *adminPassword))
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		MetricsAddr:              *metricsAddr,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, registrars...)
	if err != nil {
		log.Error("Failed to create HTTP server", "err", err)
		os.Exit(1)
	}

	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down registry")
	srv.Shutdown()
}

type adminRegistrar struct {
	registry *services.Registry
	password string
}

func adminRoutes(registry *services.Registry, password string) httpserver.RouteRegistrar {
	return &adminRegistrar{registry: registry, password: password}
}

func (a *adminRegistrar) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.BasicAuth("registry admin", map[string]string{"admin": a.password}))
		a.registry.RegisterAdminRoutes(r)
	})
}
