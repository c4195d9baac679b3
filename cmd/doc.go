// Package cmd provides the CLI commands for threshnet services.
//
// # Commands
//
// registry: Central service discovery and configuration distribution.
// Optionally gates registrations on TDX attestation.
//
//	go run ./cmd/registry --addr=:8080 --admin-password=secret
//
// ttp: The trusted dealer. Holds the fingerprint database and derives
// masking material for every epoch from its master secret.
//
//	go run ./cmd/ttp --addr=:8081 --fingerprints=db.txt
//
// server: A verifier. Enrolls with the dealer and decides client
// submissions without seeing queries or fingerprints in the clear.
//
//	go run ./cmd/server --addr=:8082 --ttp=http://localhost:8081 --ttp-pubkey=<hex>
//
// client: Submits a single fingerprint query and prints the verdict.
//
//	go run ./cmd/client --ttp=http://localhost:8081 --ttp-pubkey=<hex> \
//	    --verifier=http://localhost:8082 --query=<64 hex chars>
//
// bench: Times the three protocol phases over synthetic databases and
// renders a markdown results table.
//
//	go run ./cmd/bench
//
// # Configuration
//
// The dealer, verifier and client fetch the protocol configuration from
// a registry (--registry), load it from a YAML file (--config), or fall
// back to defaults. Keys are passed as hex flags and generated fresh
// when omitted.
package cmd
