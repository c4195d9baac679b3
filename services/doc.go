// Package services provides the HTTP-facing plumbing around the protocol:
// service discovery and registration with attestation gating, persistence
// for registrations, verdicts and the fingerprint database, and typed
// HTTP clients for the registry, the dealer and verifiers.
package services
